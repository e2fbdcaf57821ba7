package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// APIConfig describes the upstream market-data API.
type APIConfig struct {
	Host      string            `yaml:"host"`
	Endpoint  string            `yaml:"endpoint"`
	Headers   map[string]string `yaml:"headers"`
	Timeout   time.Duration     `yaml:"timeout"`
	RateLimit float64           `yaml:"rate_limit"` // requests per second, 0 = unlimited
	Proxy     string            `yaml:"proxy"`
}

// BaseURL joins host and endpoint the way the availability gate resolves it.
func (a APIConfig) BaseURL() string {
	return strings.TrimRight(a.Host, "/") + "/" + strings.Trim(a.Endpoint, "/")
}

// GateConfig bounds the availability polling loop.
type GateConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

// StorageConfig describes the S3-compatible staging store.
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Secure    bool   `yaml:"secure"`
}

// WarehouseConfig describes the PostgreSQL warehouse.
type WarehouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	Schema   string `yaml:"schema"`
	Table    string `yaml:"table"`
}

// DSN renders a postgres:// URL for lib/pq. Credentials and names are escaped.
func (w WarehouseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(w.Host, strconv.Itoa(w.Port)),
		Path:     "/" + w.Database,
		RawQuery: url.Values{"sslmode": {w.SSLMode}}.Encode(),
	}
	if w.Password != "" {
		u.User = url.UserPassword(w.User, w.Password)
	} else if w.User != "" {
		u.User = url.User(w.User)
	}
	return u.String()
}

// FormatterConfig selects and configures the formatting job.
type FormatterConfig struct {
	Mode        string        `yaml:"mode"` // "docker" or "local"
	Image       string        `yaml:"image"`
	DockerURL   string        `yaml:"docker_url"`
	NetworkMode string        `yaml:"network_mode"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Config holds all application configuration.
type Config struct {
	Pipeline struct {
		Name    string        `yaml:"name"`
		Symbols []string      `yaml:"symbols"`
		Retries int           `yaml:"retries"`
		Delay   time.Duration `yaml:"retry_delay"`
	} `yaml:"pipeline"`
	API       APIConfig       `yaml:"api"`
	Gate      GateConfig      `yaml:"gate"`
	Storage   StorageConfig   `yaml:"storage"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Formatter FormatterConfig `yaml:"formatter"`
	Schedule  struct {
		Cron string `yaml:"cron"`
	} `yaml:"schedule"`
	Slack struct {
		WebhookURL string `yaml:"webhook_url"`
		Channel    string `yaml:"channel"`
	} `yaml:"slack"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Redis struct {
		Addr     string        `yaml:"addr"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		LockTTL  time.Duration `yaml:"lock_ttl"`
	} `yaml:"redis"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	LogLevel string `yaml:"log_level"`
}

// Load reads config from a YAML file, then applies environment variable overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&cfg.API.Host, "STOCK_API_HOST")
	setString(&cfg.API.Endpoint, "STOCK_API_ENDPOINT")
	setString(&cfg.API.Proxy, "HTTPS_PROXY")
	setString(&cfg.Storage.Endpoint, "MINIO_ENDPOINT")
	setString(&cfg.Storage.AccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.Storage.SecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.Warehouse.Host, "POSTGRES_HOST")
	setString(&cfg.Warehouse.User, "POSTGRES_USER")
	setString(&cfg.Warehouse.Password, "POSTGRES_PASSWORD")
	setString(&cfg.Warehouse.Database, "POSTGRES_DB")
	setString(&cfg.Formatter.Mode, "FORMATTER_MODE")
	setString(&cfg.Formatter.DockerURL, "DOCKER_HOST")
	setString(&cfg.Slack.WebhookURL, "SLACK_WEBHOOK_URL")
	setString(&cfg.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setString(&cfg.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Database.SQLitePath, "SQLITE_PATH")
	setString(&cfg.Schedule.Cron, "CRON_SCHEDULE")
	setString(&cfg.LogLevel, "LOG_LEVEL")

	if v := os.Getenv("POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Warehouse.Port = port
		}
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		cfg.Pipeline.Symbols = nil
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.Pipeline.Symbols = append(cfg.Pipeline.Symbols, s)
			}
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Pipeline.Name == "" {
		cfg.Pipeline.Name = "stock_market"
	}
	if len(cfg.Pipeline.Symbols) == 0 {
		cfg.Pipeline.Symbols = []string{"AAPL"}
	}
	if cfg.Pipeline.Retries < 0 {
		cfg.Pipeline.Retries = 0
	}
	if cfg.API.Endpoint == "" {
		cfg.API.Endpoint = "v8/finance/chart"
	}
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = 30 * time.Second
	}
	if cfg.Gate.PollInterval == 0 {
		cfg.Gate.PollInterval = 30 * time.Second
	}
	if cfg.Gate.Timeout == 0 {
		cfg.Gate.Timeout = 300 * time.Second
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = "stock-market"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Warehouse.Port == 0 {
		cfg.Warehouse.Port = 5432
	}
	if cfg.Warehouse.SSLMode == "" {
		cfg.Warehouse.SSLMode = "disable"
	}
	if cfg.Warehouse.Schema == "" {
		cfg.Warehouse.Schema = "dw"
	}
	if cfg.Warehouse.Table == "" {
		cfg.Warehouse.Table = "stocks_prices"
	}
	if cfg.Formatter.Mode == "" {
		cfg.Formatter.Mode = "local"
	}
	if cfg.Formatter.Image == "" {
		cfg.Formatter.Image = "spark-app"
	}
	if cfg.Formatter.Timeout == 0 {
		cfg.Formatter.Timeout = 10 * time.Minute
	}
	if cfg.Schedule.Cron == "" {
		cfg.Schedule.Cron = "0 0 0 * * *"
	}
	if cfg.Redis.LockTTL == 0 {
		cfg.Redis.LockTTL = 30 * time.Minute
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/stockflow.db"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.API.Host == "" {
		return fmt.Errorf("api.host is required")
	}
	if _, err := url.ParseRequestURI(c.API.BaseURL()); err != nil {
		return fmt.Errorf("api.host: %w", err)
	}
	if c.Gate.PollInterval <= 0 || c.Gate.Timeout < c.Gate.PollInterval {
		return fmt.Errorf("gate.timeout must be at least gate.poll_interval")
	}
	if c.Storage.Endpoint == "" {
		return fmt.Errorf("storage.endpoint is required")
	}
	if c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
		return fmt.Errorf("storage.access_key and storage.secret_key are required")
	}
	if c.Warehouse.Host == "" {
		return fmt.Errorf("warehouse.host is required")
	}
	if c.Warehouse.Database == "" {
		return fmt.Errorf("warehouse.database is required")
	}
	switch c.Formatter.Mode {
	case "local":
	case "docker":
		if c.Formatter.Image == "" {
			return fmt.Errorf("formatter.image is required in docker mode")
		}
	default:
		return fmt.Errorf("formatter.mode must be \"local\" or \"docker\", got %q", c.Formatter.Mode)
	}
	return nil
}
