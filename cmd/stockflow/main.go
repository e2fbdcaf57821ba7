package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"StockFlow/internal/collector"
	"StockFlow/internal/config"
	"StockFlow/internal/formatter"
	"StockFlow/internal/lock"
	"StockFlow/internal/logging"
	"StockFlow/internal/model"
	"StockFlow/internal/notifier"
	"StockFlow/internal/objectstore"
	"StockFlow/internal/pipeline"
	"StockFlow/internal/recorder"
	"StockFlow/internal/scheduler"
	"StockFlow/internal/staging"
	"StockFlow/internal/warehouse"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		bootLog := logging.New("info")
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config validation")
	}
	log.Info().Str("pipeline", cfg.Pipeline.Name).Msg("StockFlow starting...")

	symbols := make([]model.Symbol, 0, len(cfg.Pipeline.Symbols))
	for _, s := range cfg.Pipeline.Symbols {
		sym, err := model.NormalizeSymbol(s)
		if err != nil {
			log.Fatal().Err(err).Msg("pipeline.symbols")
		}
		symbols = append(symbols, sym)
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := objectstore.NewS3Store(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("init object store")
	}

	client := collector.NewClient(cfg.API, log)
	p := &pipeline.Pipeline{
		Name:      cfg.Pipeline.Name,
		Gate:      collector.NewGate(client, cfg.API.BaseURL(), cfg.Gate.PollInterval, cfg.Gate.Timeout),
		Fetcher:   collector.NewFetcher(client),
		Raw:       staging.NewRawStore(store, cfg.Storage.Bucket, log),
		Formatter: newFormatter(cfg.Formatter, store, log),
		Locator:   staging.NewLocator(store, log),
		Loader:    warehouse.NewLoader(store, cfg.Warehouse, log),
		Locker:    newLocker(ctx, cfg, log),
		Retry:     pipeline.RetryPolicy{Attempts: cfg.Pipeline.Retries + 1, Delay: cfg.Pipeline.Delay},
		Log:       log,
	}
	if c, ok := p.Locker.(*lock.RedisLocker); ok {
		defer c.Close()
	}

	// Notifiers: Slack carries the run reports, Telegram also accepts commands.
	var notifiers notifier.Multi
	if cfg.Slack.WebhookURL != "" {
		notifiers = append(notifiers, notifier.NewSlackNotifier(cfg.Slack.WebhookURL, cfg.Slack.Channel, cfg.API.Proxy))
	}
	var tn *notifier.TelegramNotifier
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.API.Proxy)
		notifiers = append(notifiers, tn)
	}
	var n notifier.Notifier
	if len(notifiers) > 0 {
		n = notifiers
	} else {
		log.Warn().Msg("no notifier configured, run reports are only logged")
	}

	// Init recorder
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
		if err != nil {
			log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}
	defer rec.Close()

	sched := scheduler.NewScheduler(ctx, p, n, rec, symbols, log)

	if os.Getenv("RUN_ONCE") == "true" {
		failed := 0
		for _, res := range sched.RunAllNow() {
			if res.Err != nil {
				failed++
			}
		}
		if failed > 0 {
			log.Error().Int("failed", failed).Msg("RUN_ONCE finished with failures")
			rec.Close()
			os.Exit(1)
		}
		return
	}

	if err := sched.RegisterAll(cfg.Schedule.Cron); err != nil {
		log.Fatal().Err(err).Msg("register cron tasks")
	}
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand, log)
		log.Info().Msg("telegram polling started")
	}

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		log.Info().Msg("RUN_ON_START enabled, running all symbols now")
		sched.RunAllAsync()
	}

	log.Info().Str("cron", cfg.Schedule.Cron).Msg("StockFlow is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutdown signal received, stopping...")
	cancel()
}

func newFormatter(cfg config.FormatterConfig, store objectstore.Store, log zerolog.Logger) formatter.Runner {
	if cfg.Mode == "docker" {
		r, err := formatter.NewDockerRunner(cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("init docker formatter")
		}
		return r
	}
	return formatter.NewLocalRunner(store, log)
}

// newLocker shares run exclusivity through Redis when configured, otherwise per process.
func newLocker(ctx context.Context, cfg *config.Config, log zerolog.Logger) lock.Locker {
	if cfg.Redis.Addr == "" {
		return lock.NewLocalLocker()
	}
	rl, err := lock.NewRedisLocker(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.LockTTL, log)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, using in-process lock")
		return lock.NewLocalLocker()
	}
	return rl
}
