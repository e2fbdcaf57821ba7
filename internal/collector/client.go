package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"StockFlow/internal/config"
)

// Client performs header-decorated GETs against the market-data API.
// The gate and the fetcher share one Client so they share one rate limit.
type Client struct {
	HTTP    *http.Client
	Headers map[string]string
	Limiter *rate.Limiter
	Log     zerolog.Logger
}

// NewClient creates an API client with optional proxy support and client-side throttling.
func NewClient(cfg config.APIConfig, log zerolog.Logger) *Client {
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if cfg.Proxy != "" {
		if u, err := url.Parse(cfg.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return &Client{
		HTTP: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		Headers: cfg.Headers,
		Limiter: limiter,
		Log:     log,
	}
}

// get returns the status code and full body of a GET.
func (c *Client) get(ctx context.Context, u string) (int, []byte, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return 0, nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, nil, err
	}
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, nil
}
