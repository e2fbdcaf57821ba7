package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrAvailabilityTimeout is returned when the API did not become ready within the wait window.
var ErrAvailabilityTimeout = errors.New("api availability timeout")

// PollResult is the outcome of a single availability check.
type PollResult int

const (
	NotReady PollResult = iota
	Ready
	TimedOut
)

func (p PollResult) String() string {
	switch p {
	case Ready:
		return "ready"
	case TimedOut:
		return "timed-out"
	default:
		return "not-ready"
	}
}

// statusResponse is the status-check shape. A present finance object whose result
// is null means nothing is blocking data access.
type statusResponse struct {
	Finance *struct {
		Result json.RawMessage `json:"result"`
	} `json:"finance"`
}

// Gate polls the API status endpoint until it reports ready.
type Gate struct {
	Client   *Client
	URL      string
	Interval time.Duration
	Timeout  time.Duration
}

// NewGate creates a gate for baseURL polling every interval for up to timeout.
func NewGate(client *Client, baseURL string, interval, timeout time.Duration) *Gate {
	return &Gate{Client: client, URL: baseURL, Interval: interval, Timeout: timeout}
}

// Poll performs one status check. Transport failures and unexpected bodies are NotReady.
func (g *Gate) Poll(ctx context.Context) (PollResult, error) {
	status, body, err := g.Client.get(ctx, g.URL)
	if err != nil {
		return NotReady, fmt.Errorf("status check: %w", err)
	}
	if status != http.StatusOK {
		return NotReady, fmt.Errorf("status check: status %d", status)
	}
	var sr statusResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return NotReady, fmt.Errorf("decode status: %w", err)
	}
	if sr.Finance == nil {
		return NotReady, errors.New("status response has no finance object")
	}
	if len(sr.Finance.Result) == 0 || string(sr.Finance.Result) == "null" {
		return Ready, nil
	}
	return NotReady, nil
}

// Wait polls until Ready and returns the resolved base URL for the fetch stage.
func (g *Gate) Wait(ctx context.Context) (string, error) {
	_, u, err := g.Await(ctx)
	return u, err
}

// Await polls until the API is Ready or the window closes. It blocks for at most Timeout
// and never polls again after reporting TimedOut. A canceled parent context is returned as is.
func (g *Gate) Await(ctx context.Context) (PollResult, string, error) {
	deadline := time.Now().Add(g.Timeout)
	pollCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(g.Interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		res, err := g.Poll(pollCtx)
		if res == Ready {
			g.Client.Log.Info().Str("url", g.URL).Int("attempt", attempt).Msg("api available")
			return Ready, g.URL, nil
		}
		if err != nil {
			g.Client.Log.Warn().Err(err).Int("attempt", attempt).Msg("api not ready")
		} else {
			g.Client.Log.Debug().Int("attempt", attempt).Stringer("result", res).Msg("api not ready")
		}

		select {
		case <-pollCtx.Done():
			if err := ctx.Err(); err != nil {
				return NotReady, "", err
			}
			return TimedOut, "", g.timedOut(attempt)
		case <-ticker.C:
			if !time.Now().Before(deadline) {
				return TimedOut, "", g.timedOut(attempt)
			}
		}
	}
}

func (g *Gate) timedOut(attempts int) error {
	return fmt.Errorf("%w after %v (%d polls of %s)", ErrAvailabilityTimeout, g.Timeout, attempts, g.URL)
}
