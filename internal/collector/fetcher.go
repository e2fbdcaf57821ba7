package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"StockFlow/internal/model"
)

var (
	// ErrFetch covers transport and HTTP status failures.
	ErrFetch = errors.New("price fetch failed")
	// ErrMalformedResponse is returned when the body lacks chart.result[0].
	ErrMalformedResponse = errors.New("malformed price response")
)

// chartResponse keeps each result element raw so the stored record matches the API byte for byte.
type chartResponse struct {
	Chart *struct {
		Result []json.RawMessage `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetcher retrieves one year of daily prices.
type Fetcher struct {
	Client *Client
}

// NewFetcher creates a Fetcher on the shared API client.
func NewFetcher(client *Client) *Fetcher {
	return &Fetcher{Client: client}
}

// PriceURL builds "<base>/<symbol>?interval=1d&range=1y".
func PriceURL(baseURL string, symbol model.Symbol) string {
	return fmt.Sprintf("%s/%s?interval=1d&range=1y",
		strings.TrimRight(baseURL, "/"), url.PathEscape(string(symbol)))
}

// Fetch issues one GET and returns chart.result[0].
func (f *Fetcher) Fetch(ctx context.Context, baseURL string, symbol model.Symbol) (model.RawPriceRecord, error) {
	u := PriceURL(baseURL, symbol)
	status, body, err := f.Client.get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, symbol, err)
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("%w: %s: status %d, body: %s", ErrFetch, symbol, status, truncate(body, 256))
	}

	var cr chartResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedResponse, symbol, err)
	}
	if cr.Chart == nil {
		return nil, fmt.Errorf("%w: %s: no chart object", ErrMalformedResponse, symbol)
	}
	if cr.Chart.Error != nil && len(cr.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: %s: api error %s: %s",
			ErrMalformedResponse, symbol, cr.Chart.Error.Code, cr.Chart.Error.Description)
	}
	if len(cr.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: %s: empty chart.result", ErrMalformedResponse, symbol)
	}
	first := bytes.TrimSpace(cr.Chart.Result[0])
	if len(first) == 0 || first[0] != '{' {
		return nil, fmt.Errorf("%w: %s: chart.result[0] is not an object", ErrMalformedResponse, symbol)
	}

	f.Client.Log.Info().Str("symbol", string(symbol)).Int("bytes", len(first)).Msg("fetched prices")
	return model.RawPriceRecord(first), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
