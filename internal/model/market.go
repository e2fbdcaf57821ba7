package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Symbol is an uppercase ticker, the partition key for staged artifacts.
type Symbol string

// ErrInvalidSymbol is returned for empty tickers or tickers that would escape their key prefix.
var ErrInvalidSymbol = errors.New("invalid symbol")

// NormalizeSymbol trims and uppercases a ticker.
func NormalizeSymbol(s string) (Symbol, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" || strings.ContainsAny(s, "/ \t\n") {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, s)
	}
	return Symbol(s), nil
}

func (s Symbol) String() string { return string(s) }

// RawPriceRecord is the chart.result[0] document exactly as the API returned it.
type RawPriceRecord []byte

// rawMeta is the subset of a RawPriceRecord needed to route it.
type rawMeta struct {
	Meta *struct {
		Symbol string `json:"symbol"`
	} `json:"meta"`
}

// Symbol parses meta.symbol out of the record.
func (r RawPriceRecord) Symbol() (Symbol, error) {
	var m rawMeta
	if err := json.Unmarshal(r, &m); err != nil {
		return "", fmt.Errorf("decode record: %w", err)
	}
	if m.Meta == nil || m.Meta.Symbol == "" {
		return "", errors.New("record has no meta.symbol")
	}
	return NormalizeSymbol(m.Meta.Symbol)
}

// ChartSeries is the decoded time series of a RawPriceRecord.
type ChartSeries struct {
	Meta struct {
		Symbol string `json:"symbol"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*int64   `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

// Rows flattens the series into formatted rows, skipping bars with no prices (holidays etc.).
func (r RawPriceRecord) Rows() ([]PriceRow, error) {
	var s ChartSeries
	if err := json.Unmarshal(r, &s); err != nil {
		return nil, fmt.Errorf("decode series: %w", err)
	}
	if len(s.Indicators.Quote) == 0 {
		return nil, errors.New("record has no indicators.quote")
	}
	q := s.Indicators.Quote[0]
	rows := make([]PriceRow, 0, len(s.Timestamp))
	for i, ts := range s.Timestamp {
		open, high, low, cls := at(q.Open, i), at(q.High, i), at(q.Low, i), at(q.Close, i)
		if open == nil && high == nil && low == nil && cls == nil {
			continue
		}
		row := PriceRow{
			Timestamp: ts,
			Date:      time.Unix(ts, 0).UTC(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     cls,
		}
		if i < len(q.Volume) {
			row.Volume = q.Volume[i]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func at(vs []*float64, i int) *float64 {
	if i < len(vs) {
		return vs[i]
	}
	return nil
}

// PriceRow is one line of a formatted price file. Nil fields are written as empty (NULL).
type PriceRow struct {
	Timestamp int64
	Close     *float64
	High      *float64
	Low       *float64
	Open      *float64
	Volume    *int64
	Date      time.Time
}

// FormattedColumns is the header of every formatted price file, in column order.
var FormattedColumns = []string{"timestamp", "close", "high", "low", "open", "volume", "date"}
