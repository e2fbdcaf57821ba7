// Package calculator derives the price summary reported with each successful run.
package calculator

import (
	"errors"

	"StockFlow/internal/model"
)

// Summarize computes the headline figures for a year of daily rows. Figures that need
// more history than is available are left at zero.
func Summarize(rows []model.PriceRow) (*model.PriceSummary, error) {
	cs := closes(rows)
	if len(cs) == 0 {
		return nil, errors.New("no closing prices")
	}

	s := &model.PriceSummary{Bars: len(rows), LastClose: cs[len(cs)-1]}
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].Close != nil {
			s.LastDate = rows[i].Date
			break
		}
	}
	if len(rows) > 0 {
		s.FirstDate = rows[0].Date
	}

	if high, low, err := Calculate52WeekRange(rows); err == nil {
		s.High52w, s.Low52w = high, low
		s.Position52w, _ = Calculate52WeekPosition(s.LastClose, high, low)
	}
	if ma, err := CalculateSMA(cs, 50); err == nil {
		s.SMA50 = ma
	}
	if ma, err := CalculateSMA(cs, 200); err == nil {
		s.SMA200 = ma
	}
	s.RSI14, _ = CalculateRSI(cs, 14)
	return s, nil
}
