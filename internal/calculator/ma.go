package calculator

import (
	"errors"

	"StockFlow/internal/model"
)

// CalculateSMA computes the simple moving average of the given prices over the specified period.
func CalculateSMA(prices []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(prices) < period {
		return 0, errors.New("not enough data for SMA calculation")
	}
	sum := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		sum += prices[i]
	}
	return sum / float64(period), nil
}

// closes returns the close of every row that has one, in order.
func closes(rows []model.PriceRow) []float64 {
	out := make([]float64, 0, len(rows))
	for _, r := range rows {
		if r.Close != nil {
			out = append(out, *r.Close)
		}
	}
	return out
}
