package calculator

import (
	"errors"
	"math"

	"StockFlow/internal/model"
)

// tradingYear is the number of daily bars in a 52-week window.
const tradingYear = 252

// Calculate52WeekRange scans the most recent 252 rows and returns the high and low.
// Rows without a high or low are ignored.
func Calculate52WeekRange(rows []model.PriceRow) (high, low float64, err error) {
	start := len(rows) - tradingYear
	if start < 0 {
		start = 0
	}
	high = math.Inf(-1)
	low = math.Inf(1)
	for _, r := range rows[start:] {
		if r.High != nil && *r.High > high {
			high = *r.High
		}
		if r.Low != nil && *r.Low < low {
			low = *r.Low
		}
	}
	if math.IsInf(high, 0) || math.IsInf(low, 0) {
		return 0, 0, errors.New("no high/low data")
	}
	return high, low, nil
}

// Calculate52WeekPosition returns where the current price sits within the 52-week range (0.0~1.0).
func Calculate52WeekPosition(current, high, low float64) (float64, error) {
	if high == low {
		return 0.5, nil
	}
	if high < low {
		return 0, errors.New("high must be >= low")
	}
	pos := (current - low) / (high - low)
	if pos < 0 {
		pos = 0
	}
	if pos > 1 {
		pos = 1
	}
	return pos, nil
}
