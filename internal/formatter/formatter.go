// Package formatter runs the job that turns a stored raw price record into CSV
// files under <symbol>/formatted_prices/.
package formatter

import (
	"context"
	"errors"

	"StockFlow/internal/model"
)

// ErrFormatJob is returned when the formatting job fails or produces an error exit.
var ErrFormatJob = errors.New("format job failed")

// Runner formats the raw record behind a locator. Implementations must be safe to re-run:
// a second run for the same locator replaces the first run's output.
type Runner interface {
	Format(ctx context.Context, loc model.StorageLocator) error
	Name() string
}
