package recorder

import (
	"time"

	"StockFlow/internal/model"
)

// RunSummary is one row of run history.
type RunSummary struct {
	RunID      string
	Pipeline   string
	Symbol     string
	Status     model.RunStatus
	ErrorKind  string
	Error      string
	RowsLoaded int64
	StartedAt  time.Time
	FinishedAt time.Time
}

// Recorder persists run history for operators.
type Recorder interface {
	RecordRun(res *model.RunResult, errorKind string) error
	RecentRuns(symbol string, limit int) ([]RunSummary, error)
	Close() error
}
