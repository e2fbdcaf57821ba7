package model

import "time"

// RunStatus is the terminal state of a pipeline run or stage.
type RunStatus string

const (
	StatusSucceeded RunStatus = "SUCCEEDED"
	StatusFailed    RunStatus = "FAILED"
)

// StageOutcome records one executed stage.
type StageOutcome struct {
	Stage    string
	Attempts int
	Started  time.Time
	Duration time.Duration
	Status   RunStatus
	Detail   string // output handed to the next stage, or the error text
}

// RunResult summarizes a whole pipeline run.
type RunResult struct {
	RunID      string
	Pipeline   string
	Symbol     Symbol
	StartedAt  time.Time
	FinishedAt time.Time
	Stages     []StageOutcome
	RowsLoaded int64
	Summary    *PriceSummary // nil when the fetched series had no closes
	Err        error
}

// Status reports whether the run succeeded.
func (r *RunResult) Status() RunStatus {
	if r.Err != nil {
		return StatusFailed
	}
	return StatusSucceeded
}

// Duration is the wall time of the run.
func (r *RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// PriceSummary holds the headline figures of a fetched price history.
type PriceSummary struct {
	Bars        int
	FirstDate   time.Time
	LastDate    time.Time
	LastClose   float64
	High52w     float64
	Low52w      float64
	Position52w float64
	SMA50       float64
	SMA200      float64
	RSI14       float64
}
