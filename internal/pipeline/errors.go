package pipeline

import (
	"context"
	"errors"
	"fmt"

	"StockFlow/internal/collector"
	"StockFlow/internal/formatter"
	"StockFlow/internal/staging"
)

// Kind classifies a stage failure for callers deciding whether and how to retry.
type Kind int

const (
	KindUnknown Kind = iota
	KindAvailabilityTimeout
	KindFetch
	KindStorage
	KindFormat
	KindLookupMiss
	KindLoad
	KindCanceled
	KindInProgress
)

func (k Kind) String() string {
	switch k {
	case KindAvailabilityTimeout:
		return "availability_timeout"
	case KindFetch:
		return "fetch_error"
	case KindStorage:
		return "storage_error"
	case KindFormat:
		return "format_error"
	case KindLookupMiss:
		return "lookup_miss"
	case KindLoad:
		return "load_error"
	case KindCanceled:
		return "canceled"
	case KindInProgress:
		return "run_in_progress"
	default:
		return "unknown"
	}
}

var (
	// ErrNoFormattedFile is the lookup-miss: the formatter ran but no CSV exists.
	ErrNoFormattedFile = errors.New("no formatted csv found")
	// ErrRunInProgress is returned when the symbol already has a run in flight.
	ErrRunInProgress = errors.New("run already in progress")
)

// StageError is the error every stage surfaces to its caller.
type StageError struct {
	Stage Stage
	Kind  Kind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// KindOf reports the Kind of err, or KindUnknown if it did not come from a stage.
func KindOf(err error) Kind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, ErrRunInProgress) {
		return KindInProgress
	}
	return KindUnknown
}

// Retryable reports whether re-running the failed stage could succeed.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindCanceled, KindInProgress, KindUnknown:
		return false
	}
	// A malformed record fails identically on every attempt.
	return !errors.Is(err, staging.ErrMalformedRecord) && !errors.Is(err, collector.ErrMalformedResponse)
}

func classify(stage Stage, err error) Kind {
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	switch {
	case errors.Is(err, collector.ErrAvailabilityTimeout):
		return KindAvailabilityTimeout
	case errors.Is(err, collector.ErrFetch), errors.Is(err, collector.ErrMalformedResponse),
		errors.Is(err, staging.ErrMalformedRecord):
		return KindFetch
	case errors.Is(err, ErrNoFormattedFile):
		return KindLookupMiss
	case errors.Is(err, formatter.ErrFormatJob):
		return KindFormat
	case errors.Is(err, staging.ErrStorage):
		return KindStorage
	}
	switch stage {
	case StageAvailability:
		return KindAvailabilityTimeout
	case StageFetch:
		return KindFetch
	case StageStore, StageLocate:
		return KindStorage
	case StageFormat:
		return KindFormat
	case StageLoad:
		return KindLoad
	}
	return KindUnknown
}

func stageError(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Kind: classify(stage, err), Err: err}
}
