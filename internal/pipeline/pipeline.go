// Package pipeline runs the staged price flow: availability gate, fetch, raw store,
// format, locate, and warehouse load. Each stage's typed output is the next stage's input.
package pipeline

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"StockFlow/internal/calculator"
	"StockFlow/internal/formatter"
	"StockFlow/internal/lock"
	"StockFlow/internal/model"
)

// Stage names match the task IDs operators see in notifications and run history.
type Stage string

const (
	StageAvailability Stage = "is_api_available"
	StageFetch        Stage = "get_stock_prices"
	StageStore        Stage = "store_prices"
	StageFormat       Stage = "format_prices"
	StageLocate       Stage = "get_formatted_csv"
	StageLoad         Stage = "load_to_dw"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageAvailability, StageFetch, StageStore, StageFormat, StageLocate, StageLoad}

type AvailabilityChecker interface {
	Wait(ctx context.Context) (string, error)
}

type PriceFetcher interface {
	Fetch(ctx context.Context, baseURL string, symbol model.Symbol) (model.RawPriceRecord, error)
}

type RawStorer interface {
	Store(ctx context.Context, record model.RawPriceRecord) (model.StorageLocator, error)
}

type FormattedLocator interface {
	Locate(ctx context.Context, loc model.StorageLocator) (model.FormattedFile, bool, error)
}

type WarehouseLoader interface {
	Load(ctx context.Context, file model.FormattedFile) (int64, error)
}

// RetryPolicy re-runs a failed stage as a whole. Stages never retry internally.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// Pipeline wires the stages together.
type Pipeline struct {
	Name      string
	Gate      AvailabilityChecker
	Fetcher   PriceFetcher
	Raw       RawStorer
	Formatter formatter.Runner
	Locator   FormattedLocator
	Loader    WarehouseLoader
	Locker    lock.Locker
	Retry     RetryPolicy
	Log       zerolog.Logger

	now func() time.Time
}

// CheckAvailability blocks until the API is ready and returns the base URL.
func (p *Pipeline) CheckAvailability(ctx context.Context) (string, error) {
	u, err := p.Gate.Wait(ctx)
	return u, stageError(StageAvailability, err)
}

// FetchPrices returns the raw one-year daily record for symbol.
func (p *Pipeline) FetchPrices(ctx context.Context, baseURL string, symbol model.Symbol) (model.RawPriceRecord, error) {
	rec, err := p.Fetcher.Fetch(ctx, baseURL, symbol)
	return rec, stageError(StageFetch, err)
}

// StorePrices persists the record and returns its locator.
func (p *Pipeline) StorePrices(ctx context.Context, rec model.RawPriceRecord) (model.StorageLocator, error) {
	loc, err := p.Raw.Store(ctx, rec)
	return loc, stageError(StageStore, err)
}

// FormatPrices runs the formatter job for loc and waits for it to finish.
func (p *Pipeline) FormatPrices(ctx context.Context, loc model.StorageLocator) error {
	return stageError(StageFormat, p.Formatter.Format(ctx, loc))
}

// LocateFormatted resolves the formatted CSV. A missing file is a lookup-miss error.
func (p *Pipeline) LocateFormatted(ctx context.Context, loc model.StorageLocator) (model.FormattedFile, error) {
	file, found, err := p.Locator.Locate(ctx, loc)
	if err != nil {
		return model.FormattedFile{}, stageError(StageLocate, err)
	}
	if !found {
		return model.FormattedFile{}, stageError(StageLocate, ErrNoFormattedFile)
	}
	return file, nil
}

// LoadWarehouse replaces the warehouse table with file's rows.
func (p *Pipeline) LoadWarehouse(ctx context.Context, file model.FormattedFile) (int64, error) {
	n, err := p.Loader.Load(ctx, file)
	return n, stageError(StageLoad, err)
}

func (p *Pipeline) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

// Run executes every stage for symbol in order, stopping at the first failure.
// The returned result is never nil; result.Err holds the failing *StageError.
func (p *Pipeline) Run(ctx context.Context, symbol model.Symbol) *model.RunResult {
	res := &model.RunResult{
		RunID:     uuid.NewString(),
		Pipeline:  p.Name,
		Symbol:    symbol,
		StartedAt: p.clock(),
	}
	log := p.Log.With().Str("run_id", res.RunID).Str("symbol", string(symbol)).Logger()
	defer func() {
		res.FinishedAt = p.clock()
		if res.Err != nil {
			log.Error().Err(res.Err).Dur("duration", res.Duration()).Msg("run failed")
			return
		}
		log.Info().Dur("duration", res.Duration()).Int64("rows", res.RowsLoaded).Msg("run succeeded")
	}()

	if p.Locker != nil {
		release, err := p.Locker.TryAcquire(ctx, string(symbol), res.RunID)
		if err != nil {
			if errors.Is(err, lock.ErrHeld) {
				err = ErrRunInProgress
			}
			res.Err = err
			return res
		}
		defer release()
	}
	log.Info().Msg("run started")

	var (
		baseURL string
		record  model.RawPriceRecord
		loc     model.StorageLocator
		file    model.FormattedFile
	)
	steps := []struct {
		stage Stage
		run   func(context.Context) (string, error)
	}{
		{StageAvailability, func(ctx context.Context) (s string, err error) {
			baseURL, err = p.CheckAvailability(ctx)
			return baseURL, err
		}},
		{StageFetch, func(ctx context.Context) (string, error) {
			var err error
			record, err = p.FetchPrices(ctx, baseURL, symbol)
			if err == nil {
				res.Summary = summarize(log, record)
			}
			return byteCount(len(record)), err
		}},
		{StageStore, func(ctx context.Context) (string, error) {
			var err error
			loc, err = p.StorePrices(ctx, record)
			return loc.String(), err
		}},
		{StageFormat, func(ctx context.Context) (string, error) {
			return p.Formatter.Name(), p.FormatPrices(ctx, loc)
		}},
		{StageLocate, func(ctx context.Context) (string, error) {
			var err error
			file, err = p.LocateFormatted(ctx, loc)
			return file.Key, err
		}},
		{StageLoad, func(ctx context.Context) (string, error) {
			var err error
			res.RowsLoaded, err = p.LoadWarehouse(ctx, file)
			return rowCount(res.RowsLoaded), err
		}},
	}

	for _, s := range steps {
		outcome, err := p.attempt(ctx, log, s.stage, s.run)
		res.Stages = append(res.Stages, outcome)
		if err != nil {
			res.Err = err
			return res
		}
	}
	return res
}

// attempt runs one stage under the retry policy.
func (p *Pipeline) attempt(ctx context.Context, log zerolog.Logger, stage Stage, run func(context.Context) (string, error)) (model.StageOutcome, error) {
	attempts := p.Retry.Attempts
	if attempts < 1 {
		attempts = 1
	}
	out := model.StageOutcome{Stage: string(stage), Started: p.clock()}

	var err error
	for i := 1; ; i++ {
		out.Attempts = i
		var detail string
		detail, err = run(ctx)
		if err == nil {
			out.Status = model.StatusSucceeded
			out.Detail = detail
			out.Duration = p.clock().Sub(out.Started)
			log.Info().Str("stage", string(stage)).Str("output", detail).Dur("duration", out.Duration).Msg("stage succeeded")
			return out, nil
		}
		log.Warn().Err(err).Str("stage", string(stage)).Int("attempt", i).Int("of", attempts).Msg("stage failed")
		if i == attempts || !Retryable(err) {
			break
		}
		if werr := sleep(ctx, p.Retry.Delay); werr != nil {
			err = stageError(stage, werr)
			break
		}
	}
	out.Status = model.StatusFailed
	out.Detail = err.Error()
	out.Duration = p.clock().Sub(out.Started)
	return out, err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// summarize derives the report figures from a fetched record. Failures only cost the report.
func summarize(log zerolog.Logger, rec model.RawPriceRecord) *model.PriceSummary {
	rows, err := rec.Rows()
	if err != nil {
		log.Debug().Err(err).Msg("skip price summary")
		return nil
	}
	s, err := calculator.Summarize(rows)
	if err != nil {
		log.Debug().Err(err).Msg("skip price summary")
		return nil
	}
	return s
}

func byteCount(n int) string  { return strconv.Itoa(n) + " bytes" }
func rowCount(n int64) string { return strconv.FormatInt(n, 10) + " rows" }
