package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"StockFlow/internal/logging"
	"StockFlow/internal/model"
	"StockFlow/internal/notifier"
	"StockFlow/internal/pipeline"
	"StockFlow/internal/recorder"
)

// Runner executes one pipeline run for a symbol.
type Runner interface {
	Run(ctx context.Context, symbol model.Symbol) *model.RunResult
}

// Scheduler triggers pipeline runs on a cron schedule and reports their outcome.
type Scheduler struct {
	Cron     *cron.Cron
	Pipeline Runner
	Notifier notifier.Notifier
	Recorder recorder.Recorder
	Symbols  []model.Symbol
	Ctx      context.Context
	Log      zerolog.Logger

	wg sync.WaitGroup
}

// NewScheduler creates a Scheduler. Overlapping triggers for a symbol are skipped
// while its previous run is still going.
func NewScheduler(ctx context.Context, p Runner, n notifier.Notifier, rec recorder.Recorder, symbols []model.Symbol, log zerolog.Logger) *Scheduler {
	cl := logging.CronLogger{Log: log}
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		Pipeline: p,
		Notifier: n,
		Recorder: rec,
		Symbols:  symbols,
		Ctx:      ctx,
		Log:      log,
	}
}

// RegisterAll registers one job per symbol on spec.
func (s *Scheduler) RegisterAll(spec string) error {
	for _, sym := range s.Symbols {
		sym := sym
		if _, err := s.Cron.AddFunc(spec, func() { s.RunNow(sym) }); err != nil {
			return fmt.Errorf("register %s run: %w", sym, err)
		}
		s.Log.Info().Str("symbol", string(sym)).Str("cron", spec).Msg("registered pipeline run")
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.Log.Info().Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for scheduled and command-triggered runs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.wg.Wait()
	s.Log.Info().Msg("scheduler stopped")
}

// RunAllNow runs every symbol once, sequentially, and returns the results.
func (s *Scheduler) RunAllNow() []*model.RunResult {
	out := make([]*model.RunResult, 0, len(s.Symbols))
	for _, sym := range s.Symbols {
		out = append(out, s.RunNow(sym))
	}
	return out
}

// RunAllAsync runs every symbol in the background. Stop waits for it to finish.
func (s *Scheduler) RunAllAsync() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.RunAllNow()
	}()
}

// RunNow executes one run, records it, and publishes the success or failure message.
func (s *Scheduler) RunNow(symbol model.Symbol) *model.RunResult {
	res := s.Pipeline.Run(s.Ctx, symbol)
	kind := ""
	if res.Err != nil {
		kind = pipeline.KindOf(res.Err).String()
	}

	if err := s.Recorder.RecordRun(res, kind); err != nil {
		s.Log.Error().Err(err).Str("run_id", res.RunID).Msg("record run")
	}
	// A run rejected because another is in flight is not a run outcome worth paging on.
	if pipeline.KindOf(res.Err) != pipeline.KindInProgress {
		s.trySend(notifier.FormatRunReport(res, kind))
	}
	return res
}

// HandleCommand processes a chat command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	switch fields[0] {
	case "/run":
		targets := s.Symbols
		if len(fields) > 1 {
			sym, err := model.NormalizeSymbol(fields[1])
			if err != nil {
				return err.Error()
			}
			targets = []model.Symbol{sym}
		}
		for _, sym := range targets {
			sym := sym
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.RunNow(sym)
			}()
		}
		return fmt.Sprintf("Started %d run(s).", len(targets))
	case "/status":
		symbol := ""
		if len(fields) > 1 {
			symbol = strings.ToUpper(fields[1])
		}
		runs, err := s.Recorder.RecentRuns(symbol, 10)
		if err != nil {
			return fmt.Sprintf("status unavailable: %v", err)
		}
		return notifier.FormatRecentRuns(runs)
	default:
		return "Available commands:\n• /run [SYMBOL]\n• /status [SYMBOL]"
	}
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	if err := notifier.SendWithRetry(s.Ctx, s.Notifier, text, 3, s.Log); err != nil {
		s.Log.Error().Err(err).Msg("send notification")
	}
}
