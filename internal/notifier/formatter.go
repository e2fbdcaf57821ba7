package notifier

import (
	"fmt"
	"strings"
	"time"

	"StockFlow/internal/model"
	"StockFlow/internal/recorder"
)

// FormatRunReport renders the success or failure message for a finished run.
func FormatRunReport(res *model.RunResult, errorKind string) string {
	var b strings.Builder
	if res.Err == nil {
		b.WriteString(fmt.Sprintf("✅ The pipeline %s succeeded\n\n", res.Pipeline))
	} else {
		b.WriteString(fmt.Sprintf("❌ The pipeline %s failed\n\n", res.Pipeline))
	}
	b.WriteString(fmt.Sprintf("Symbol: %s\n", res.Symbol))
	b.WriteString(fmt.Sprintf("Run: %s\n", res.RunID))
	b.WriteString(fmt.Sprintf("Started: %s\n", res.StartedAt.UTC().Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf("Duration: %s\n", res.Duration().Round(time.Second)))

	if res.Err == nil {
		b.WriteString(fmt.Sprintf("Rows loaded: %d\n", res.RowsLoaded))
		if s := res.Summary; s != nil {
			b.WriteString(fmt.Sprintf("\nClose (%s): %.2f\n", s.LastDate.Format("2006-01-02"), s.LastClose))
			if s.High52w > 0 {
				b.WriteString(fmt.Sprintf("52w range: %.2f - %.2f (%.0f%%)\n", s.Low52w, s.High52w, s.Position52w*100))
			}
			if s.SMA200 > 0 {
				b.WriteString(fmt.Sprintf("SMA50/200: %.2f / %.2f\n", s.SMA50, s.SMA200))
			} else if s.SMA50 > 0 {
				b.WriteString(fmt.Sprintf("SMA50: %.2f\n", s.SMA50))
			}
			b.WriteString(fmt.Sprintf("RSI(14): %.1f\n", s.RSI14))
		}
		return b.String()
	}

	if n := len(res.Stages); n > 0 && res.Stages[n-1].Status == model.StatusFailed {
		s := res.Stages[n-1]
		b.WriteString(fmt.Sprintf("Failed stage: %s (attempt %d)\n", s.Stage, s.Attempts))
	}
	if errorKind != "" {
		b.WriteString(fmt.Sprintf("Kind: %s\n", errorKind))
	}
	b.WriteString(fmt.Sprintf("Error: %v\n", res.Err))
	return b.String()
}

// FormatRecentRuns renders run history for the /status command.
func FormatRecentRuns(runs []recorder.RunSummary) string {
	if len(runs) == 0 {
		return "No runs recorded yet."
	}
	var b strings.Builder
	b.WriteString("📊 Recent runs\n\n")
	for _, r := range runs {
		mark := "✅"
		if r.Status == model.StatusFailed {
			mark = "❌"
		}
		b.WriteString(fmt.Sprintf("%s %s %s", mark, r.StartedAt.UTC().Format("2006-01-02 15:04"), r.Symbol))
		if r.Status == model.StatusFailed {
			b.WriteString(fmt.Sprintf(" %s\n", r.ErrorKind))
		} else {
			b.WriteString(fmt.Sprintf(" %d rows\n", r.RowsLoaded))
		}
	}
	return b.String()
}
