package formatter

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/rs/zerolog"

	"StockFlow/internal/model"
	"StockFlow/internal/objectstore"
)

// LocalPartName is the single file the local runner writes per symbol.
const LocalPartName = "part-00000.csv"

// LocalRunner performs the raw-to-CSV transform in process, for deployments without a Spark image.
type LocalRunner struct {
	Objects objectstore.Store
	Log     zerolog.Logger
}

// NewLocalRunner creates a LocalRunner.
func NewLocalRunner(store objectstore.Store, log zerolog.Logger) *LocalRunner {
	return &LocalRunner{Objects: store, Log: log}
}

func (r *LocalRunner) Name() string { return "local" }

func (r *LocalRunner) Format(ctx context.Context, loc model.StorageLocator) error {
	rc, err := r.Objects.Get(ctx, loc.Bucket, loc.RawKey())
	if err != nil {
		return fmt.Errorf("%w: open raw record: %w", ErrFormatJob, err)
	}
	raw, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("%w: read raw record: %w", ErrFormatJob, err)
	}

	rows, err := model.RawPriceRecord(raw).Rows()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFormatJob, err)
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		return fmt.Errorf("%w: encode csv: %w", ErrFormatJob, err)
	}

	key := loc.FormattedPrefix() + LocalPartName
	if err := r.Objects.Put(ctx, loc.Bucket, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), "text/csv"); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrFormatJob, key, err)
	}
	r.Log.Info().Str("symbol", string(loc.Symbol)).Str("key", key).Int("rows", len(rows)).Msg("formatted prices")
	return nil
}

// WriteCSV writes the header and one line per row in FormattedColumns order.
func WriteCSV(w io.Writer, rows []model.PriceRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(model.FormattedColumns); err != nil {
		return err
	}
	for _, row := range rows {
		rec := []string{
			strconv.FormatInt(row.Timestamp, 10),
			formatFloat(row.Close),
			formatFloat(row.High),
			formatFloat(row.Low),
			formatFloat(row.Open),
			"",
			row.Date.Format("2006-01-02"),
		}
		if row.Volume != nil {
			rec[5] = strconv.FormatInt(*row.Volume, 10)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
