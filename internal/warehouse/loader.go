// Package warehouse bulk-loads formatted price files into PostgreSQL.
package warehouse

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"StockFlow/internal/config"
	"StockFlow/internal/model"
	"StockFlow/internal/objectstore"
)

// ErrLoad wraps every schema, copy, and commit failure.
var ErrLoad = errors.New("warehouse load failed")

// Loader replaces the contents of the prices table with one formatted file.
type Loader struct {
	Objects objectstore.Store
	DSN     string
	Schema  string
	Table   string
	Log     zerolog.Logger
}

// NewLoader creates a Loader for the configured warehouse.
func NewLoader(store objectstore.Store, cfg config.WarehouseConfig, log zerolog.Logger) *Loader {
	return &Loader{
		Objects: store,
		DSN:     cfg.DSN(),
		Schema:  cfg.Schema,
		Table:   cfg.Table,
		Log:     log,
	}
}

// QualifiedTable is the quoted schema.table name.
func (l *Loader) QualifiedTable() string {
	return pq.QuoteIdentifier(l.Schema) + "." + pq.QuoteIdentifier(l.Table)
}

func (l *Loader) ddl() []string {
	return []string{
		`CREATE SCHEMA IF NOT EXISTS ` + pq.QuoteIdentifier(l.Schema),
		`CREATE TABLE IF NOT EXISTS ` + l.QualifiedTable() + ` (
			"timestamp" bigint,
			close       float,
			high        float,
			low         float,
			open        float,
			volume      bigint,
			date        date
		)`,
	}
}

// Load truncates the table and copies file into it as one transaction. Either both
// happen or neither does; the table keeps its previous rows on any failure.
func (l *Loader) Load(ctx context.Context, file model.FormattedFile) (int64, error) {
	rc, err := l.Objects.Get(ctx, file.Bucket, file.Key)
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %w", ErrLoad, file, err)
	}
	defer rc.Close()

	body := bufio.NewReader(rc)
	if err := skipHeader(body); err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrLoad, file, err)
	}

	db, err := sql.Open("postgres", l.DSN)
	if err != nil {
		return 0, fmt.Errorf("%w: open warehouse: %w", ErrLoad, err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		return 0, fmt.Errorf("%w: ping warehouse: %w", ErrLoad, err)
	}

	n, err := l.replace(ctx, db, body)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrLoad, file, err)
	}
	l.Log.Info().Str("file", file.String()).Str("table", l.QualifiedTable()).Int64("rows", n).Msg("warehouse loaded")
	return n, nil
}

func (l *Loader) replace(ctx context.Context, db *sql.DB, body io.Reader) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range l.ddl() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("create schema: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `TRUNCATE TABLE `+l.QualifiedTable()); err != nil {
		return 0, fmt.Errorf("truncate: %w", err)
	}

	n, err := copyRows(ctx, tx, l.Schema, l.Table, body)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

func copyRows(ctx context.Context, tx *sql.Tx, schema, table string, body io.Reader) (int64, error) {
	stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema(schema, table, model.FormattedColumns...))
	if err != nil {
		return 0, fmt.Errorf("prepare copy: %w", err)
	}
	defer stmt.Close()

	r := csv.NewReader(body)
	r.FieldsPerRecord = len(model.FormattedColumns)
	r.ReuseRecord = true

	var n int64
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("read csv: %w", err)
		}
		// Line numbers count the discarded header.
		line, _ := r.FieldPos(0)
		args, err := rowValues(rec)
		if err != nil {
			return 0, fmt.Errorf("line %d: %w", line+1, err)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("copy line %d: %w", line+1, err)
		}
		n++
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return 0, fmt.Errorf("flush copy: %w", err)
	}
	return n, nil
}

// skipHeader discards the first line of the stream.
func skipHeader(r *bufio.Reader) error {
	_, err := r.ReadString('\n')
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	return nil
}

// rowValues validates one CSV record and converts it to copy arguments. Empty fields become NULL.
func rowValues(rec []string) ([]interface{}, error) {
	args := make([]interface{}, len(rec))
	for i, f := range rec {
		if f == "" {
			continue
		}
		col := model.FormattedColumns[i]
		switch col {
		case "timestamp", "volume":
			v, err := strconv.ParseInt(f, 10, 64)
			if err != nil {
				// Spark may render integral columns as doubles.
				fv, ferr := strconv.ParseFloat(f, 64)
				if ferr != nil || fv != float64(int64(fv)) {
					return nil, fmt.Errorf("%s: %q is not an integer", col, f)
				}
				v = int64(fv)
			}
			args[i] = v
		case "date":
			d, err := time.Parse("2006-01-02", f)
			if err != nil {
				return nil, fmt.Errorf("date: %q is not YYYY-MM-DD", f)
			}
			args[i] = d.Format("2006-01-02")
		default:
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: %q is not a number", col, f)
			}
			args[i] = v
		}
	}
	return args, nil
}
