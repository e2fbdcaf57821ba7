package recorder

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"StockFlow/internal/model"
)

// SQLiteRecorder persists run history to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log zerolog.Logger) (*SQLiteRecorder, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets dashboards read while runs write.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pipeline_runs (
			run_id      TEXT PRIMARY KEY,
			pipeline    TEXT NOT NULL,
			symbol      TEXT NOT NULL,
			status      TEXT NOT NULL,
			error_kind  TEXT,
			error       TEXT,
			rows_loaded INTEGER,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_symbol_started ON pipeline_runs(symbol, started_at)`,

		`CREATE TABLE IF NOT EXISTS stage_events (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id      TEXT NOT NULL REFERENCES pipeline_runs(run_id),
			stage       TEXT NOT NULL,
			attempts    INTEGER,
			status      TEXT NOT NULL,
			started_at  INTEGER NOT NULL,
			duration_ms INTEGER,
			detail      TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stage_run ON stage_events(run_id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordRun(res *model.RunResult, errorKind string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var errText string
	if res.Err != nil {
		errText = res.Err.Error()
	}
	if _, err := tx.Exec(`INSERT INTO pipeline_runs
		(run_id, pipeline, symbol, status, error_kind, error, rows_loaded, started_at, finished_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		res.RunID, res.Pipeline, string(res.Symbol), string(res.Status()), errorKind, errText,
		res.RowsLoaded, res.StartedAt.UnixMilli(), res.FinishedAt.UnixMilli(),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, s := range res.Stages {
		if _, err := tx.Exec(`INSERT INTO stage_events
			(run_id, stage, attempts, status, started_at, duration_ms, detail)
			VALUES (?,?,?,?,?,?,?)`,
			res.RunID, s.Stage, s.Attempts, string(s.Status), s.Started.UnixMilli(), s.Duration.Milliseconds(), s.Detail,
		); err != nil {
			return fmt.Errorf("insert stage %s: %w", s.Stage, err)
		}
	}
	return tx.Commit()
}

// RecentRuns returns the latest runs, newest first. An empty symbol matches all symbols.
func (r *SQLiteRecorder) RecentRuns(symbol string, limit int) ([]RunSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT run_id, pipeline, symbol, status, error_kind, error, rows_loaded, started_at, finished_at
		FROM pipeline_runs
		WHERE ? = '' OR symbol = ?
		ORDER BY started_at DESC
		LIMIT ?`, symbol, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			s                 RunSummary
			status            string
			started, finished int64
		)
		if err := rows.Scan(&s.RunID, &s.Pipeline, &s.Symbol, &status, &s.ErrorKind, &s.Error,
			&s.RowsLoaded, &started, &finished); err != nil {
			return nil, err
		}
		s.Status = model.RunStatus(status)
		s.StartedAt = time.UnixMilli(started)
		s.FinishedAt = time.UnixMilli(finished)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
