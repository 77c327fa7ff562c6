// Package catalog keeps a SQLite record of dedispersion runs and the
// candidate pulses each run found.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"dedisp/pkg/dedisp"

	_ "modernc.org/sqlite"
)

// Catalog stores runs and candidates in one SQLite file.
type Catalog struct {
	db *sql.DB
}

// Run describes one searched window.
type Run struct {
	ID         string
	Source     string
	Object     string
	Window     int
	StartTime  float64
	DMMin      float64
	DMMax      float64
	DMTrials   int
	Mean       float64
	Std        float64
	Checksum   uint64
	Computed   int64
	Elapsed    time.Duration
	RecordedAt time.Time
}

// Candidate is a peak stored against its run.
type Candidate struct {
	RunID string
	Rank  int
	dedisp.Peak
}

// Open opens (or creates) the catalog at path and ensures the schema exists.
func Open(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("catalog: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("catalog: ensure dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Catalog{db: db}, nil
}

func initSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    source TEXT,
    object TEXT,
    window_index INTEGER,
    start_time REAL,
    dm_min REAL,
    dm_max REAL,
    dm_trials INTEGER,
    mean REAL,
    std REAL,
    checksum TEXT,
    computed INTEGER,
    elapsed_ms INTEGER,
    recorded_at INTEGER
);
CREATE TABLE IF NOT EXISTS candidates (
    run_id TEXT NOT NULL REFERENCES runs(id),
    peak_rank INTEGER NOT NULL,
    dm_index INTEGER,
    time_index INTEGER,
    dm REAL,
    t0 REAL,
    significance REAL,
    amplitude REAL,
    PRIMARY KEY (run_id, peak_rank)
);
CREATE INDEX IF NOT EXISTS candidates_significance ON candidates(significance);`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("catalog: schema: %w", err)
	}
	return nil
}

func (c *Catalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// RecordRun stores run and its peaks in one transaction. An empty run.ID is
// replaced by a new UUID, and the stored ID is returned.
func (c *Catalog) RecordRun(ctx context.Context, run Run, peaks []dedisp.Peak) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.RecordedAt.IsZero() {
		run.RecordedAt = time.Now().UTC()
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs
(id, source, object, window_index, start_time, dm_min, dm_max, dm_trials, mean, std, checksum, computed, elapsed_ms, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.Object, run.Window, run.StartTime, run.DMMin, run.DMMax, run.DMTrials,
		run.Mean, run.Std, fmt.Sprintf("%016x", run.Checksum), run.Computed, run.Elapsed.Milliseconds(),
		run.RecordedAt.UnixMilli())
	if err != nil {
		return "", fmt.Errorf("catalog: insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO candidates
(run_id, peak_rank, dm_index, time_index, dm, t0, significance, amplitude)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("catalog: prepare: %w", err)
	}
	defer stmt.Close()
	for rank, p := range peaks {
		if _, err := stmt.ExecContext(ctx, run.ID, rank, p.DMIndex, p.TimeIndex, p.DM, p.Time, p.Significance, p.Amplitude); err != nil {
			return "", fmt.Errorf("catalog: insert candidate %d: %w", rank, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("catalog: commit: %w", err)
	}
	return run.ID, nil
}

// Candidates returns every stored candidate with significance of at least
// minSigma, strongest first.
func (c *Catalog) Candidates(ctx context.Context, minSigma float64) ([]Candidate, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT run_id, peak_rank, dm_index, time_index, dm, t0, significance, amplitude
FROM candidates WHERE significance >= ?
ORDER BY significance DESC, run_id, peak_rank`, minSigma)
	if err != nil {
		return nil, fmt.Errorf("catalog: query candidates: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var cd Candidate
		if err := rows.Scan(&cd.RunID, &cd.Rank, &cd.DMIndex, &cd.TimeIndex, &cd.DM, &cd.Time, &cd.Significance, &cd.Amplitude); err != nil {
			return nil, fmt.Errorf("catalog: scan candidate: %w", err)
		}
		out = append(out, cd)
	}
	return out, rows.Err()
}

// Runs returns the stored runs in recording order.
func (c *Catalog) Runs(ctx context.Context) ([]Run, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, source, object, window_index, start_time, dm_min, dm_max, dm_trials,
mean, std, checksum, computed, elapsed_ms, recorded_at
FROM runs ORDER BY recorded_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("catalog: query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var checksum string
		var elapsedMs, recordedMs int64
		if err := rows.Scan(&r.ID, &r.Source, &r.Object, &r.Window, &r.StartTime, &r.DMMin, &r.DMMax, &r.DMTrials,
			&r.Mean, &r.Std, &checksum, &r.Computed, &elapsedMs, &recordedMs); err != nil {
			return nil, fmt.Errorf("catalog: scan run: %w", err)
		}
		if _, err := fmt.Sscanf(checksum, "%x", &r.Checksum); err != nil {
			return nil, fmt.Errorf("catalog: run %s checksum %q: %w", r.ID, checksum, err)
		}
		r.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		r.RecordedAt = time.UnixMilli(recordedMs).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
