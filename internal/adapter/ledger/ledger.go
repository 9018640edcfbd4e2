// Package ledger records which archive jobs have already produced a product,
// backed by SQLite.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS processed_jobs (
    job_key     TEXT PRIMARY KEY,
    run_id      TEXT NOT NULL,
    output_path TEXT NOT NULL,
    recorded_at TEXT NOT NULL
)`

// Entry is one recorded job.
type Entry struct {
	Key        string
	RunID      string
	Output     string
	RecordedAt time.Time
}

// Ledger implements pipeline.Ledger.
type Ledger struct {
	db   *sql.DB
	path string
}

// Open creates or connects to the ledger database at path.
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create ledger schema: %w", err)
	}

	return &Ledger{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Seen reports whether key has been recorded.
func (l *Ledger) Seen(ctx context.Context, key string) (bool, error) {
	var one int
	err := l.db.QueryRowContext(ctx, `SELECT 1 FROM processed_jobs WHERE job_key = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query ledger: %w", err)
	}
	return true, nil
}

// Record stores key with the run that produced output. Recording an existing
// key replaces its run and output.
func (l *Ledger) Record(ctx context.Context, key, runID, output string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO processed_jobs (job_key, run_id, output_path, recorded_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(job_key) DO UPDATE SET
            run_id = excluded.run_id,
            output_path = excluded.output_path,
            recorded_at = excluded.recorded_at`,
		key, runID, output, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record ledger entry: %w", err)
	}
	return nil
}

// Get returns the entry recorded for key.
func (l *Ledger) Get(ctx context.Context, key string) (Entry, bool, error) {
	var e Entry
	var recorded string
	err := l.db.QueryRowContext(ctx,
		`SELECT job_key, run_id, output_path, recorded_at FROM processed_jobs WHERE job_key = ?`, key,
	).Scan(&e.Key, &e.RunID, &e.Output, &recorded)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("query ledger: %w", err)
	}
	e.RecordedAt, err = time.Parse(time.RFC3339Nano, recorded)
	if err != nil {
		return Entry{}, false, fmt.Errorf("parse recorded_at %q: %w", recorded, err)
	}
	return e, true, nil
}

// CheckReadiness pings the database.
func (l *Ledger) CheckReadiness(ctx context.Context) error {
	if err := l.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ledger %s: %w", l.path, err)
	}
	return nil
}
