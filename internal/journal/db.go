// Package journal keeps an append-only sqlite record of runs and their
// per-task results. Resume decisions never read it.
package journal

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

type DB struct {
	db *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	instance := &DB{db: db}
	if err := instance.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return instance, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) Migrate(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, schemaSQL)
	return err
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	dest_root TEXT NOT NULL,
	selectors TEXT,
	started_at INTEGER NOT NULL,
	finished_at INTEGER,
	completed INTEGER NOT NULL DEFAULT 0,
	skipped INTEGER NOT NULL DEFAULT 0,
	resumed INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	bytes_transferred INTEGER NOT NULL DEFAULT 0,
	interrupted INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS results (
	run_id TEXT NOT NULL,
	relative_path TEXT NOT NULL,
	entry_id TEXT NOT NULL,
	status TEXT NOT NULL,
	bytes_written INTEGER NOT NULL DEFAULT 0,
	expected_size INTEGER NOT NULL DEFAULT 0,
	replaced INTEGER NOT NULL DEFAULT 0,
	range_fallback INTEGER NOT NULL DEFAULT 0,
	error_code TEXT,
	error_message TEXT,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	recorded_at INTEGER NOT NULL,
	PRIMARY KEY (run_id, relative_path),
	FOREIGN KEY (run_id) REFERENCES runs(id)
);

CREATE INDEX IF NOT EXISTS idx_results_status ON results(run_id, status);
`
