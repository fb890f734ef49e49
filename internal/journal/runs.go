package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/dl-alexandre/icdl/internal/types"
)

// ErrRunNotFound is returned for unknown run IDs
var ErrRunNotFound = errors.New("run not found")

func (d *DB) StartRun(ctx context.Context, runID, destRoot string, selectors []string, startedAt time.Time) error {
	encoded, err := json.Marshal(selectors)
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO runs (id, dest_root, selectors, started_at) VALUES (?, ?, ?, ?)
	`, runID, destRoot, string(encoded), startedAt.UnixMilli())
	return err
}

// FinishRun stores the final counters of a run
func (d *DB) FinishRun(ctx context.Context, summary types.RunSummary) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE runs SET
			finished_at = ?,
			completed = ?,
			skipped = ?,
			resumed = ?,
			failed = ?,
			bytes_transferred = ?,
			interrupted = ?
		WHERE id = ?
	`, summary.StartedAt.Add(summary.Duration).UnixMilli(), summary.Completed, summary.Skipped, summary.Resumed,
		summary.Failed, summary.BytesTransferred, boolToInt(summary.Interrupted), summary.RunID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (d *DB) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, dest_root, selectors, started_at, finished_at, completed, skipped, resumed, failed,
		       bytes_transferred, interrupted
		FROM runs WHERE id = ?
	`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns the newest runs first
func (d *DB) ListRuns(ctx context.Context, limit int) (runs []Run, err error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, dest_root, selectors, started_at, finished_at, completed, skipped, resumed, failed,
		       bytes_transferred, interrupted
		FROM runs ORDER BY started_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

func scanRun(scanner interface {
	Scan(dest ...interface{}) error
}) (Run, error) {
	var run Run
	var selectors sql.NullString
	var startedAt int64
	var finishedAt sql.NullInt64
	var interrupted int
	err := scanner.Scan(&run.ID, &run.DestRoot, &selectors, &startedAt, &finishedAt, &run.Completed, &run.Skipped,
		&run.Resumed, &run.Failed, &run.BytesTransferred, &interrupted)
	if err != nil {
		return Run{}, err
	}
	run.StartedAt = time.UnixMilli(startedAt).UTC()
	if finishedAt.Valid {
		t := time.UnixMilli(finishedAt.Int64).UTC()
		run.FinishedAt = &t
	}
	if selectors.Valid && selectors.String != "" {
		if err := json.Unmarshal([]byte(selectors.String), &run.Selectors); err != nil {
			return Run{}, err
		}
	}
	run.Interrupted = interrupted != 0
	return run, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
