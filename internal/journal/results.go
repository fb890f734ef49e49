package journal

import (
	"context"
	"database/sql"
	"time"

	"github.com/dl-alexandre/icdl/internal/types"
	"github.com/dl-alexandre/icdl/internal/utils"
)

// RecordResult appends one task result. A task recorded twice in the same
// run keeps its latest result.
func (d *DB) RecordResult(ctx context.Context, runID string, result types.TransferResult) error {
	var code, message sql.NullString
	if result.Err != nil {
		code = sql.NullString{String: utils.ErrorCode(result.Err), Valid: true}
		message = sql.NullString{String: result.Err.Error(), Valid: true}
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO results (
			run_id, relative_path, entry_id, status, bytes_written, expected_size, replaced, range_fallback,
			error_code, error_message, duration_ms, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, relative_path) DO UPDATE SET
			entry_id=excluded.entry_id,
			status=excluded.status,
			bytes_written=excluded.bytes_written,
			expected_size=excluded.expected_size,
			replaced=excluded.replaced,
			range_fallback=excluded.range_fallback,
			error_code=excluded.error_code,
			error_message=excluded.error_message,
			duration_ms=excluded.duration_ms,
			recorded_at=excluded.recorded_at
	`, runID, result.Task.RelPath, result.Task.Entry.ID, string(result.Status), result.BytesWritten,
		result.Task.ExpectedSize, boolToInt(result.Replaced), boolToInt(result.RangeFallback),
		code, message, result.Duration.Milliseconds(), time.Now().UnixMilli())
	return err
}

// ListResults returns the results of a run ordered by path. With
// failedOnly set, only failed tasks are returned.
func (d *DB) ListResults(ctx context.Context, runID string, failedOnly bool) (results []Result, err error) {
	query := `
		SELECT run_id, relative_path, entry_id, status, bytes_written, expected_size, replaced, range_fallback,
		       error_code, error_message, duration_ms, recorded_at
		FROM results WHERE run_id = ?`
	args := []interface{}{runID}
	if failedOnly {
		query += ` AND status = ?`
		args = append(args, string(types.StatusFailed))
	}
	query += ` ORDER BY relative_path`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func scanResult(scanner interface {
	Scan(dest ...interface{}) error
}) (Result, error) {
	var r Result
	var replaced, fallback int
	var code, message sql.NullString
	var recordedAt int64
	err := scanner.Scan(&r.RunID, &r.RelativePath, &r.EntryID, &r.Status, &r.BytesWritten, &r.ExpectedSize,
		&replaced, &fallback, &code, &message, &r.DurationMs, &recordedAt)
	if err != nil {
		return Result{}, err
	}
	r.Replaced = replaced != 0
	r.RangeFallback = fallback != 0
	r.ErrorCode = code.String
	r.ErrorMessage = message.String
	r.RecordedAt = time.UnixMilli(recordedAt).UTC()
	return r, nil
}
