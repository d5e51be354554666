package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const callColumns = `id, user_id, batch_id, template_name, source_path, original_filename,
	file_size_bytes, duration_seconds, status, cancel_requested, batch_counted,
	processing_started_at, processing_completed_at, error_message, metadata_json,
	created_at, updated_at`

// CreateCall inserts a new queued call and returns it with its assigned ID.
func (s *Store) CreateCall(ctx context.Context, call *Call) (*Call, error) {
	now := time.Now().UTC()
	result, err := s.execWithRetry(ctx, `
		INSERT INTO calls (
			user_id, batch_id, template_name, source_path, original_filename,
			file_size_bytes, duration_seconds, status, metadata_json,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		call.UserID,
		nullableString(call.BatchID),
		call.TemplateName,
		call.SourcePath,
		nullableString(call.OriginalFilename),
		call.FileSizeBytes,
		call.DurationSeconds,
		string(StatusQueued),
		nullableString(call.MetadataJSON),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert call: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read call id: %w", err)
	}
	return s.GetCall(ctx, id)
}

// GetCall loads a single call by ID.
func (s *Store) GetCall(ctx context.Context, id int64) (*Call, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM calls WHERE id = ?`, id)
	call, err := scanCall(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load call %d: %w", id, err)
	}
	return call, nil
}

// ListCalls returns calls matching the given statuses, oldest first.
// An empty status list returns every call.
func (s *Store) ListCalls(ctx context.Context, statuses ...Status) ([]*Call, error) {
	query := `SELECT ` + callColumns + ` FROM calls`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()
	return scanCalls(rows)
}

// ListBatchCalls returns every call belonging to a batch.
func (s *Store) ListBatchCalls(ctx context.Context, batchID string) ([]*Call, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+callColumns+` FROM calls WHERE batch_id = ? ORDER BY id ASC`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list batch calls: %w", err)
	}
	defer rows.Close()
	return scanCalls(rows)
}

// NextQueued returns the oldest queued call whose cancellation has not been
// requested, or nil when the queue is empty.
func (s *Store) NextQueued(ctx context.Context) (*Call, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+callColumns+` FROM calls
		WHERE status = ? AND cancel_requested = 0
		ORDER BY created_at ASC, id ASC
		LIMIT 1`, string(StatusQueued))
	call, err := scanCall(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next queued call: %w", err)
	}
	return call, nil
}

// ClaimForProcessing transitions a call from queued to processing. The
// transition is compare-and-swap: if the call is no longer queued the claim
// fails with ErrConflict and another worker owns it.
func (s *Store) ClaimForProcessing(ctx context.Context, id int64) (*Call, error) {
	now := time.Now().UTC()
	result, err := s.execWithRetry(ctx, `
		UPDATE calls
		SET status = ?, processing_started_at = ?, error_message = NULL, updated_at = ?
		WHERE id = ? AND status = ? AND cancel_requested = 0`,
		string(StatusProcessing), formatTime(now), formatTime(now),
		id, string(StatusQueued),
	)
	if err != nil {
		return nil, fmt.Errorf("claim call %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim call %d: %w", id, err)
	}
	if affected == 0 {
		return nil, ErrConflict
	}
	return s.GetCall(ctx, id)
}

// MarkCompleted transitions a processing call to completed.
func (s *Store) MarkCompleted(ctx context.Context, id int64) error {
	return s.transition(ctx, id, StatusProcessing, StatusCompleted, "")
}

// MarkFailed transitions a processing call to failed with the given reason.
func (s *Store) MarkFailed(ctx context.Context, id int64, reason string) error {
	return s.transition(ctx, id, StatusProcessing, StatusFailed, reason)
}

// MarkCancelled transitions a processing call to cancelled. Used by workers
// honoring a cancellation request at a stage boundary.
func (s *Store) MarkCancelled(ctx context.Context, id int64) error {
	return s.transition(ctx, id, StatusProcessing, StatusCancelled, ReasonCancelled)
}

func (s *Store) transition(ctx context.Context, id int64, from, to Status, reason string) error {
	now := time.Now().UTC()
	result, err := s.execWithRetry(ctx, `
		UPDATE calls
		SET status = ?, processing_completed_at = ?, error_message = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to), formatTime(now), nullableString(reason), formatTime(now),
		id, string(from),
	)
	if err != nil {
		return fmt.Errorf("transition call %d to %s: %w", id, to, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition call %d to %s: %w", id, to, err)
	}
	if affected == 0 {
		current, getErr := s.GetCall(ctx, id)
		if getErr != nil {
			return getErr
		}
		if current.Status == to {
			return nil
		}
		return ErrConflict
	}
	return nil
}

// RequestCancel asks for a call to stop. Queued calls are cancelled
// immediately and counted into their batch rollup; processing calls have the
// cancel flag set and are cancelled by their worker at the next stage
// boundary. Terminal calls are unchanged and the request fails with
// ErrConflict.
func (s *Store) RequestCancel(ctx context.Context, id int64) (*Call, error) {
	now := formatTime(time.Now().UTC())

	result, err := s.execWithRetry(ctx, `
		UPDATE calls
		SET status = ?, cancel_requested = 1, error_message = ?,
		    processing_completed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(StatusCancelled), ReasonCancelled, now, now,
		id, string(StatusQueued),
	)
	if err != nil {
		return nil, fmt.Errorf("cancel call %d: %w", id, err)
	}
	if affected, _ := result.RowsAffected(); affected > 0 {
		// The call went terminal without ever being claimed, so no worker
		// will fold it into its batch. Do it here or the batch never closes.
		if err := s.RecordBatchResult(ctx, id, false); err != nil {
			return nil, err
		}
		return s.GetCall(ctx, id)
	}

	result, err = s.execWithRetry(ctx, `
		UPDATE calls
		SET cancel_requested = 1, updated_at = ?
		WHERE id = ? AND status = ?`,
		now, id, string(StatusProcessing),
	)
	if err != nil {
		return nil, fmt.Errorf("cancel call %d: %w", id, err)
	}
	if affected, _ := result.RowsAffected(); affected > 0 {
		return s.GetCall(ctx, id)
	}

	current, err := s.GetCall(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == StatusCancelled {
		return current, nil
	}
	return nil, ErrConflict
}

// RetryCall resets a failed call back to queued so the scheduler picks it up
// again. Completed stage history is preserved, so finished stages are skipped.
func (s *Store) RetryCall(ctx context.Context, id int64) (*Call, error) {
	now := formatTime(time.Now().UTC())
	result, err := s.execWithRetry(ctx, `
		UPDATE calls
		SET status = ?, cancel_requested = 0, error_message = NULL,
		    processing_started_at = NULL, processing_completed_at = NULL,
		    updated_at = ?
		WHERE id = ? AND status = ?`,
		string(StatusQueued), now, id, string(StatusFailed),
	)
	if err != nil {
		return nil, fmt.Errorf("retry call %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("retry call %d: %w", id, err)
	}
	if affected == 0 {
		if _, getErr := s.GetCall(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrConflict
	}
	return s.GetCall(ctx, id)
}

// RequeueProcessing moves a processing call back to queued, preserving its
// completed stage history. The reaper uses this after settling an orphaned
// attempt whose retry budget still has room.
func (s *Store) RequeueProcessing(ctx context.Context, id int64) error {
	now := formatTime(time.Now().UTC())
	result, err := s.execWithRetry(ctx, `
		UPDATE calls
		SET status = ?, processing_started_at = NULL, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(StatusQueued), now, id, string(StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("requeue call %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("requeue call %d: %w", id, err)
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}

// StuckProcessingCalls returns processing calls whose run began before the
// cutoff. These are candidates for the reaper and for operator cleanup.
func (s *Store) StuckProcessingCalls(ctx context.Context, cutoff time.Time) ([]*Call, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+callColumns+` FROM calls
		WHERE status = ? AND processing_started_at IS NOT NULL AND processing_started_at < ?
		ORDER BY processing_started_at ASC`,
		string(StatusProcessing), formatTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("list stuck calls: %w", err)
	}
	defer rows.Close()
	return scanCalls(rows)
}

// UpdateCallMedia records probed media attributes on a call.
func (s *Store) UpdateCallMedia(ctx context.Context, id int64, durationSeconds int, fileSizeBytes int64) error {
	now := formatTime(time.Now().UTC())
	_, err := s.execWithRetry(ctx, `
		UPDATE calls SET duration_seconds = ?, file_size_bytes = ?, updated_at = ?
		WHERE id = ?`,
		durationSeconds, fileSizeBytes, now, id)
	if err != nil {
		return fmt.Errorf("update call media %d: %w", id, err)
	}
	return nil
}

// ClearFinished deletes terminal calls and their associated ledger rows.
// Returns the number of calls removed.
func (s *Store) ClearFinished(ctx context.Context, statuses ...Status) (int64, error) {
	if len(statuses) == 0 {
		statuses = []Status{StatusCompleted, StatusFailed, StatusCancelled}
	}
	args := make([]any, 0, len(statuses))
	for _, status := range statuses {
		if !status.IsTerminal() {
			return 0, fmt.Errorf("cannot clear non-terminal status %q", status)
		}
		args = append(args, string(status))
	}
	in := makePlaceholders(len(statuses))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin clear: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM transcripts WHERE call_id IN (SELECT id FROM calls WHERE status IN (` + in + `))`,
		`DELETE FROM evaluations WHERE call_id IN (SELECT id FROM calls WHERE status IN (` + in + `))`,
		`DELETE FROM processing_jobs WHERE call_id IN (SELECT id FROM calls WHERE status IN (` + in + `))`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return 0, fmt.Errorf("clear call rows: %w", err)
		}
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM calls WHERE status IN (`+in+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("clear calls: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear calls: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit clear: %w", err)
	}
	return removed, nil
}

func scanCall(row *sql.Row) (*Call, error) {
	var call Call
	var batchID, originalFilename, errorMessage, metadataJSON sql.NullString
	var startedAt, completedAt sql.NullString
	var status string
	var cancelRequested, batchCounted int
	var createdAt, updatedAt string

	err := row.Scan(
		&call.ID, &call.UserID, &batchID, &call.TemplateName, &call.SourcePath,
		&originalFilename, &call.FileSizeBytes, &call.DurationSeconds,
		&status, &cancelRequested, &batchCounted,
		&startedAt, &completedAt, &errorMessage, &metadataJSON,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	fillCall(&call, batchID, originalFilename, errorMessage, metadataJSON,
		startedAt, completedAt, status, cancelRequested, batchCounted, createdAt, updatedAt)
	return &call, nil
}

func scanCalls(rows *sql.Rows) ([]*Call, error) {
	var calls []*Call
	for rows.Next() {
		var call Call
		var batchID, originalFilename, errorMessage, metadataJSON sql.NullString
		var startedAt, completedAt sql.NullString
		var status string
		var cancelRequested, batchCounted int
		var createdAt, updatedAt string

		err := rows.Scan(
			&call.ID, &call.UserID, &batchID, &call.TemplateName, &call.SourcePath,
			&originalFilename, &call.FileSizeBytes, &call.DurationSeconds,
			&status, &cancelRequested, &batchCounted,
			&startedAt, &completedAt, &errorMessage, &metadataJSON,
			&createdAt, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		fillCall(&call, batchID, originalFilename, errorMessage, metadataJSON,
			startedAt, completedAt, status, cancelRequested, batchCounted, createdAt, updatedAt)
		calls = append(calls, &call)
	}
	return calls, rows.Err()
}

func fillCall(call *Call, batchID, originalFilename, errorMessage, metadataJSON sql.NullString,
	startedAt, completedAt sql.NullString, status string, cancelRequested, batchCounted int,
	createdAt, updatedAt string,
) {
	call.BatchID = batchID.String
	call.OriginalFilename = originalFilename.String
	call.ErrorMessage = errorMessage.String
	call.MetadataJSON = metadataJSON.String
	call.Status = Status(status)
	call.CancelRequested = cancelRequested != 0
	call.batchCounted = batchCounted != 0
	call.ProcessingStartedAt = parseTimeString(startedAt)
	call.ProcessingCompletedAt = parseTimeString(completedAt)
	if parsed := parseTimeString(sql.NullString{String: createdAt, Valid: true}); parsed != nil {
		call.CreatedAt = *parsed
	}
	if parsed := parseTimeString(sql.NullString{String: updatedAt, Valid: true}); parsed != nil {
		call.UpdatedAt = *parsed
	}
}
