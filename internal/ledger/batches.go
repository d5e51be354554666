package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const batchColumns = `id, user_id, num_calls, num_completed, num_failed, status, created_at, completed_at`

// CreateBatch inserts a new batch rollup row and returns it.
func (s *Store) CreateBatch(ctx context.Context, userID string, numCalls int) (*Batch, error) {
	if numCalls <= 0 {
		return nil, fmt.Errorf("batch must contain at least one call")
	}
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := s.execWithRetry(ctx, `
		INSERT INTO batches (id, user_id, num_calls, status, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, userID, numCalls, string(BatchProcessing), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("insert batch: %w", err)
	}
	return s.GetBatch(ctx, id)
}

// GetBatch loads a batch by ID.
func (s *Store) GetBatch(ctx context.Context, id string) (*Batch, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = ?`, id)
	batch, err := scanBatch(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load batch %s: %w", id, err)
	}
	return batch, nil
}

// ListBatches returns every batch, newest first.
func (s *Store) ListBatches(ctx context.Context) ([]*Batch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+batchColumns+` FROM batches ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var batches []*Batch
	for rows.Next() {
		batch, err := scanBatchRows(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}

// RecordBatchResult folds one call's terminal outcome into its batch rollup.
// Each call is counted exactly once: the call row carries a counted flag that
// is flipped in the same transaction as the counter increment, so repeated
// calls for the same outcome are no-ops. When the last call is counted the
// batch is marked completed.
func (s *Store) RecordBatchResult(ctx context.Context, callID int64, succeeded bool) error {
	return retryOnBusy(ctx, func() error {
		return s.recordBatchResult(ctx, callID, succeeded)
	})
}

func (s *Store) recordBatchResult(ctx context.Context, callID int64, succeeded bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch rollup: %w", err)
	}
	defer tx.Rollback()

	var batchID sql.NullString
	var status string
	var counted int
	err = tx.QueryRowContext(ctx,
		`SELECT batch_id, status, batch_counted FROM calls WHERE id = ?`, callID).
		Scan(&batchID, &status, &counted)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load call %d for batch rollup: %w", callID, err)
	}
	if !batchID.Valid || batchID.String == "" {
		return nil
	}
	if counted != 0 {
		return nil
	}
	if !Status(status).IsTerminal() {
		return fmt.Errorf("call %d is %s, not terminal", callID, status)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE calls SET batch_counted = 1 WHERE id = ? AND batch_counted = 0`, callID)
	if err != nil {
		return fmt.Errorf("mark call %d counted: %w", callID, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return nil
	}

	column := "num_failed"
	if succeeded {
		column = "num_completed"
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE batches SET `+column+` = `+column+` + 1 WHERE id = ?`, batchID.String); err != nil {
		return fmt.Errorf("increment batch %s: %w", batchID.String, err)
	}

	now := formatTime(time.Now().UTC())
	if _, err := tx.ExecContext(ctx, `
		UPDATE batches
		SET status = ?, completed_at = ?
		WHERE id = ? AND status = ? AND num_completed + num_failed >= num_calls`,
		string(BatchCompleted), now, batchID.String, string(BatchProcessing)); err != nil {
		return fmt.Errorf("finalize batch %s: %w", batchID.String, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch rollup: %w", err)
	}
	return nil
}

func scanBatch(row *sql.Row) (*Batch, error) {
	var batch Batch
	var completedAt sql.NullString
	var createdAt string
	err := row.Scan(&batch.ID, &batch.UserID, &batch.NumCalls, &batch.NumCompleted,
		&batch.NumFailed, &batch.Status, &createdAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if parsed := parseTimeString(sql.NullString{String: createdAt, Valid: true}); parsed != nil {
		batch.CreatedAt = *parsed
	}
	batch.CompletedAt = parseTimeString(completedAt)
	return &batch, nil
}

func scanBatchRows(rows *sql.Rows) (*Batch, error) {
	var batch Batch
	var completedAt sql.NullString
	var createdAt string
	err := rows.Scan(&batch.ID, &batch.UserID, &batch.NumCalls, &batch.NumCompleted,
		&batch.NumFailed, &batch.Status, &createdAt, &completedAt)
	if err != nil {
		return nil, fmt.Errorf("scan batch: %w", err)
	}
	if parsed := parseTimeString(sql.NullString{String: createdAt, Valid: true}); parsed != nil {
		batch.CreatedAt = *parsed
	}
	batch.CompletedAt = parseTimeString(completedAt)
	return &batch, nil
}
