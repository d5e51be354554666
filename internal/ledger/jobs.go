package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const jobColumns = `id, call_id, stage, status, worker_id, started_at, finished_at,
	error_message, artifact_json, created_at`

// BeginStage records the start of a stage attempt for a call. The insert is
// guarded by a partial unique index so that at most one in-progress entry can
// exist per call; losing the race returns ErrConflict without side effects.
func (s *Store) BeginStage(ctx context.Context, callID int64, stage, workerID string) (*Job, error) {
	now := time.Now().UTC()
	var jobID int64
	err := retryOnBusy(ctx, func() error {
		result, execErr := s.db.ExecContext(ctx, `
			INSERT INTO processing_jobs (call_id, stage, status, worker_id, started_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			callID, stage, string(JobInProgress), nullableString(workerID),
			formatTime(now), formatTime(now),
		)
		if execErr != nil {
			return execErr
		}
		jobID, execErr = result.LastInsertId()
		return execErr
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("begin stage %s for call %d: %w", stage, callID, err)
	}
	return s.GetJob(ctx, jobID)
}

// CompleteStage finishes an in-progress job, recording the stage artifact as
// JSON. The update is compare-and-swap on the in-progress status; completing
// an already completed job is a no-op so retried deliveries stay idempotent.
func (s *Store) CompleteStage(ctx context.Context, jobID int64, artifactJSON string) error {
	now := formatTime(time.Now().UTC())
	result, err := s.execWithRetry(ctx, `
		UPDATE processing_jobs
		SET status = ?, finished_at = ?, artifact_json = ?
		WHERE id = ? AND status = ?`,
		string(JobCompleted), now, nullableString(artifactJSON),
		jobID, string(JobInProgress),
	)
	if err != nil {
		return fmt.Errorf("complete job %d: %w", jobID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete job %d: %w", jobID, err)
	}
	if affected == 0 {
		job, getErr := s.GetJob(ctx, jobID)
		if getErr != nil {
			return getErr
		}
		if job.Status == JobCompleted {
			return nil
		}
		return ErrConflict
	}
	return nil
}

// FailStage finishes an in-progress job with an error message. Like
// CompleteStage the transition is compare-and-swap, and failing a job that
// already failed with the same reason is a no-op.
func (s *Store) FailStage(ctx context.Context, jobID int64, reason string) error {
	now := formatTime(time.Now().UTC())
	result, err := s.execWithRetry(ctx, `
		UPDATE processing_jobs
		SET status = ?, finished_at = ?, error_message = ?
		WHERE id = ? AND status = ?`,
		string(JobFailed), now, nullableString(reason),
		jobID, string(JobInProgress),
	)
	if err != nil {
		return fmt.Errorf("fail job %d: %w", jobID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("fail job %d: %w", jobID, err)
	}
	if affected == 0 {
		job, getErr := s.GetJob(ctx, jobID)
		if getErr != nil {
			return getErr
		}
		if job.Terminal() {
			return nil
		}
		return ErrConflict
	}
	return nil
}

// GetJob loads a single ledger entry by ID.
func (s *Store) GetJob(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM processing_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load job %d: %w", id, err)
	}
	return job, nil
}

// JobsForCall returns a call's full ledger history in attempt order.
func (s *Store) JobsForCall(ctx context.Context, callID int64) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM processing_jobs WHERE call_id = ? ORDER BY id ASC`, callID)
	if err != nil {
		return nil, fmt.Errorf("list jobs for call %d: %w", callID, err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

// InProgressJobs returns every in-progress ledger entry across all calls.
// After a crash this is the set of orphaned attempts the reaper must settle.
func (s *Store) InProgressJobs(ctx context.Context) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM processing_jobs WHERE status = ? ORDER BY started_at ASC`,
		string(JobInProgress))
	if err != nil {
		return nil, fmt.Errorf("list in-progress jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

// InProgressJob returns the call's current in-progress entry, or nil.
func (s *Store) InProgressJob(ctx context.Context, callID int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM processing_jobs
		WHERE call_id = ? AND status = ?`,
		callID, string(JobInProgress))
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load in-progress job for call %d: %w", callID, err)
	}
	return job, nil
}

// CompletedStages returns the set of stage names that have a completed ledger
// entry for the call. The scheduler uses this to resume work after a restart.
func (s *Store) CompletedStages(ctx context.Context, callID int64) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT stage FROM processing_jobs
		WHERE call_id = ? AND status = ?`,
		callID, string(JobCompleted))
	if err != nil {
		return nil, fmt.Errorf("list completed stages for call %d: %w", callID, err)
	}
	defer rows.Close()

	completed := make(map[string]bool)
	for rows.Next() {
		var stage string
		if err := rows.Scan(&stage); err != nil {
			return nil, fmt.Errorf("scan completed stage: %w", err)
		}
		completed[stage] = true
	}
	return completed, rows.Err()
}

// CountStageAttempts returns how many finished attempts exist for a stage of
// a call, split into failures. In-progress entries do not count.
func (s *Store) CountStageAttempts(ctx context.Context, callID int64, stage string) (failed int, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM processing_jobs
		WHERE call_id = ? AND stage = ? AND status = ?`,
		callID, stage, string(JobFailed))
	if err := row.Scan(&failed); err != nil {
		return 0, fmt.Errorf("count attempts for call %d stage %s: %w", callID, stage, err)
	}
	return failed, nil
}

// StageArtifact returns the artifact JSON recorded by the most recent
// completed attempt of a stage, or empty when the stage has not completed.
func (s *Store) StageArtifact(ctx context.Context, callID int64, stage string) (string, error) {
	var artifact sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT artifact_json FROM processing_jobs
		WHERE call_id = ? AND stage = ? AND status = ?
		ORDER BY id DESC LIMIT 1`,
		callID, stage, string(JobCompleted)).Scan(&artifact)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load artifact for call %d stage %s: %w", callID, stage, err)
	}
	return artifact.String, nil
}

func scanJob(row *sql.Row) (*Job, error) {
	var job Job
	var workerID, finishedAt, errorMessage, artifactJSON sql.NullString
	var status, startedAt, createdAt string

	err := row.Scan(
		&job.ID, &job.CallID, &job.Stage, &status, &workerID,
		&startedAt, &finishedAt, &errorMessage, &artifactJSON, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	fillJob(&job, status, workerID, startedAt, finishedAt, errorMessage, artifactJSON, createdAt)
	return &job, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		var job Job
		var workerID, finishedAt, errorMessage, artifactJSON sql.NullString
		var status, startedAt, createdAt string

		err := rows.Scan(
			&job.ID, &job.CallID, &job.Stage, &status, &workerID,
			&startedAt, &finishedAt, &errorMessage, &artifactJSON, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		fillJob(&job, status, workerID, startedAt, finishedAt, errorMessage, artifactJSON, createdAt)
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

func fillJob(job *Job, status string, workerID sql.NullString, startedAt string,
	finishedAt, errorMessage, artifactJSON sql.NullString, createdAt string,
) {
	job.Status = JobStatus(status)
	job.WorkerID = workerID.String
	job.ErrorMessage = errorMessage.String
	job.ArtifactJSON = artifactJSON.String
	if parsed := parseTimeString(sql.NullString{String: startedAt, Valid: true}); parsed != nil {
		job.StartedAt = *parsed
	}
	job.FinishedAt = parseTimeString(finishedAt)
	if parsed := parseTimeString(sql.NullString{String: createdAt, Valid: true}); parsed != nil {
		job.CreatedAt = *parsed
	}
}
