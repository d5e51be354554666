package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ReplaceTranscript atomically replaces a call's transcript segments. The
// transcribe stage writes through this after each successful run so a retried
// attempt never leaves duplicate rows behind.
func (s *Store) ReplaceTranscript(ctx context.Context, callID int64, segments []TranscriptSegment) error {
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transcript write: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `DELETE FROM transcripts WHERE call_id = ?`, callID); err != nil {
			return fmt.Errorf("clear transcript for call %d: %w", callID, err)
		}
		now := formatTime(time.Now().UTC())
		for _, segment := range segments {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO transcripts (call_id, speaker_label, start_time, end_time, text, confidence, emotion, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				callID, segment.SpeakerLabel, segment.StartTime, segment.EndTime,
				segment.Text, segment.Confidence, nullableString(segment.Emotion), now)
			if err != nil {
				return fmt.Errorf("insert transcript segment for call %d: %w", callID, err)
			}
		}
		return tx.Commit()
	})
}

// Transcript returns a call's transcript segments ordered by start time.
func (s *Store) Transcript(ctx context.Context, callID int64) ([]TranscriptSegment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, call_id, speaker_label, start_time, end_time, text, confidence, emotion, created_at
		FROM transcripts WHERE call_id = ? ORDER BY start_time ASC, id ASC`, callID)
	if err != nil {
		return nil, fmt.Errorf("load transcript for call %d: %w", callID, err)
	}
	defer rows.Close()

	var segments []TranscriptSegment
	for rows.Next() {
		var segment TranscriptSegment
		var emotion sql.NullString
		var createdAt string
		err := rows.Scan(&segment.ID, &segment.CallID, &segment.SpeakerLabel,
			&segment.StartTime, &segment.EndTime, &segment.Text,
			&segment.Confidence, &emotion, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scan transcript segment: %w", err)
		}
		segment.Emotion = emotion.String
		if parsed := parseTimeString(sql.NullString{String: createdAt, Valid: true}); parsed != nil {
			segment.CreatedAt = *parsed
		}
		segments = append(segments, segment)
	}
	return segments, rows.Err()
}

// UpdateTranscriptEmotions applies per-segment emotion labels by segment ID.
func (s *Store) UpdateTranscriptEmotions(ctx context.Context, labels map[int64]string) error {
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin emotion update: %w", err)
		}
		defer tx.Rollback()
		for segmentID, label := range labels {
			if _, err := tx.ExecContext(ctx,
				`UPDATE transcripts SET emotion = ? WHERE id = ?`, label, segmentID); err != nil {
				return fmt.Errorf("update emotion for segment %d: %w", segmentID, err)
			}
		}
		return tx.Commit()
	})
}

// SaveEvaluation upserts the scoring result for a call. A call has at most
// one evaluation; rescoring replaces the prior row.
func (s *Store) SaveEvaluation(ctx context.Context, eval *Evaluation) error {
	now := formatTime(time.Now().UTC())
	_, err := s.execWithRetry(ctx, `
		INSERT INTO evaluations (call_id, overall_score, pillar_scores_json, summary, model_used, prompt_template, raw_output_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(call_id) DO UPDATE SET
			overall_score = excluded.overall_score,
			pillar_scores_json = excluded.pillar_scores_json,
			summary = excluded.summary,
			model_used = excluded.model_used,
			prompt_template = excluded.prompt_template,
			raw_output_json = excluded.raw_output_json,
			created_at = excluded.created_at`,
		eval.CallID, eval.OverallScore, nullableString(eval.PillarScoresJSON),
		nullableString(eval.Summary), nullableString(eval.ModelUsed),
		nullableString(eval.PromptTemplate), eval.RawOutputJSON, now)
	if err != nil {
		return fmt.Errorf("save evaluation for call %d: %w", eval.CallID, err)
	}
	return nil
}

// EvaluationForCall returns the scoring result for a call, or ErrNotFound.
func (s *Store) EvaluationForCall(ctx context.Context, callID int64) (*Evaluation, error) {
	var eval Evaluation
	var pillars, summary, model, template sql.NullString
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, call_id, overall_score, pillar_scores_json, summary, model_used, prompt_template, raw_output_json, created_at
		FROM evaluations WHERE call_id = ?`, callID).
		Scan(&eval.ID, &eval.CallID, &eval.OverallScore, &pillars, &summary,
			&model, &template, &eval.RawOutputJSON, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load evaluation for call %d: %w", callID, err)
	}
	eval.PillarScoresJSON = pillars.String
	eval.Summary = summary.String
	eval.ModelUsed = model.String
	eval.PromptTemplate = template.String
	if parsed := parseTimeString(sql.NullString{String: createdAt, Valid: true}); parsed != nil {
		eval.CreatedAt = *parsed
	}
	return &eval, nil
}
