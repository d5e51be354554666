package ledger

import (
	"context"
	"errors"
	"testing"
)

func TestReplaceTranscriptOverwrites(t *testing.T) {
	store := newTestStore(t)
	call := newTestCall(t, store)
	ctx := context.Background()

	first := []TranscriptSegment{
		{SpeakerLabel: "agent", StartTime: 0, EndTime: 4.5, Text: "hello", Confidence: 0.92},
		{SpeakerLabel: "customer", StartTime: 4.5, EndTime: 9.1, Text: "hi there", Confidence: 0.88},
	}
	if err := store.ReplaceTranscript(ctx, call.ID, first); err != nil {
		t.Fatalf("write transcript: %v", err)
	}

	second := []TranscriptSegment{
		{SpeakerLabel: "agent", StartTime: 0, EndTime: 3.2, Text: "good morning", Confidence: 0.95},
	}
	if err := store.ReplaceTranscript(ctx, call.ID, second); err != nil {
		t.Fatalf("rewrite transcript: %v", err)
	}

	segments, err := store.Transcript(ctx, call.ID)
	if err != nil {
		t.Fatalf("load transcript: %v", err)
	}
	if len(segments) != 1 || segments[0].Text != "good morning" {
		t.Fatalf("expected replaced transcript, got %+v", segments)
	}
}

func TestUpdateTranscriptEmotions(t *testing.T) {
	store := newTestStore(t)
	call := newTestCall(t, store)
	ctx := context.Background()

	if err := store.ReplaceTranscript(ctx, call.ID, []TranscriptSegment{
		{SpeakerLabel: "customer", StartTime: 0, EndTime: 2, Text: "this is unacceptable", Confidence: 0.9},
	}); err != nil {
		t.Fatalf("write transcript: %v", err)
	}
	segments, err := store.Transcript(ctx, call.ID)
	if err != nil {
		t.Fatalf("load transcript: %v", err)
	}

	if err := store.UpdateTranscriptEmotions(ctx, map[int64]string{segments[0].ID: "angry"}); err != nil {
		t.Fatalf("update emotions: %v", err)
	}
	segments, err = store.Transcript(ctx, call.ID)
	if err != nil {
		t.Fatalf("reload transcript: %v", err)
	}
	if segments[0].Emotion != "angry" {
		t.Fatalf("expected angry, got %q", segments[0].Emotion)
	}
}

func TestSaveEvaluationUpserts(t *testing.T) {
	store := newTestStore(t)
	call := newTestCall(t, store)
	ctx := context.Background()

	if _, err := store.EvaluationForCall(ctx, call.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := store.SaveEvaluation(ctx, &Evaluation{
		CallID:        call.ID,
		OverallScore:  71.5,
		RawOutputJSON: `{"score":71.5}`,
		ModelUsed:     "gpt-4o-mini",
	}); err != nil {
		t.Fatalf("save evaluation: %v", err)
	}
	if err := store.SaveEvaluation(ctx, &Evaluation{
		CallID:        call.ID,
		OverallScore:  84.0,
		RawOutputJSON: `{"score":84.0}`,
		ModelUsed:     "gpt-4o-mini",
	}); err != nil {
		t.Fatalf("rescore evaluation: %v", err)
	}

	eval, err := store.EvaluationForCall(ctx, call.ID)
	if err != nil {
		t.Fatalf("load evaluation: %v", err)
	}
	if eval.OverallScore != 84.0 {
		t.Fatalf("expected rescored value, got %v", eval.OverallScore)
	}
}

func TestHealthSummaryCounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	queued := newTestCall(t, store)
	_ = queued
	processing := newTestCall(t, store)
	if _, err := store.ClaimForProcessing(ctx, processing.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	summary, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if summary.Total != 2 || summary.Queued != 1 || summary.Processing != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}
