package api

import (
	"context"
	"testing"

	"callaudit/internal/ledger"
	"callaudit/internal/stage"
	"callaudit/internal/testsupport"
)

func TestCallServiceDescribe(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	call := testsupport.NewQueuedCall(t, store)
	if _, err := store.ClaimForProcessing(ctx, call.ID); err != nil {
		t.Fatalf("ClaimForProcessing: %v", err)
	}
	job, err := store.BeginStage(ctx, call.ID, stage.Normalize, "worker-1")
	if err != nil {
		t.Fatalf("BeginStage: %v", err)
	}
	if err := store.CompleteStage(ctx, job.ID, "{}"); err != nil {
		t.Fatalf("CompleteStage: %v", err)
	}
	if err := store.SaveEvaluation(ctx, &ledger.Evaluation{
		CallID:       call.ID,
		OverallScore: 87.5,
		Summary:      "solid close",
	}); err != nil {
		t.Fatalf("SaveEvaluation: %v", err)
	}

	service := NewCallService(store)
	detail, err := service.Describe(ctx, call.ID)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if detail == nil {
		t.Fatal("expected detail")
	}
	if len(detail.Stages) != 1 || detail.Stages[0].Stage != stage.Normalize {
		t.Fatalf("unexpected stages: %v", detail.Stages)
	}
	if detail.Evaluation == nil || detail.Evaluation.OverallScore != 87.5 {
		t.Fatalf("unexpected evaluation: %+v", detail.Evaluation)
	}
}

func TestCallServiceDescribeMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	detail, err := NewCallService(store).Describe(context.Background(), 9999)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if detail != nil {
		t.Fatalf("expected nil detail, got %+v", detail)
	}
}

func TestCallServiceStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewQueuedCall(t, store)
	processing := testsupport.NewQueuedCall(t, store)
	if _, err := store.ClaimForProcessing(ctx, processing.ID); err != nil {
		t.Fatalf("ClaimForProcessing: %v", err)
	}

	stats, err := NewCallService(store).Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats["queued"] != 1 || stats["processing"] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}
}

func TestCallServiceDescribeBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	batch, err := store.CreateBatch(ctx, "agent-7", 2)
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	for range 2 {
		testsupport.NewQueuedCall(t, store, func(c *ledger.Call) {
			c.BatchID = batch.ID
		})
	}

	detail, err := NewCallService(store).DescribeBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("DescribeBatch: %v", err)
	}
	if detail == nil {
		t.Fatal("expected batch detail")
	}
	if len(detail.Calls) != 2 {
		t.Fatalf("len(Calls) = %d, want 2", len(detail.Calls))
	}
}
