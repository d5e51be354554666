package api

import (
	"context"
	"testing"

	"callaudit/internal/ledger"
	"callaudit/internal/testsupport"
)

func TestRetryFailedCallsByID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	failed := testsupport.NewQueuedCall(t, store)
	if _, err := store.ClaimForProcessing(ctx, failed.ID); err != nil {
		t.Fatalf("ClaimForProcessing: %v", err)
	}
	if err := store.MarkFailed(ctx, failed.ID, "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	queued := testsupport.NewQueuedCall(t, store)

	result, err := RetryFailedCallsByID(ctx, store, []int64{failed.ID, queued.ID, 9999})
	if err != nil {
		t.Fatalf("RetryFailedCallsByID: %v", err)
	}
	if result.UpdatedCount != 1 {
		t.Fatalf("UpdatedCount = %d, want 1", result.UpdatedCount)
	}
	if result.Calls[0].Outcome != RetryUpdated {
		t.Fatalf("failed call outcome = %s, want %s", result.Calls[0].Outcome, RetryUpdated)
	}
	if result.Calls[1].Outcome != RetryNotFailed {
		t.Fatalf("queued call outcome = %s, want %s", result.Calls[1].Outcome, RetryNotFailed)
	}
	if result.Calls[2].Outcome != RetryNotFound {
		t.Fatalf("missing call outcome = %s, want %s", result.Calls[2].Outcome, RetryNotFound)
	}

	refreshed, err := store.GetCall(ctx, failed.ID)
	if err != nil {
		t.Fatalf("GetCall: %v", err)
	}
	if refreshed.Status != ledger.StatusQueued {
		t.Fatalf("retried call status = %s, want %s", refreshed.Status, ledger.StatusQueued)
	}
}

func TestCancelCallsByID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	queued := testsupport.NewQueuedCall(t, store)
	processing := testsupport.NewQueuedCall(t, store)
	if _, err := store.ClaimForProcessing(ctx, processing.ID); err != nil {
		t.Fatalf("ClaimForProcessing: %v", err)
	}
	completed := testsupport.NewQueuedCall(t, store)
	if _, err := store.ClaimForProcessing(ctx, completed.ID); err != nil {
		t.Fatalf("ClaimForProcessing: %v", err)
	}
	if err := store.MarkCompleted(ctx, completed.ID); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	result, err := CancelCallsByID(ctx, store, []int64{queued.ID, processing.ID, completed.ID, 9999})
	if err != nil {
		t.Fatalf("CancelCallsByID: %v", err)
	}
	if result.UpdatedCount != 2 {
		t.Fatalf("UpdatedCount = %d, want 2", result.UpdatedCount)
	}
	if result.Calls[0].Outcome != CancelImmediate {
		t.Fatalf("queued call outcome = %s, want %s", result.Calls[0].Outcome, CancelImmediate)
	}
	if result.Calls[1].Outcome != CancelRequested {
		t.Fatalf("processing call outcome = %s, want %s", result.Calls[1].Outcome, CancelRequested)
	}
	if result.Calls[2].Outcome != CancelAlreadyCompleted {
		t.Fatalf("completed call outcome = %s, want %s", result.Calls[2].Outcome, CancelAlreadyCompleted)
	}
	if result.Calls[3].Outcome != CancelNotFound {
		t.Fatalf("missing call outcome = %s, want %s", result.Calls[3].Outcome, CancelNotFound)
	}

	refreshed, err := store.GetCall(ctx, processing.ID)
	if err != nil {
		t.Fatalf("GetCall: %v", err)
	}
	if !refreshed.CancelRequested {
		t.Fatal("processing call should carry the cancel flag")
	}
	if refreshed.Status != ledger.StatusProcessing {
		t.Fatalf("processing call status = %s, want %s", refreshed.Status, ledger.StatusProcessing)
	}
}

func TestCancelCallsByIDSettlesBatchMember(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	batch, err := store.CreateBatch(ctx, "test-user", 2)
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	inBatch := func(call *ledger.Call) { call.BatchID = batch.ID }
	done := testsupport.NewQueuedCall(t, store, inBatch)
	pending := testsupport.NewQueuedCall(t, store, inBatch)

	if _, err := store.ClaimForProcessing(ctx, done.ID); err != nil {
		t.Fatalf("ClaimForProcessing: %v", err)
	}
	if err := store.MarkCompleted(ctx, done.ID); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if err := store.RecordBatchResult(ctx, done.ID, true); err != nil {
		t.Fatalf("RecordBatchResult: %v", err)
	}

	// Cancelling the last member while it is still queued must close the
	// batch; no worker ever claims it, so nothing else counts it.
	result, err := CancelCallsByID(ctx, store, []int64{pending.ID})
	if err != nil {
		t.Fatalf("CancelCallsByID: %v", err)
	}
	if result.Calls[0].Outcome != CancelImmediate {
		t.Fatalf("outcome = %s, want %s", result.Calls[0].Outcome, CancelImmediate)
	}

	loaded, err := store.GetBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if loaded.NumCompleted != 1 || loaded.NumFailed != 1 {
		t.Fatalf("unexpected counters: %+v", loaded)
	}
	if loaded.Status != ledger.BatchCompleted {
		t.Fatalf("batch status = %s, want %s", loaded.Status, ledger.BatchCompleted)
	}
}
