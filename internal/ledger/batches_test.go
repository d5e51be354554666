package ledger

import (
	"context"
	"testing"
)

func newBatchWithCalls(t *testing.T, store *Store, count int) (*Batch, []*Call) {
	t.Helper()
	ctx := context.Background()
	batch, err := store.CreateBatch(ctx, "user-1", count)
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	calls := make([]*Call, 0, count)
	for i := 0; i < count; i++ {
		call, err := store.CreateCall(ctx, &Call{
			UserID:       "user-1",
			BatchID:      batch.ID,
			TemplateName: "support",
			SourcePath:   "/tmp/call.wav",
		})
		if err != nil {
			t.Fatalf("create batch call: %v", err)
		}
		calls = append(calls, call)
	}
	return batch, calls
}

func finishCall(t *testing.T, store *Store, callID int64, succeed bool) {
	t.Helper()
	ctx := context.Background()
	if _, err := store.ClaimForProcessing(ctx, callID); err != nil {
		t.Fatalf("claim call %d: %v", callID, err)
	}
	if succeed {
		if err := store.MarkCompleted(ctx, callID); err != nil {
			t.Fatalf("complete call %d: %v", callID, err)
		}
		return
	}
	if err := store.MarkFailed(ctx, callID, "stage failed"); err != nil {
		t.Fatalf("fail call %d: %v", callID, err)
	}
}

func TestBatchRollupCountsEachCallOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	batch, calls := newBatchWithCalls(t, store, 3)

	finishCall(t, store, calls[0].ID, true)
	if err := store.RecordBatchResult(ctx, calls[0].ID, true); err != nil {
		t.Fatalf("record first result: %v", err)
	}
	// Redelivery of the same outcome must not double count.
	if err := store.RecordBatchResult(ctx, calls[0].ID, true); err != nil {
		t.Fatalf("repeated record: %v", err)
	}

	loaded, err := store.GetBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("load batch: %v", err)
	}
	if loaded.NumCompleted != 1 || loaded.NumFailed != 0 {
		t.Fatalf("unexpected counters: %+v", loaded)
	}
	if loaded.Status != BatchProcessing {
		t.Fatalf("batch should still be processing, got %s", loaded.Status)
	}
}

func TestBatchFinalizesAfterLastCall(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	batch, calls := newBatchWithCalls(t, store, 2)

	finishCall(t, store, calls[0].ID, true)
	finishCall(t, store, calls[1].ID, false)
	if err := store.RecordBatchResult(ctx, calls[0].ID, true); err != nil {
		t.Fatalf("record success: %v", err)
	}
	if err := store.RecordBatchResult(ctx, calls[1].ID, false); err != nil {
		t.Fatalf("record failure: %v", err)
	}

	loaded, err := store.GetBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("load batch: %v", err)
	}
	if loaded.NumCompleted != 1 || loaded.NumFailed != 1 {
		t.Fatalf("unexpected counters: %+v", loaded)
	}
	if loaded.Status != BatchCompleted || loaded.CompletedAt == nil {
		t.Fatalf("batch should be completed, got %+v", loaded)
	}
	if !loaded.Done() {
		t.Fatal("Done should report true for a finished batch")
	}
}

func TestBatchFinalizesWhenQueuedMemberCancelled(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	batch, calls := newBatchWithCalls(t, store, 2)

	finishCall(t, store, calls[0].ID, true)
	if err := store.RecordBatchResult(ctx, calls[0].ID, true); err != nil {
		t.Fatalf("record success: %v", err)
	}

	// The second member is cancelled before any worker claims it. Nothing
	// else will ever touch this call, so the cancel itself must count it.
	cancelled, err := store.RequestCancel(ctx, calls[1].ID)
	if err != nil {
		t.Fatalf("cancel queued call: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}

	loaded, err := store.GetBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("load batch: %v", err)
	}
	if loaded.NumCompleted != 1 || loaded.NumFailed != 1 {
		t.Fatalf("unexpected counters: %+v", loaded)
	}
	if loaded.Status != BatchCompleted || loaded.CompletedAt == nil {
		t.Fatalf("batch should be completed, got %+v", loaded)
	}
}

func TestBatchRollupRejectsNonTerminalCall(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, calls := newBatchWithCalls(t, store, 1)

	if err := store.RecordBatchResult(ctx, calls[0].ID, true); err == nil {
		t.Fatal("counting a queued call should fail")
	}
}

func TestBatchRollupIgnoresSoloCalls(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	call := newTestCall(t, store)

	finishCall(t, store, call.ID, true)
	if err := store.RecordBatchResult(ctx, call.ID, true); err != nil {
		t.Fatalf("solo call rollup should be a no-op, got %v", err)
	}
}
