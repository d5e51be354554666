package reaper

import (
	"context"
	"strings"
	"testing"
	"time"

	"callaudit/internal/config"
	"callaudit/internal/ledger"
	"callaudit/internal/logging"
	"callaudit/internal/notifications"
	"callaudit/internal/stage"
	"callaudit/internal/testsupport"
)

type idleHandler struct{ name string }

func (h idleHandler) Execute(context.Context, *stage.Request) (any, error) { return nil, nil }
func (h idleHandler) HealthCheck(context.Context) stage.Health             { return stage.Healthy(h.name) }

func newReaperFixture(t *testing.T) (*Reaper, *ledger.Store, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	registry, err := stage.NewRegistry(
		stage.Definition{Name: "normalize", Handler: idleHandler{"normalize"}, Retryable: true, Timeout: time.Minute},
		stage.Definition{Name: "diarize", Handler: idleHandler{"diarize"}, Retryable: true,
			Requires: []string{"normalize"}, Timeout: time.Minute},
	)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	cfg.Notifications.NtfyTopic = ""
	return New(cfg, store, registry, notifications.NewService(cfg), logging.NewNop()), store, cfg
}

func processingCallWithOrphan(t *testing.T, store *ledger.Store, stageName string) (*ledger.Call, *ledger.Job) {
	t.Helper()
	ctx := context.Background()
	call := testsupport.NewQueuedCall(t, store)
	claimed, err := store.ClaimForProcessing(ctx, call.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if stageName != "normalize" {
		job, err := store.BeginStage(ctx, claimed.ID, "normalize", "w1")
		if err != nil {
			t.Fatalf("begin normalize: %v", err)
		}
		if err := store.CompleteStage(ctx, job.ID, `{"path":"/staging/n.wav"}`); err != nil {
			t.Fatalf("complete normalize: %v", err)
		}
	}
	orphan, err := store.BeginStage(ctx, claimed.ID, stageName, "dead-worker")
	if err != nil {
		t.Fatalf("begin %s: %v", stageName, err)
	}
	return claimed, orphan
}

func TestRecoverRequeuesCrashedCall(t *testing.T) {
	reaper, store, _ := newReaperFixture(t)
	ctx := context.Background()
	call, orphan := processingCallWithOrphan(t, store, "diarize")

	if err := reaper.Recover(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}

	job, err := store.GetJob(ctx, orphan.ID)
	if err != nil {
		t.Fatalf("load job: %v", err)
	}
	if job.Status != ledger.JobFailed || !strings.Contains(job.ErrorMessage, ledger.ReasonReapedCrash) {
		t.Fatalf("orphan should be failed as a crash, got %+v", job)
	}

	recovered, err := store.GetCall(ctx, call.ID)
	if err != nil {
		t.Fatalf("load call: %v", err)
	}
	if recovered.Status != ledger.StatusQueued {
		t.Fatalf("call should be requeued, got %s", recovered.Status)
	}

	// The completed stage survives recovery, so the retry resumes at diarize.
	completed, err := store.CompletedStages(ctx, call.ID)
	if err != nil {
		t.Fatalf("completed stages: %v", err)
	}
	if !completed["normalize"] {
		t.Fatal("completed stage history must survive recovery")
	}
}

func TestRecoverFailsCallWhenBudgetExhausted(t *testing.T) {
	reaper, store, cfg := newReaperFixture(t)
	cfg.Pipeline.StageRetries = 0
	ctx := context.Background()
	call, _ := processingCallWithOrphan(t, store, "diarize")

	if err := reaper.Recover(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}

	failed, err := store.GetCall(ctx, call.ID)
	if err != nil {
		t.Fatalf("load call: %v", err)
	}
	if failed.Status != ledger.StatusFailed {
		t.Fatalf("expected failed, got %s", failed.Status)
	}
	if !strings.Contains(failed.ErrorMessage, ledger.ReasonRetryExhausted) {
		t.Fatalf("expected retry exhausted reason, got %q", failed.ErrorMessage)
	}
}

func TestRecoverRequeuesCallInterruptedBetweenStages(t *testing.T) {
	reaper, store, _ := newReaperFixture(t)
	ctx := context.Background()

	call := testsupport.NewQueuedCall(t, store)
	if _, err := store.ClaimForProcessing(ctx, call.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := reaper.Recover(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}
	recovered, err := store.GetCall(ctx, call.ID)
	if err != nil {
		t.Fatalf("load call: %v", err)
	}
	if recovered.Status != ledger.StatusQueued {
		t.Fatalf("interrupted call should be requeued, got %s", recovered.Status)
	}
}

func TestSweepReapsOverdueAttempt(t *testing.T) {
	reaper, store, _ := newReaperFixture(t)
	ctx := context.Background()
	call, orphan := processingCallWithOrphan(t, store, "diarize")

	// Pretend a long time has passed since the attempt started.
	reaper.now = func() time.Time { return time.Now().Add(time.Hour) }

	if err := reaper.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	job, err := store.GetJob(ctx, orphan.ID)
	if err != nil {
		t.Fatalf("load job: %v", err)
	}
	if job.Status != ledger.JobFailed || !strings.Contains(job.ErrorMessage, ledger.ReasonStageTimeout) {
		t.Fatalf("overdue attempt should be timed out, got %+v", job)
	}
	recovered, err := store.GetCall(ctx, call.ID)
	if err != nil {
		t.Fatalf("load call: %v", err)
	}
	if recovered.Status != ledger.StatusQueued {
		t.Fatalf("call should be requeued for retry, got %s", recovered.Status)
	}
}

func TestSweepLeavesFreshAttemptsAlone(t *testing.T) {
	reaper, store, _ := newReaperFixture(t)
	ctx := context.Background()
	_, orphan := processingCallWithOrphan(t, store, "diarize")

	if err := reaper.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	job, err := store.GetJob(ctx, orphan.ID)
	if err != nil {
		t.Fatalf("load job: %v", err)
	}
	if job.Status != ledger.JobInProgress {
		t.Fatalf("fresh attempt must not be reaped, got %s", job.Status)
	}
}

func TestSweepRequeuesStalledCall(t *testing.T) {
	reaper, store, _ := newReaperFixture(t)
	ctx := context.Background()

	// Processing with no in-progress attempt: the run loop died after a
	// transient store error, so no worker owns the call anymore.
	call := testsupport.NewQueuedCall(t, store)
	if _, err := store.ClaimForProcessing(ctx, call.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := reaper.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	recovered, err := store.GetCall(ctx, call.ID)
	if err != nil {
		t.Fatalf("load call: %v", err)
	}
	if recovered.Status != ledger.StatusQueued {
		t.Fatalf("stalled call should be requeued, got %s", recovered.Status)
	}
}

func TestSweepLeavesOwnedCallsProcessing(t *testing.T) {
	reaper, store, _ := newReaperFixture(t)
	ctx := context.Background()
	call, _ := processingCallWithOrphan(t, store, "normalize")

	if err := reaper.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	current, err := store.GetCall(ctx, call.ID)
	if err != nil {
		t.Fatalf("load call: %v", err)
	}
	if current.Status != ledger.StatusProcessing {
		t.Fatalf("call with a live attempt must stay processing, got %s", current.Status)
	}
}

func TestSweepCancelsStalledCallWithCancelRequested(t *testing.T) {
	reaper, store, _ := newReaperFixture(t)
	ctx := context.Background()

	batch, err := store.CreateBatch(ctx, "test-user", 1)
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	call := testsupport.NewQueuedCall(t, store, func(c *ledger.Call) { c.BatchID = batch.ID })
	if _, err := store.ClaimForProcessing(ctx, call.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := store.RequestCancel(ctx, call.ID); err != nil {
		t.Fatalf("request cancel: %v", err)
	}

	if err := reaper.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	final, err := store.GetCall(ctx, call.ID)
	if err != nil {
		t.Fatalf("load call: %v", err)
	}
	if final.Status != ledger.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", final.Status)
	}
	loaded, err := store.GetBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("load batch: %v", err)
	}
	if loaded.NumFailed != 1 || loaded.Status != ledger.BatchCompleted {
		t.Fatalf("unexpected batch state: %+v", loaded)
	}
}

func TestSweepEnforcesRunCeiling(t *testing.T) {
	reaper, store, cfg := newReaperFixture(t)
	cfg.Pipeline.MaxRunMinutes = 1
	ctx := context.Background()
	call, _ := processingCallWithOrphan(t, store, "normalize")

	reaper.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if err := reaper.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	final, err := store.GetCall(ctx, call.ID)
	if err != nil {
		t.Fatalf("load call: %v", err)
	}
	// With the clock advanced past both limits the attempt is reaped first
	// and the ceiling then applies to whatever is still processing; either
	// way the call must not be left processing.
	if final.Status == ledger.StatusProcessing {
		t.Fatalf("call must not remain processing, got %s", final.Status)
	}
}

func TestFailStuckCallsManualSweep(t *testing.T) {
	reaper, store, _ := newReaperFixture(t)
	ctx := context.Background()
	call, orphan := processingCallWithOrphan(t, store, "diarize")

	failed, err := reaper.FailStuckCalls(ctx, time.Nanosecond)
	if err != nil {
		t.Fatalf("fail stuck calls: %v", err)
	}
	if failed != 1 {
		t.Fatalf("expected 1 failed call, got %d", failed)
	}

	final, err := store.GetCall(ctx, call.ID)
	if err != nil {
		t.Fatalf("load call: %v", err)
	}
	if final.Status != ledger.StatusFailed {
		t.Fatalf("expected failed, got %s", final.Status)
	}
	job, err := store.GetJob(ctx, orphan.ID)
	if err != nil {
		t.Fatalf("load job: %v", err)
	}
	if job.Status != ledger.JobFailed {
		t.Fatalf("in-flight attempt should be failed too, got %s", job.Status)
	}
}

func TestFailStuckCallsRejectsNonPositiveAge(t *testing.T) {
	reaper, _, _ := newReaperFixture(t)
	if _, err := reaper.FailStuckCalls(context.Background(), 0); err == nil {
		t.Fatal("zero age must be rejected")
	}
}

func TestBatchRollupOnReapedFailure(t *testing.T) {
	reaper, store, cfg := newReaperFixture(t)
	cfg.Pipeline.StageRetries = 0
	ctx := context.Background()

	batch, err := store.CreateBatch(ctx, "test-user", 1)
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	call := testsupport.NewQueuedCall(t, store, func(c *ledger.Call) { c.BatchID = batch.ID })
	if _, err := store.ClaimForProcessing(ctx, call.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := store.BeginStage(ctx, call.ID, "normalize", "dead-worker"); err != nil {
		t.Fatalf("begin stage: %v", err)
	}

	if err := reaper.Recover(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}

	loaded, err := store.GetBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("load batch: %v", err)
	}
	if loaded.NumFailed != 1 || loaded.Status != ledger.BatchCompleted {
		t.Fatalf("unexpected batch state: %+v", loaded)
	}
}
