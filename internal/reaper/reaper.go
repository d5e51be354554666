package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"callaudit/internal/config"
	"callaudit/internal/ledger"
	"callaudit/internal/logging"
	"callaudit/internal/notifications"
	"callaudit/internal/stage"
)

// Grace added on top of a stage's own deadline before the reaper declares an
// in-progress attempt abandoned. The scheduler cancels attempts at the
// deadline itself; the reaper only settles entries whose worker is gone.
const reapGrace = 2 * time.Minute

// Reaper settles in-progress ledger entries whose worker crashed or whose
// attempt outlived its deadline, and enforces the global run ceiling. It is
// the only component that mutates ledger entries it did not create.
type Reaper struct {
	cfg      *config.Config
	store    *ledger.Store
	registry *stage.Registry
	notifier notifications.Service
	logger   *slog.Logger

	now func() time.Time
}

// New builds a reaper over the same registry the scheduler runs.
func New(cfg *config.Config, store *ledger.Store, registry *stage.Registry,
	notifier notifications.Service, logger *slog.Logger,
) *Reaper {
	return &Reaper{
		cfg:      cfg,
		store:    store,
		registry: registry,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "reaper"),
		now:      time.Now,
	}
}

// Run sweeps periodically until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	interval := time.Duration(r.cfg.Pipeline.ReapInterval) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("reaper started", logging.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("sweep failed", logging.Error(err))
			}
		}
	}
}

// Recover settles every in-progress ledger entry at daemon startup. Nothing
// can legitimately be running yet, so each entry is an orphan from a crash:
// it is failed with a crash reason and its call requeued or failed according
// to the stage retry budget. Processing calls with no in-progress entry were
// interrupted between stages and are requeued directly.
func (r *Reaper) Recover(ctx context.Context) error {
	jobs, err := r.store.InProgressJobs(ctx)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		reason := fmt.Sprintf("%s: worker %s did not survive restart", ledger.ReasonReapedCrash, job.WorkerID)
		if err := r.settle(ctx, job, reason); err != nil {
			return err
		}
	}

	processing, err := r.store.ListCalls(ctx, ledger.StatusProcessing)
	if err != nil {
		return err
	}
	for _, call := range processing {
		if err := r.resume(ctx, call, "crash_recovery"); err != nil {
			return err
		}
	}
	return nil
}

// Sweep applies the per-stage deadlines, re-dispatches stalled calls, and
// enforces the global run ceiling once.
func (r *Reaper) Sweep(ctx context.Context) error {
	if err := r.sweepAttempts(ctx); err != nil {
		return err
	}
	if err := r.sweepStalled(ctx); err != nil {
		return err
	}
	return r.sweepRunCeiling(ctx)
}

// sweepStalled requeues processing calls whose attempt loop died without a
// trace: no in-progress ledger entry means no worker owns the call, so it
// would otherwise sit until the run ceiling fails it. Requeueing is safe
// against a live worker between stages: the claim is compare-and-swap and the
// worker's loop stops as soon as the call leaves processing.
func (r *Reaper) sweepStalled(ctx context.Context) error {
	processing, err := r.store.ListCalls(ctx, ledger.StatusProcessing)
	if err != nil {
		return err
	}
	for _, call := range processing {
		job, err := r.store.InProgressJob(ctx, call.ID)
		if err != nil {
			return err
		}
		if job != nil {
			continue
		}
		if err := r.resume(ctx, call, "stalled_call"); err != nil {
			return err
		}
	}
	return nil
}

// resume puts an ownerless processing call back in play: cancelled when a
// cancel was requested, requeued from its last completed stage otherwise.
func (r *Reaper) resume(ctx context.Context, call *ledger.Call, eventType string) error {
	if call.CancelRequested {
		return r.cancelCall(ctx, call, eventType)
	}
	if err := r.store.RequeueProcessing(ctx, call.ID); err != nil {
		if errors.Is(err, ledger.ErrConflict) {
			return nil
		}
		return err
	}
	r.logger.Info("interrupted call requeued",
		logging.String(logging.FieldEventType, eventType),
		logging.Int64(logging.FieldCallID, call.ID),
	)
	return nil
}

func (r *Reaper) cancelCall(ctx context.Context, call *ledger.Call, eventType string) error {
	if err := r.store.MarkCancelled(ctx, call.ID); err != nil {
		if errors.Is(err, ledger.ErrConflict) {
			return nil
		}
		return err
	}
	r.logger.Info("interrupted call cancelled",
		logging.String(logging.FieldEventType, eventType),
		logging.Int64(logging.FieldCallID, call.ID),
	)
	r.notifier.CallCancelled(call)
	return r.settleBatch(ctx, call)
}

func (r *Reaper) sweepAttempts(ctx context.Context) error {
	jobs, err := r.store.InProgressJobs(ctx)
	if err != nil {
		return err
	}
	now := r.now().UTC()
	for _, job := range jobs {
		limit := reapGrace
		if def, ok := r.registry.Get(job.Stage); ok && def.Timeout > 0 {
			limit = def.Timeout + reapGrace
		}
		if job.Elapsed(now) <= limit {
			continue
		}
		reason := fmt.Sprintf("%s: attempt exceeded %s with no worker heartbeat", ledger.ReasonStageTimeout, limit)
		if err := r.settle(ctx, job, reason); err != nil {
			return err
		}
	}
	return nil
}

// settle fails an abandoned attempt and decides the owning call's fate from
// the stage retry budget, exactly as a live worker failure would.
func (r *Reaper) settle(ctx context.Context, job *ledger.Job, reason string) error {
	if err := r.store.FailStage(ctx, job.ID, reason); err != nil {
		if errors.Is(err, ledger.ErrConflict) {
			return nil
		}
		return err
	}
	r.logger.Warn("abandoned attempt reaped",
		logging.String(logging.FieldEventType, "attempt_reaped"),
		logging.Int64(logging.FieldCallID, job.CallID),
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String(logging.FieldStage, job.Stage),
		logging.String("reason", reason),
	)

	call, err := r.store.GetCall(ctx, job.CallID)
	if err != nil {
		return err
	}
	if call.Status != ledger.StatusProcessing {
		return nil
	}

	failures, err := r.store.CountStageAttempts(ctx, call.ID, job.Stage)
	if err != nil {
		return err
	}
	budget := 1 + r.cfg.Pipeline.StageRetries
	retryable := true
	if def, ok := r.registry.Get(job.Stage); ok {
		retryable = def.Retryable
	}
	if !retryable || failures >= budget {
		// The reap reason already names the terminal cause (timeout or
		// crash); keep it up front and append the budget.
		callReason := fmt.Sprintf("%s; %s: stage %s failed %d times, budget is %d",
			reason, ledger.ReasonRetryExhausted, job.Stage, failures, budget)
		if !retryable {
			callReason = reason
		}
		return r.failCall(ctx, call, callReason)
	}

	if err := r.store.RequeueProcessing(ctx, call.ID); err != nil && !errors.Is(err, ledger.ErrConflict) {
		return err
	}
	return nil
}

func (r *Reaper) sweepRunCeiling(ctx context.Context) error {
	ceiling := time.Duration(r.cfg.Pipeline.MaxRunMinutes) * time.Minute
	if ceiling <= 0 {
		return nil
	}
	stuck, err := r.store.StuckProcessingCalls(ctx, r.now().UTC().Add(-ceiling))
	if err != nil {
		return err
	}
	for _, call := range stuck {
		reason := fmt.Sprintf("%s: call processed longer than %s", ledger.ReasonRunCeiling, ceiling)
		if job, err := r.store.InProgressJob(ctx, call.ID); err == nil && job != nil {
			if err := r.store.FailStage(ctx, job.ID, reason); err != nil && !errors.Is(err, ledger.ErrConflict) {
				return err
			}
		}
		if err := r.failCall(ctx, call, reason); err != nil {
			return err
		}
	}
	return nil
}

// FailStuckCalls is the operator-initiated variant of the sweep: every
// processing call older than age is failed outright, regardless of retry
// budget. It returns the number of calls failed.
func (r *Reaper) FailStuckCalls(ctx context.Context, age time.Duration) (int, error) {
	if age <= 0 {
		return 0, fmt.Errorf("age must be positive")
	}
	stuck, err := r.store.StuckProcessingCalls(ctx, r.now().UTC().Add(-age))
	if err != nil {
		return 0, err
	}
	failed := 0
	for _, call := range stuck {
		reason := fmt.Sprintf("%s: stuck in processing for more than %s", ledger.ReasonStageTimeout, age)
		if job, err := r.store.InProgressJob(ctx, call.ID); err == nil && job != nil {
			if err := r.store.FailStage(ctx, job.ID, reason); err != nil && !errors.Is(err, ledger.ErrConflict) {
				return failed, err
			}
		}
		if err := r.failCall(ctx, call, reason); err != nil {
			return failed, err
		}
		failed++
	}
	return failed, nil
}

func (r *Reaper) failCall(ctx context.Context, call *ledger.Call, reason string) error {
	if err := r.store.MarkFailed(ctx, call.ID, reason); err != nil {
		if errors.Is(err, ledger.ErrConflict) {
			return nil
		}
		return err
	}
	r.logger.Error("call failed by reaper",
		logging.String(logging.FieldEventType, "call_failed"),
		logging.Int64(logging.FieldCallID, call.ID),
		logging.String("reason", reason),
	)
	r.notifier.CallFailed(call, reason)
	return r.settleBatch(ctx, call)
}

func (r *Reaper) settleBatch(ctx context.Context, call *ledger.Call) error {
	if !call.InBatch() {
		return nil
	}
	if err := r.store.RecordBatchResult(ctx, call.ID, false); err != nil {
		return err
	}
	if batch, err := r.store.GetBatch(ctx, call.BatchID); err == nil && batch.Status == ledger.BatchCompleted {
		r.notifier.BatchCompleted(batch)
	}
	return nil
}
