package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"callaudit/internal/config"
	"callaudit/internal/ledger"
	"callaudit/internal/logging"
	"callaudit/internal/notifications"
	"callaudit/internal/services"
	"callaudit/internal/stage"
)

// Scheduler claims queued calls and drives each one through the stage
// registry on a bounded worker pool. At most one stage attempt runs per call
// at any time, enforced by the ledger's single-flight insert.
type Scheduler struct {
	cfg      *config.Config
	store    *ledger.Store
	registry *stage.Registry
	notifier notifications.Service
	logger   *slog.Logger

	workers  *semaphore.Weighted
	kick     chan struct{}
	workerID string

	wg sync.WaitGroup
}

// New builds a scheduler over the given registry.
func New(cfg *config.Config, store *ledger.Store, registry *stage.Registry,
	notifier notifications.Service, logger *slog.Logger,
) *Scheduler {
	workerCount := cfg.Pipeline.Workers
	if workerCount <= 0 {
		workerCount = 1
	}
	return &Scheduler{
		cfg:      cfg,
		store:    store,
		registry: registry,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "scheduler"),
		workers:  semaphore.NewWeighted(int64(workerCount)),
		kick:     make(chan struct{}, 1),
		workerID: fmt.Sprintf("%s-%s", hostnameOrDefault(), uuid.NewString()[:8]),
	}
}

// Kick asks the scheduler to sweep the queue without waiting for the next
// poll tick. Safe to call from any goroutine; redundant kicks coalesce.
func (s *Scheduler) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run processes the queue until ctx is cancelled, then waits for in-flight
// calls to reach a stage boundary.
func (s *Scheduler) Run(ctx context.Context) error {
	poll := time.Duration(s.cfg.Pipeline.QueuePollInterval) * time.Second
	if poll <= 0 {
		poll = 5 * time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	s.logger.Info("scheduler started",
		logging.Int("workers", s.cfg.Pipeline.Workers),
		logging.String("worker_id", s.workerID),
	)
	for {
		s.dispatch(ctx)
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
		case <-s.kick:
		}
	}
}

// dispatch claims queued calls while worker capacity is available.
func (s *Scheduler) dispatch(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if !s.workers.TryAcquire(1) {
			return
		}

		call, err := s.nextClaim(ctx)
		if err != nil {
			s.workers.Release(1)
			s.logger.Error("queue sweep failed", logging.Error(err))
			return
		}
		if call == nil {
			s.workers.Release(1)
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.workers.Release(1)
			s.runCall(ctx, call)
		}()
	}
}

func (s *Scheduler) nextClaim(ctx context.Context) (*ledger.Call, error) {
	for {
		next, err := s.store.NextQueued(ctx)
		if err != nil || next == nil {
			return nil, err
		}
		claimed, err := s.store.ClaimForProcessing(ctx, next.ID)
		if errors.Is(err, ledger.ErrConflict) {
			continue
		}
		return claimed, err
	}
}

// runCall drives one call stage by stage until it reaches a terminal status
// or the scheduler is asked to stop. Stopping mid-call leaves the call
// processing with no in-progress ledger entry; the next claim or the reaper
// resumes it from the last completed stage.
func (s *Scheduler) runCall(ctx context.Context, call *ledger.Call) {
	callCtx := services.WithCallID(ctx, call.ID)
	logger := logging.WithContext(callCtx, s.logger)

	for {
		if ctx.Err() != nil {
			s.requeue(call, logger)
			return
		}

		current, err := s.store.GetCall(callCtx, call.ID)
		if err != nil {
			logger.Error("reload call failed", logging.Error(err))
			return
		}
		if current.Status != ledger.StatusProcessing {
			return
		}
		if current.CancelRequested {
			s.finishCancelled(callCtx, current, logger)
			return
		}

		completed, err := s.store.CompletedStages(callCtx, current.ID)
		if err != nil {
			logger.Error("load completed stages failed", logging.Error(err))
			return
		}
		def, ok := s.registry.Next(completed)
		if !ok {
			s.finishCompleted(callCtx, current, logger)
			return
		}

		switch s.runStage(callCtx, current, def, logger) {
		case stageAdvance:
		case stageRetry:
			s.retryDelay(ctx)
		case stageHalt:
			return
		}
	}
}

type stageOutcome int

const (
	stageAdvance stageOutcome = iota
	stageRetry
	stageHalt
)

func (s *Scheduler) runStage(ctx context.Context, call *ledger.Call, def stage.Definition, logger *slog.Logger) stageOutcome {
	stageCtx := services.WithStage(ctx, def.Name)
	stageLogger := logging.WithContext(stageCtx, logger)

	artifacts, err := s.loadArtifacts(stageCtx, call.ID)
	if err != nil {
		stageLogger.Error("load artifacts failed", logging.Error(err))
		return stageHalt
	}
	if missing, ready := s.registry.Ready(def.Name, artifacts); !ready {
		s.failCall(stageCtx, call, def.Name,
			fmt.Sprintf("stage %s requires output from %s, which is missing", def.Name, missing), logger)
		return stageHalt
	}

	job, err := s.store.BeginStage(stageCtx, call.ID, def.Name, s.workerID)
	if errors.Is(err, ledger.ErrConflict) {
		// Another attempt is already recorded in flight, likely an orphan
		// from a crash. The reaper settles it; do not double-run.
		stageLogger.Warn("stage attempt already in flight",
			logging.String(logging.FieldEventType, "single_flight_conflict"))
		return stageHalt
	}
	if err != nil {
		stageLogger.Error("begin stage failed", logging.Error(err))
		return stageHalt
	}

	stageLogger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Int64(logging.FieldJobID, job.ID),
	)
	s.notifier.StageStarted(call, def.Name)

	result, execErr := s.execute(stageCtx, def, call, artifacts)
	if execErr != nil {
		return s.handleStageFailure(stageCtx, call, def, job, execErr, stageLogger)
	}

	artifactJSON, err := stage.EncodeArtifact(result)
	if err != nil {
		return s.handleStageFailure(stageCtx, call, def, job, err, stageLogger)
	}
	if err := s.store.CompleteStage(stageCtx, job.ID, artifactJSON); err != nil {
		stageLogger.Error("persist stage completion failed", logging.Error(err))
		return stageHalt
	}

	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int64(logging.FieldJobID, job.ID),
	)
	s.notifier.StageCompleted(call, def.Name)
	return stageAdvance
}

// execute runs the handler under the stage's attempt deadline.
func (s *Scheduler) execute(ctx context.Context, def stage.Definition, call *ledger.Call, artifacts stage.Artifacts) (any, error) {
	attemptCtx := ctx
	if def.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, def.Timeout)
		defer cancel()
	}
	if aware, ok := def.Handler.(stage.LoggerAware); ok {
		aware.SetLogger(logging.WithContext(attemptCtx, s.logger))
	}
	return def.Handler.Execute(attemptCtx, &stage.Request{Call: call, Artifacts: artifacts})
}

func (s *Scheduler) handleStageFailure(ctx context.Context, call *ledger.Call, def stage.Definition,
	job *ledger.Job, execErr error, logger *slog.Logger,
) stageOutcome {
	details := services.Details(execErr)
	reason := strings.TrimSpace(details.Message)
	if reason == "" {
		reason = strings.TrimSpace(execErr.Error())
	}
	if details.Kind == services.KindTimeout {
		reason = fmt.Sprintf("%s: attempt exceeded %s", ledger.ReasonStageTimeout, def.Timeout)
	}

	logger.Error("stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.Error(execErr),
	)
	if err := s.store.FailStage(ctx, job.ID, reason); err != nil {
		logger.Error("persist stage failure failed", logging.Error(err))
		return stageHalt
	}

	if !def.Retryable || details.Kind == services.KindValidation || details.Kind == services.KindConfiguration {
		s.failCall(ctx, call, def.Name, reason, logger)
		return stageHalt
	}

	failures, err := s.store.CountStageAttempts(ctx, call.ID, def.Name)
	if err != nil {
		logger.Error("count stage attempts failed", logging.Error(err))
		return stageHalt
	}
	budget := 1 + s.cfg.Pipeline.StageRetries
	if failures >= budget {
		callReason := fmt.Sprintf("%s: stage %s failed %d times, budget is %d (last: %s)",
			ledger.ReasonRetryExhausted, def.Name, failures, budget, reason)
		if details.Kind == services.KindTimeout {
			// A timed-out final attempt keeps its timeout reason up front so
			// the call reads as a timeout, not a generic exhaustion.
			callReason = fmt.Sprintf("%s; %s: stage %s failed %d times, budget is %d",
				reason, ledger.ReasonRetryExhausted, def.Name, failures, budget)
		}
		s.failCall(ctx, call, def.Name, callReason, logger)
		return stageHalt
	}
	return stageRetry
}

func (s *Scheduler) failCall(ctx context.Context, call *ledger.Call, stageName, reason string, logger *slog.Logger) {
	if err := s.store.MarkFailed(ctx, call.ID, reason); err != nil {
		logger.Error("persist call failure failed", logging.Error(err))
		return
	}
	logger.Error("call failed",
		logging.String(logging.FieldEventType, "call_failed"),
		logging.String(logging.FieldStage, stageName),
		logging.String("reason", reason),
	)
	s.notifier.CallFailed(call, reason)
	s.settleBatch(ctx, call, false, logger)
}

func (s *Scheduler) finishCompleted(ctx context.Context, call *ledger.Call, logger *slog.Logger) {
	if err := s.store.MarkCompleted(ctx, call.ID); err != nil {
		logger.Error("persist call completion failed", logging.Error(err))
		return
	}
	logger.Info("call completed",
		logging.String(logging.FieldEventType, "call_completed"),
	)
	s.notifier.CallCompleted(call)
	s.settleBatch(ctx, call, true, logger)
}

func (s *Scheduler) finishCancelled(ctx context.Context, call *ledger.Call, logger *slog.Logger) {
	if err := s.store.MarkCancelled(ctx, call.ID); err != nil {
		logger.Error("persist call cancellation failed", logging.Error(err))
		return
	}
	logger.Info("call cancelled at stage boundary",
		logging.String(logging.FieldEventType, "call_cancelled"),
	)
	s.notifier.CallCancelled(call)
	s.settleBatch(ctx, call, false, logger)
}

// settleBatch folds the call's outcome into its batch rollup and announces
// batch completion when this was the last member.
func (s *Scheduler) settleBatch(ctx context.Context, call *ledger.Call, succeeded bool, logger *slog.Logger) {
	if !call.InBatch() {
		return
	}
	if err := s.store.RecordBatchResult(ctx, call.ID, succeeded); err != nil {
		logger.Error("batch rollup failed", logging.Error(err))
		return
	}
	batch, err := s.store.GetBatch(ctx, call.BatchID)
	if err != nil {
		logger.Error("load batch failed", logging.Error(err))
		return
	}
	if batch.Status == ledger.BatchCompleted {
		logger.Info("batch completed",
			logging.String(logging.FieldEventType, "batch_completed"),
			logging.String(logging.FieldBatchID, batch.ID),
			logging.Int("num_completed", batch.NumCompleted),
			logging.Int("num_failed", batch.NumFailed),
		)
		s.notifier.BatchCompleted(batch)
	}
}

// requeue is called when shutdown interrupts a call between stages. The call
// stays processing in the ledger; a restart resumes it from completed stages.
func (s *Scheduler) requeue(call *ledger.Call, logger *slog.Logger) {
	logger.Info("shutdown interrupted call between stages",
		logging.String(logging.FieldEventType, "call_interrupted"),
	)
}

func (s *Scheduler) loadArtifacts(ctx context.Context, callID int64) (stage.Artifacts, error) {
	artifacts := make(stage.Artifacts)
	for _, name := range s.registry.Names() {
		raw, err := s.store.StageArtifact(ctx, callID, name)
		if err != nil {
			return nil, err
		}
		if raw != "" {
			artifacts[name] = json.RawMessage(raw)
		}
	}
	return artifacts, nil
}

func (s *Scheduler) retryDelay(ctx context.Context) {
	delay := time.Duration(s.cfg.Pipeline.ErrorRetryInterval) * time.Second
	if delay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

func hostnameOrDefault() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "worker"
	}
	return host
}

// HealthCheck reports the readiness of every registered stage.
func (s *Scheduler) HealthCheck(ctx context.Context) []stage.Health {
	checks := make([]stage.Health, 0, len(s.registry.Names()))
	for _, name := range s.registry.Names() {
		def, _ := s.registry.Get(name)
		checks = append(checks, def.Handler.HealthCheck(ctx))
	}
	return checks
}
