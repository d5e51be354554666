package api

import (
	"context"
	"errors"

	"callaudit/internal/ledger"
)

// LedgerReader abstracts the ledger queries the API layer needs.
type LedgerReader interface {
	ListCalls(ctx context.Context, statuses ...ledger.Status) ([]*ledger.Call, error)
	GetCall(ctx context.Context, id int64) (*ledger.Call, error)
	JobsForCall(ctx context.Context, callID int64) ([]*ledger.Job, error)
	EvaluationForCall(ctx context.Context, callID int64) (*ledger.Evaluation, error)
	GetBatch(ctx context.Context, id string) (*ledger.Batch, error)
	ListBatches(ctx context.Context) ([]*ledger.Batch, error)
	ListBatchCalls(ctx context.Context, batchID string) ([]*ledger.Call, error)
	Health(ctx context.Context) (*ledger.HealthSummary, error)
}

// CallService exposes read-only ledger operations returning API DTOs.
type CallService struct {
	store LedgerReader
}

// NewCallService constructs a CallService around the provided reader.
func NewCallService(store LedgerReader) *CallService {
	if store == nil {
		return nil
	}
	return &CallService{store: store}
}

// List returns calls filtered by status.
func (s *CallService) List(ctx context.Context, statuses ...ledger.Status) ([]CallView, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	calls, err := s.store.ListCalls(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromCalls(calls), nil
}

// Stats returns call summary counts keyed by status string.
func (s *CallService) Stats(ctx context.Context) (map[string]int, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	summary, err := s.store.Health(ctx)
	if err != nil {
		return nil, err
	}
	return MergeCallStats(summary), nil
}

// Describe fetches a single call with its stage history and evaluation.
// A missing call yields a nil detail without error.
func (s *CallService) Describe(ctx context.Context, id int64) (*CallDetail, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	call, err := s.store.GetCall(ctx, id)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	detail := CallDetail{Call: FromCall(call)}

	jobs, err := s.store.JobsForCall(ctx, id)
	if err != nil {
		return nil, err
	}
	detail.Stages = FromJobs(jobs)

	eval, err := s.store.EvaluationForCall(ctx, id)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		return nil, err
	}
	detail.Evaluation = FromEvaluation(eval)
	return &detail, nil
}

// DescribeBatch fetches a batch with its member calls.
// A missing batch yields a nil detail without error.
func (s *CallService) DescribeBatch(ctx context.Context, id string) (*BatchDetail, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	batch, err := s.store.GetBatch(ctx, id)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	calls, err := s.store.ListBatchCalls(ctx, id)
	if err != nil {
		return nil, err
	}
	return &BatchDetail{Batch: FromBatch(batch), Calls: FromCalls(calls)}, nil
}

// ListBatches returns every batch, newest first per ledger ordering.
func (s *CallService) ListBatches(ctx context.Context) ([]BatchView, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	batches, err := s.store.ListBatches(ctx)
	if err != nil {
		return nil, err
	}
	return FromBatches(batches), nil
}
