package api

import (
	"context"
	"errors"

	"callaudit/internal/ledger"
)

// CallActionStore captures the ledger mutations per-call workflows need.
type CallActionStore interface {
	GetCall(ctx context.Context, id int64) (*ledger.Call, error)
	RequestCancel(ctx context.Context, id int64) (*ledger.Call, error)
	RetryCall(ctx context.Context, id int64) (*ledger.Call, error)
}

type RetryOutcome string

const (
	RetryUpdated   RetryOutcome = "retried"
	RetryNotFound  RetryOutcome = "not_found"
	RetryNotFailed RetryOutcome = "not_failed"
)

type RetryResult struct {
	ID      int64        `json:"id"`
	Outcome RetryOutcome `json:"outcome"`
}

type RetryCallsResult struct {
	UpdatedCount int           `json:"updatedCount"`
	Calls        []RetryResult `json:"calls"`
}

type CancelOutcome string

const (
	CancelImmediate        CancelOutcome = "cancelled"
	CancelRequested        CancelOutcome = "cancel_requested"
	CancelNotFound         CancelOutcome = "not_found"
	CancelAlreadyCompleted CancelOutcome = "already_completed"
	CancelAlreadyFailed    CancelOutcome = "already_failed"
)

type CancelResult struct {
	ID          int64         `json:"id"`
	Outcome     CancelOutcome `json:"outcome"`
	PriorStatus string        `json:"priorStatus,omitempty"`
}

type CancelCallsResult struct {
	UpdatedCount int            `json:"updatedCount"`
	Calls        []CancelResult `json:"calls"`
}

// RetryFailedCallsByID validates IDs and requeues only failed calls.
func RetryFailedCallsByID(ctx context.Context, store CallActionStore, ids []int64) (RetryCallsResult, error) {
	result := RetryCallsResult{Calls: make([]RetryResult, 0, len(ids))}
	for _, id := range ids {
		_, err := store.RetryCall(ctx, id)
		switch {
		case err == nil:
			result.UpdatedCount++
			result.Calls = append(result.Calls, RetryResult{ID: id, Outcome: RetryUpdated})
		case errors.Is(err, ledger.ErrNotFound):
			result.Calls = append(result.Calls, RetryResult{ID: id, Outcome: RetryNotFound})
		case errors.Is(err, ledger.ErrConflict):
			result.Calls = append(result.Calls, RetryResult{ID: id, Outcome: RetryNotFailed})
		default:
			return RetryCallsResult{}, err
		}
	}
	return result, nil
}

// CancelCallsByID requests cancellation for each ID unless already terminal.
// Queued calls cancel immediately; processing calls get a cooperative flag
// honored at the next stage boundary.
func CancelCallsByID(ctx context.Context, store CallActionStore, ids []int64) (CancelCallsResult, error) {
	result := CancelCallsResult{Calls: make([]CancelResult, 0, len(ids))}
	for _, id := range ids {
		current, err := store.GetCall(ctx, id)
		if errors.Is(err, ledger.ErrNotFound) {
			result.Calls = append(result.Calls, CancelResult{ID: id, Outcome: CancelNotFound})
			continue
		}
		if err != nil {
			return CancelCallsResult{}, err
		}
		prior := string(current.Status)
		switch current.Status {
		case ledger.StatusCompleted:
			result.Calls = append(result.Calls, CancelResult{ID: id, Outcome: CancelAlreadyCompleted, PriorStatus: prior})
			continue
		case ledger.StatusFailed:
			result.Calls = append(result.Calls, CancelResult{ID: id, Outcome: CancelAlreadyFailed, PriorStatus: prior})
			continue
		}

		updated, err := store.RequestCancel(ctx, id)
		if errors.Is(err, ledger.ErrConflict) {
			// Raced into a terminal state between the read and the update.
			refreshed, getErr := store.GetCall(ctx, id)
			if getErr != nil {
				return CancelCallsResult{}, getErr
			}
			outcome := CancelAlreadyFailed
			if refreshed.Status == ledger.StatusCompleted {
				outcome = CancelAlreadyCompleted
			}
			result.Calls = append(result.Calls, CancelResult{ID: id, Outcome: outcome, PriorStatus: string(refreshed.Status)})
			continue
		}
		if err != nil {
			return CancelCallsResult{}, err
		}

		result.UpdatedCount++
		outcome := CancelRequested
		if updated.Status == ledger.StatusCancelled {
			outcome = CancelImmediate
		}
		result.Calls = append(result.Calls, CancelResult{ID: id, Outcome: outcome, PriorStatus: prior})
	}
	return result, nil
}
