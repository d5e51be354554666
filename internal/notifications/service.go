package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"callaudit/internal/config"
	"callaudit/internal/ledger"
)

// EventType identifies what a pipeline event describes.
type EventType string

const (
	EventStageStarted   EventType = "stage_started"
	EventStageCompleted EventType = "stage_completed"
	EventCallCompleted  EventType = "call_completed"
	EventCallFailed     EventType = "call_failed"
	EventCallCancelled  EventType = "call_cancelled"
	EventBatchCompleted EventType = "batch_completed"
	EventError          EventType = "error"
)

// Event is one pipeline occurrence emitted to subscribers. Delivery is
// fire-and-forget: events may be dropped under pressure and never block or
// fail the pipeline work that produced them.
type Event struct {
	Type      EventType
	CallID    int64
	BatchID   string
	Stage     string
	Message   string
	Priority  string
	Timestamp time.Time
}

// Service is the notification surface exposed to pipeline components.
type Service interface {
	StageStarted(call *ledger.Call, stageName string)
	StageCompleted(call *ledger.Call, stageName string)
	CallCompleted(call *ledger.Call)
	CallFailed(call *ledger.Call, reason string)
	CallCancelled(call *ledger.Call)
	BatchCompleted(batch *ledger.Batch)
	Error(err error, contextLabel string)
	Test(ctx context.Context) error
	Close()
}

// NewService builds the notification service from configuration. Without an
// ntfy topic a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	return newPublisher(cfg, newNtfySender(cfg))
}

func stageStartedEvent(call *ledger.Call, stageName string) Event {
	return Event{
		Type:      EventStageStarted,
		CallID:    call.ID,
		BatchID:   call.BatchID,
		Stage:     stageName,
		Message:   fmt.Sprintf("Call #%d started %s", call.ID, stageName),
		Timestamp: time.Now().UTC(),
	}
}

func stageCompletedEvent(call *ledger.Call, stageName string) Event {
	return Event{
		Type:      EventStageCompleted,
		CallID:    call.ID,
		BatchID:   call.BatchID,
		Stage:     stageName,
		Message:   fmt.Sprintf("Call #%d completed %s", call.ID, stageName),
		Timestamp: time.Now().UTC(),
	}
}

type noopService struct{}

func (noopService) StageStarted(*ledger.Call, string)   {}
func (noopService) StageCompleted(*ledger.Call, string) {}
func (noopService) CallCompleted(*ledger.Call)          {}
func (noopService) CallFailed(*ledger.Call, string)     {}
func (noopService) CallCancelled(*ledger.Call)          {}
func (noopService) BatchCompleted(*ledger.Batch)        {}
func (noopService) Error(error, string)                 {}
func (noopService) Test(context.Context) error          { return nil }
func (noopService) Close()                              {}
