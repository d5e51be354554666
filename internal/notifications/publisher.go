package notifications

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"callaudit/internal/config"
	"callaudit/internal/ledger"
)

const eventBufferSize = 256

// publisher delivers events to the sender from a background goroutine.
// Emitting an event never blocks: when the buffer is full the event is
// counted as dropped and discarded.
type publisher struct {
	cfg     config.Notifications
	sender  *ntfySender
	events  chan Event
	limiter *rate.Limiter

	mu      sync.Mutex
	dropped int64
	closed  bool
	done    chan struct{}
}

func newPublisher(cfg *config.Config, sender *ntfySender) *publisher {
	perSecond := cfg.Notifications.RatePerSecond
	if perSecond <= 0 {
		perSecond = 1
	}
	burst := cfg.Notifications.Burst
	if burst <= 0 {
		burst = 5
	}
	p := &publisher{
		cfg:     cfg.Notifications,
		sender:  sender,
		events:  make(chan Event, eventBufferSize),
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *publisher) run() {
	defer close(p.done)
	for event := range p.events {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := p.limiter.Wait(ctx); err == nil {
			p.sender.send(ctx, event)
		}
		cancel()
	}
}

func (p *publisher) emit(event Event) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	select {
	case p.events <- event:
	default:
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
	}
}

// Dropped returns how many events were discarded due to backpressure.
func (p *publisher) Dropped() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

func (p *publisher) StageStarted(call *ledger.Call, stageName string) {
	if !p.cfg.StageTransitions {
		return
	}
	p.emit(stageStartedEvent(call, stageName))
}

func (p *publisher) StageCompleted(call *ledger.Call, stageName string) {
	if !p.cfg.StageTransitions {
		return
	}
	p.emit(stageCompletedEvent(call, stageName))
}

func (p *publisher) CallCompleted(call *ledger.Call) {
	if !p.cfg.Completion {
		return
	}
	p.emit(Event{
		Type:      EventCallCompleted,
		CallID:    call.ID,
		BatchID:   call.BatchID,
		Message:   fmt.Sprintf("Call #%d scored and complete", call.ID),
		Priority:  "high",
		Timestamp: time.Now().UTC(),
	})
}

func (p *publisher) CallFailed(call *ledger.Call, reason string) {
	if !p.cfg.Errors {
		return
	}
	p.emit(Event{
		Type:      EventCallFailed,
		CallID:    call.ID,
		BatchID:   call.BatchID,
		Message:   fmt.Sprintf("Call #%d failed: %s", call.ID, strings.TrimSpace(reason)),
		Priority:  "high",
		Timestamp: time.Now().UTC(),
	})
}

func (p *publisher) CallCancelled(call *ledger.Call) {
	if !p.cfg.Completion {
		return
	}
	p.emit(Event{
		Type:      EventCallCancelled,
		CallID:    call.ID,
		BatchID:   call.BatchID,
		Message:   fmt.Sprintf("Call #%d cancelled", call.ID),
		Timestamp: time.Now().UTC(),
	})
}

func (p *publisher) BatchCompleted(batch *ledger.Batch) {
	if !p.cfg.Completion {
		return
	}
	p.emit(Event{
		Type:    EventBatchCompleted,
		BatchID: batch.ID,
		Message: fmt.Sprintf("Batch %s complete: %d succeeded, %d failed",
			batch.ID, batch.NumCompleted, batch.NumFailed),
		Priority:  "high",
		Timestamp: time.Now().UTC(),
	})
}

func (p *publisher) Error(err error, contextLabel string) {
	if !p.cfg.Errors {
		return
	}
	message := "unknown error"
	if err != nil {
		message = strings.TrimSpace(err.Error())
	}
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		message = contextLabel + ": " + message
	}
	p.emit(Event{
		Type:      EventError,
		Message:   message,
		Priority:  "high",
		Timestamp: time.Now().UTC(),
	})
}

func (p *publisher) Test(ctx context.Context) error {
	return p.sender.send(ctx, Event{
		Type:      EventError,
		Message:   "Notification system test",
		Priority:  "low",
		Timestamp: time.Now().UTC(),
	})
}

// Close stops the background worker after draining buffered events.
func (p *publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.events)
	select {
	case <-p.done:
	case <-time.After(5 * time.Second):
	}
}
