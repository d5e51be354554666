package stage

import (
	"context"
	"log/slog"

	"callaudit/internal/ledger"
)

// Request carries everything a stage needs for one attempt: the call being
// processed and the artifacts recorded by earlier completed stages.
type Request struct {
	Call      *ledger.Call
	Artifacts Artifacts
}

// Handler describes the contract the scheduler needs from each pipeline
// stage. Execute returns the stage artifact, which is persisted as JSON in
// the finished ledger entry and handed to downstream stages.
type Handler interface {
	Execute(context.Context, *Request) (any, error)
	HealthCheck(context.Context) Health
}

// LoggerAware is implemented by handlers that accept a contextual logger
// before execution.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}
