package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStageFailure marks an expected, stage-reported business failure
	// (for example unscorable audio). These drive the normal retry path.
	ErrStageFailure = errors.New("stage failure")
	// ErrTimeout marks work that exceeded its configured time budget.
	ErrTimeout = errors.New("timeout")
	// ErrValidation marks malformed or unusable input.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks missing or inconsistent configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrExternalTool marks a failure reported by an external binary or service.
	ErrExternalTool = errors.New("external tool error")
	// ErrTransient marks failures that are expected to clear on retry.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ErrorKind categorizes an error for logging and ledger records.
type ErrorKind string

const (
	KindStageFailure  ErrorKind = "stage_failure"
	KindTimeout       ErrorKind = "timeout"
	KindValidation    ErrorKind = "validation"
	KindConfiguration ErrorKind = "configuration"
	KindExternalTool  ErrorKind = "external_tool"
	KindTransient     ErrorKind = "transient"
)

// ErrorDetails carries the classified view of a stage error.
type ErrorDetails struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// Details classifies an error against the sentinel markers. Context
// cancellation and deadline errors are reported as timeouts so the reaper
// and scheduler treat them uniformly.
func Details(err error) ErrorDetails {
	d := ErrorDetails{Kind: KindTransient, Cause: err}
	if err == nil {
		return d
	}
	d.Message = strings.TrimSpace(err.Error())
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		d.Kind = KindTimeout
	case errors.Is(err, ErrValidation):
		d.Kind = KindValidation
	case errors.Is(err, ErrConfiguration):
		d.Kind = KindConfiguration
	case errors.Is(err, ErrExternalTool):
		d.Kind = KindExternalTool
	case errors.Is(err, ErrStageFailure):
		d.Kind = KindStageFailure
	}
	return d
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
