package ledger

import "errors"

var (
	// ErrConflict is returned when BeginStage loses the single-flight race,
	// when a CAS status transition finds the row in a different state, or
	// when an append targets a finished ledger entry.
	ErrConflict = errors.New("ledger: conflicting concurrent update")

	// ErrNotFound is returned when a call, job, or batch does not exist.
	ErrNotFound = errors.New("ledger: not found")
)
