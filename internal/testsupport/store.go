package testsupport

import (
	"context"
	"testing"

	"callaudit/internal/config"
	"callaudit/internal/ledger"
)

// MustOpenStore opens a ledger.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.OpenFromDir(cfg.Paths.LogDir)
	if err != nil {
		t.Fatalf("ledger.OpenFromDir: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewQueuedCall creates a queued call for tests, applying any mutators
// before insertion.
func NewQueuedCall(t testing.TB, store *ledger.Store, mutators ...func(*ledger.Call)) *ledger.Call {
	t.Helper()

	call := &ledger.Call{
		UserID:       "test-user",
		TemplateName: "sales",
		SourcePath:   "/tmp/source.wav",
	}
	for _, mutate := range mutators {
		mutate(call)
	}
	created, err := store.CreateCall(context.Background(), call)
	if err != nil {
		t.Fatalf("store.CreateCall: %v", err)
	}
	return created
}
