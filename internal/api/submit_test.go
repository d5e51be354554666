package api

import (
	"context"
	"path/filepath"
	"testing"

	"callaudit/internal/ledger"
	"callaudit/internal/testsupport"
)

func TestSubmitCallsSingleFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	source := filepath.Join(t.TempDir(), "call.wav")
	testsupport.WriteFile(t, source, 2048)

	result, err := SubmitCalls(context.Background(), SubmitRequest{
		Config: cfg,
		Store:  store,
		Paths:  []string{source},
		UserID: "agent-7",
	})
	if err != nil {
		t.Fatalf("SubmitCalls: %v", err)
	}
	if result.BatchID != "" {
		t.Fatalf("single file should not create a batch, got %q", result.BatchID)
	}
	if len(result.Calls) != 1 {
		t.Fatalf("len(Calls) = %d, want 1", len(result.Calls))
	}
	call := result.Calls[0]
	if call.Status != string(ledger.StatusQueued) {
		t.Fatalf("Status = %q, want queued", call.Status)
	}
	if call.FileSizeBytes != 2048 {
		t.Fatalf("FileSizeBytes = %d, want 2048", call.FileSizeBytes)
	}
	if call.OriginalFilename != "call.wav" {
		t.Fatalf("OriginalFilename = %q", call.OriginalFilename)
	}
}

func TestSubmitCallsDirectoryCreatesBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "a.wav"), 100)
	testsupport.WriteFile(t, filepath.Join(dir, "b.mp3"), 100)
	testsupport.WriteFile(t, filepath.Join(dir, "notes.txt"), 100)

	result, err := SubmitCalls(context.Background(), SubmitRequest{
		Config: cfg,
		Store:  store,
		Paths:  []string{dir},
		UserID: "agent-7",
	})
	if err != nil {
		t.Fatalf("SubmitCalls: %v", err)
	}
	if result.BatchID == "" {
		t.Fatal("expected a batch for multiple files")
	}
	if len(result.Calls) != 2 {
		t.Fatalf("len(Calls) = %d, want 2", len(result.Calls))
	}
	for _, call := range result.Calls {
		if call.BatchID != result.BatchID {
			t.Fatalf("call %d batch = %q, want %q", call.ID, call.BatchID, result.BatchID)
		}
	}

	batch, err := store.GetBatch(context.Background(), result.BatchID)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if batch.NumCalls != 2 {
		t.Fatalf("NumCalls = %d, want 2", batch.NumCalls)
	}
}

func TestSubmitCallsRejectsUnknownTemplate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	source := filepath.Join(t.TempDir(), "call.wav")
	testsupport.WriteFile(t, source, 100)

	_, err := SubmitCalls(context.Background(), SubmitRequest{
		Config:       cfg,
		Store:        store,
		Paths:        []string{source},
		UserID:       "agent-7",
		TemplateName: "nope",
	})
	if err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestSubmitCallsRejectsUnsupportedFormat(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	source := filepath.Join(t.TempDir(), "call.pdf")
	testsupport.WriteFile(t, source, 100)

	_, err := SubmitCalls(context.Background(), SubmitRequest{
		Config: cfg,
		Store:  store,
		Paths:  []string{source},
		UserID: "agent-7",
	})
	if err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestSubmitCallsRequiresUser(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	_, err := SubmitCalls(context.Background(), SubmitRequest{
		Config: cfg,
		Store:  store,
		Paths:  []string{"/tmp/whatever.wav"},
	})
	if err == nil {
		t.Fatal("expected error for missing user id")
	}
}
