package main

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"callaudit/internal/ledger"
	"callaudit/internal/testsupport"
)

func TestCallsStatusAndList(t *testing.T) {
	env := setupCLITestEnv(t)

	testsupport.NewQueuedCall(t, env.store, func(call *ledger.Call) {
		call.OriginalFilename = "alpha.wav"
	})
	beta := testsupport.NewQueuedCall(t, env.store, func(call *ledger.Call) {
		call.OriginalFilename = "beta.wav"
	})
	failCall(t, env.store, beta.ID, "transcribe timed out")

	out, _, err := runCLI(t, env.configPath, "calls", "status")
	if err != nil {
		t.Fatalf("calls status: %v", err)
	}
	requireContains(t, out, "Queued")
	requireContains(t, out, "Failed")

	out, _, err = runCLI(t, env.configPath, "calls", "list")
	if err != nil {
		t.Fatalf("calls list: %v", err)
	}
	requireContains(t, out, "alpha.wav")
	requireContains(t, out, "beta.wav")

	out, _, err = runCLI(t, env.configPath, "calls", "list", "--status", "failed")
	if err != nil {
		t.Fatalf("calls list --status failed: %v", err)
	}
	requireContains(t, out, "beta.wav")
	if strings.Contains(out, "alpha.wav") {
		t.Fatalf("expected filtered list to omit alpha.wav:\n%s", out)
	}
}

func TestCallsRetryAndCancel(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	failed := testsupport.NewQueuedCall(t, env.store)
	failCall(t, env.store, failed.ID, "scoring failed")
	queued := testsupport.NewQueuedCall(t, env.store)

	out, _, err := runCLI(t, env.configPath, "calls", "retry", strconv.FormatInt(failed.ID, 10))
	if err != nil {
		t.Fatalf("calls retry: %v", err)
	}
	requireContains(t, out, "requeued for scoring")

	refreshed, err := env.store.GetCall(ctx, failed.ID)
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if refreshed.Status != ledger.StatusQueued {
		t.Fatalf("expected queued after retry, got %s", refreshed.Status)
	}

	out, _, err = runCLI(t, env.configPath, "calls", "cancel", strconv.FormatInt(queued.ID, 10))
	if err != nil {
		t.Fatalf("calls cancel: %v", err)
	}
	requireContains(t, out, "cancelled")

	cancelled, err := env.store.GetCall(ctx, queued.ID)
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if cancelled.Status != ledger.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
}

func TestCallsClearFailed(t *testing.T) {
	env := setupCLITestEnv(t)

	failed := testsupport.NewQueuedCall(t, env.store)
	failCall(t, env.store, failed.ID, "stage error")
	testsupport.NewQueuedCall(t, env.store)

	out, _, err := runCLI(t, env.configPath, "calls", "clear", "--failed")
	if err != nil {
		t.Fatalf("calls clear: %v", err)
	}
	requireContains(t, out, "Cleared 1 failed calls")

	remaining, err := env.store.ListCalls(context.Background())
	if err != nil {
		t.Fatalf("list calls: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("expected 1 remaining call, got %d", len(remaining))
	}
}

func TestCallsHealth(t *testing.T) {
	env := setupCLITestEnv(t)

	testsupport.NewQueuedCall(t, env.store)
	failed := testsupport.NewQueuedCall(t, env.store)
	failCall(t, env.store, failed.ID, "stage error")

	out, _, err := runCLI(t, env.configPath, "calls", "health")
	if err != nil {
		t.Fatalf("calls health: %v", err)
	}
	requireContains(t, out, "Integrity check: yes")
	requireContains(t, out, "Schema present: yes")
	requireContains(t, out, "Total")
	requireContains(t, out, "Failed")
}

func TestCallsRetryRejectsInvalidID(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, env.configPath, "calls", "retry", "zero")
	if err == nil {
		t.Fatal("expected error for invalid id")
	}
}
