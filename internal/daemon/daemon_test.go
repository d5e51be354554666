package daemon_test

import (
	"context"
	"testing"
	"time"

	"callaudit/internal/daemon"
	"callaudit/internal/logging"
	"callaudit/internal/stage"
	"callaudit/internal/testsupport"
)

type noopHandler struct{}

func (noopHandler) Execute(context.Context, *stage.Request) (any, error) { return nil, nil }
func (noopHandler) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("noop")
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	registry, err := stage.NewRegistry(stage.Definition{
		Name: stage.Normalize, Handler: noopHandler{}, Timeout: time.Minute,
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	d, err := daemon.New(cfg, store, registry, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if len(status.StageHealth) != 1 || !status.StageHealth[0].Ready {
		t.Fatalf("unexpected stage health: %v", status.StageHealth)
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	status = d.Status(ctx)
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonStartSettlesOrphans(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	call := testsupport.NewQueuedCall(t, store)
	if _, err := store.ClaimForProcessing(ctx, call.ID); err != nil {
		t.Fatalf("ClaimForProcessing: %v", err)
	}
	if _, err := store.BeginStage(ctx, call.ID, stage.Normalize, "dead-worker"); err != nil {
		t.Fatalf("BeginStage: %v", err)
	}

	registry, err := stage.NewRegistry(stage.Definition{
		Name: stage.Normalize, Handler: noopHandler{}, Retryable: true, Timeout: time.Minute,
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	d, err := daemon.New(cfg, store, registry, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := d.Start(runCtx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	d.Stop()

	job, err := store.InProgressJob(ctx, call.ID)
	if err != nil {
		t.Fatalf("InProgressJob: %v", err)
	}
	if job != nil {
		t.Fatal("expected the orphaned attempt to be settled at startup")
	}
}
