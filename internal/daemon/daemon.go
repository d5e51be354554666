package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"callaudit/internal/api"
	"callaudit/internal/config"
	"callaudit/internal/deps"
	"callaudit/internal/ledger"
	"callaudit/internal/logging"
	"callaudit/internal/notifications"
	"callaudit/internal/preflight"
	"callaudit/internal/reaper"
	"callaudit/internal/scheduler"
	"callaudit/internal/stage"
)

// Daemon coordinates the background processing services and enforces
// single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *ledger.Store
	registry  *stage.Registry
	notifier  notifications.Service
	scheduler *scheduler.Scheduler
	reaper    *reaper.Reaper
	server    *apiServer
	logPath   string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	LedgerDBPath string
	LockFilePath string
	CallStats    map[string]int
	StageHealth  []stage.Health
	Dependencies []deps.Status
}

// New constructs a daemon over an assembled pipeline registry.
func New(cfg *config.Config, store *ledger.Store, registry *stage.Registry, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || registry == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, registry, and logger")
	}

	notifier := notifications.NewService(cfg)
	lockPath := filepath.Join(cfg.Paths.LogDir, "callauditd.lock")
	d := &Daemon{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		registry:  registry,
		notifier:  notifier,
		scheduler: scheduler.New(cfg, store, registry, notifier, logger),
		reaper:    reaper.New(cfg, store, registry, notifier, logger),
		logPath:   filepath.Join(cfg.Paths.LogDir, "callaudit.log"),
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}

	server, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.server = server
	return d, nil
}

// Start acquires the daemon lock, settles orphans from the previous run, and
// launches the scheduler and reaper loops.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another callaudit daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.reaper.Recover(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("recover interrupted calls: %w", err)
	}

	d.logStartupChecks(runCtx)

	if d.server != nil {
		if err := d.server.start(runCtx); err != nil {
			_ = d.lock.Unlock()
			cancel()
			d.cancel = nil
			return err
		}
	}

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		_ = d.scheduler.Run(runCtx)
	}()
	go func() {
		defer d.wg.Done()
		_ = d.reaper.Run(runCtx)
	}()

	d.running.Store(true)
	d.logger.Info("callaudit daemon started", logging.String("lock", d.lockPath))
	return nil
}

// logStartupChecks runs preflight and reports failures without aborting
// startup; a sidecar that comes up late recovers on its own.
func (d *Daemon) logStartupChecks(ctx context.Context) {
	for _, result := range preflight.RunAll(ctx, d.cfg) {
		if result.Passed {
			continue
		}
		d.logger.Warn("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
		)
	}
}

// Stop halts background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if d.server != nil {
		d.server.stop()
	}
	d.notifier.Close()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("callaudit daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Kick asks the scheduler to sweep the queue immediately.
func (d *Daemon) Kick() {
	d.scheduler.Kick()
}

// ListCalls returns calls filtered by optional statuses.
func (d *Daemon) ListCalls(ctx context.Context, statuses []ledger.Status) ([]*ledger.Call, error) {
	if d.store == nil {
		return nil, errors.New("ledger store unavailable")
	}
	return d.store.ListCalls(ctx, statuses...)
}

// RetryFailed resets the given failed calls back to queued.
func (d *Daemon) RetryFailed(ctx context.Context, ids []int64) (api.RetryCallsResult, error) {
	if d.store == nil {
		return api.RetryCallsResult{}, errors.New("ledger store unavailable")
	}
	result, err := api.RetryFailedCallsByID(ctx, d.store, ids)
	if err == nil && result.UpdatedCount > 0 {
		d.scheduler.Kick()
	}
	return result, err
}

// CancelCalls requests cancellation for the given calls.
func (d *Daemon) CancelCalls(ctx context.Context, ids []int64) (api.CancelCallsResult, error) {
	if d.store == nil {
		return api.CancelCallsResult{}, errors.New("ledger store unavailable")
	}
	return api.CancelCallsByID(ctx, d.store, ids)
}

// ClearFinished removes terminal calls, optionally restricted to statuses.
func (d *Daemon) ClearFinished(ctx context.Context, statuses ...ledger.Status) (int64, error) {
	if d.store == nil {
		return 0, errors.New("ledger store unavailable")
	}
	return d.store.ClearFinished(ctx, statuses...)
}

// ReapStuck fails processing calls older than age. An operator escape hatch
// for calls the periodic sweep has not yet settled.
func (d *Daemon) ReapStuck(ctx context.Context, age time.Duration) (int, error) {
	return d.reaper.FailStuckCalls(ctx, age)
}

// CallHealth returns aggregate call diagnostics.
func (d *Daemon) CallHealth(ctx context.Context) (*ledger.HealthSummary, error) {
	if d.store == nil {
		return nil, errors.New("ledger store unavailable")
	}
	return d.store.Health(ctx)
}

// DatabaseHealth returns detailed ledger database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) *ledger.DatabaseHealth {
	if d.store == nil {
		return &ledger.DatabaseHealth{Error: "ledger store unavailable"}
	}
	return d.store.CheckDatabase(ctx)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg == nil {
		return false, "configuration unavailable", errors.New("configuration unavailable")
	}
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Test(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LedgerDBPath: d.store.Path(),
		LockFilePath: d.lockPath,
		StageHealth:  d.scheduler.HealthCheck(ctx),
	}
	if summary, err := d.store.Health(ctx); err == nil {
		status.CallStats = api.MergeCallStats(summary)
	}
	status.Dependencies = preflight.CheckSystemDeps(d.cfg)
	return status
}
