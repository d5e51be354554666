// Command callauditd runs the call scoring daemon in the foreground.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"callaudit/internal/config"
	"callaudit/internal/daemon"
	"callaudit/internal/ledger"
	"callaudit/internal/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := ledger.OpenFromDir(cfg.Paths.LogDir)
	if err != nil {
		log.Fatalf("open ledger store: %v", err)
	}
	defer store.Close()

	registry, err := daemon.NewPipelineRegistry(cfg, store, logger)
	if err != nil {
		log.Fatalf("build pipeline: %v", err)
	}

	d, err := daemon.New(cfg, store, registry, logger)
	if err != nil {
		log.Fatalf("create daemon: %v", err)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("daemon shutting down")
	d.Stop()
}
