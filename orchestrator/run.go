// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run is the exported entry point for the omnisearch service.
//
// It loads configuration, wires the health manager, tracker, state
// store and optional Postgres archive around the populated registry,
// restores persisted state, and serves HTTP until SIGINT/SIGTERM.
//
// Environment variables used:
//   - PORT: HTTP server port (default: 8080)
//   - OMNISEARCH_*: orchestration tunables (see Config.LoadFromEnv)
//   - OMNISEARCH_CONFIG_FILE: optional per-provider YAML settings
//   - OMNISEARCH_STATE_DIR: snapshot directory (default: OS temp dir)
//   - OMNISEARCH_REDIS_ADDR: use Redis instead of a file for state
//   - OMNISEARCH_ARCHIVE_DSN: optional Postgres performance archive
func Run(registry *Registry) error {
	log.Println("Starting omnisearch orchestrator...")

	cfg := NewConfig()
	if path := os.Getenv("OMNISEARCH_CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			log.Printf("config file %s not applied: %v", path, err)
		}
	}
	cfg.LoadFromEnv()

	clock := SystemClock()

	var store StateStore
	if addr := cfg.RedisAddr(); addr != "" {
		store = NewRedisStore(addr, "")
		log.Printf("state store: redis at %s", addr)
	} else {
		fileStore := NewFileStore(cfg.StateDir())
		store = fileStore
		log.Printf("state store: file at %s", fileStore.Path())
	}
	state := NewStateManager(store, cfg.SaveThrottle(), clock)

	health := NewHealthManager(clock, cfg.BreakerThreshold(), cfg.BreakerTimeout())
	tracker := NewPerformanceTracker(clock, cfg.MaxHistory())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var archive *PerformanceArchive
	if dsn := cfg.ArchiveDSN(); dsn != "" {
		a, err := OpenPerformanceArchive(ctx, dsn)
		if err != nil {
			log.Printf("performance archive disabled: %v", err)
		} else {
			archive = a
			archive.Start(ctx)
			defer archive.Close()
			log.Println("performance archive connected")
		}
	}

	promRegistry := prometheus.NewRegistry()
	metrics := NewMetrics(promRegistry)

	orch := NewOrchestrator(OrchestratorDeps{
		Registry: registry,
		Health:   health,
		Tracker:  tracker,
		Config:   cfg,
		State:    state,
		Archive:  archive,
		Metrics:  metrics,
		Clock:    clock,
	})

	if err := orch.RestoreFromState(ctx); err != nil {
		log.Printf("state restore failed, starting fresh: %v", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           NewServer(orch, promRegistry).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("omnisearch listening on port %s (%d providers registered)", port, registry.Count())
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}

	state.Flush()
	return nil
}
