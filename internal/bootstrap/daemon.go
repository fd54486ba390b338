// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
package bootstrap

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/bigbrotr/bigbrotr/internal/service"
	"go.uber.org/zap"
)

// RunDaemon wires work into a service.Runner, starts the metrics
// server, and blocks until SIGINT/SIGTERM, a fatal consecutive-failure
// threshold, or (when once is true) a single cycle completes. It
// returns the exit code spec.md §6 expects: 0 for a clean stop, 1 if
// the cycle/loop itself returned an error (including hitting
// maxFailures — service.ErrTooManyFailures).
func RunDaemon(ctx context.Context, name string, work service.Lifecycle, interval time.Duration, maxFailures int64, once bool, metricsAddr string, c *Common) int {
	metrics := service.NewMetrics(c.Registry, name)
	runner := service.NewRunner(name, work, interval, maxFailures, c.Log, metrics)

	srv := service.NewServer(metricsAddr, c.Registry)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			c.Log.Error("metrics server stopped unexpectedly", zap.Error(err))
		}
	}()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	if once {
		if err := runner.RunOnceAndExit(ctx); err != nil {
			c.Log.Error("cycle failed", zap.Error(err))
			return 1
		}
		return 0
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-sigCtx.Done()
		runner.RequestShutdown()
	}()

	if err := runner.RunForever(sigCtx); err != nil && sigCtx.Err() == nil {
		c.Log.Error("service exited with error", zap.Error(err))
		return 1
	}
	return 0
}
