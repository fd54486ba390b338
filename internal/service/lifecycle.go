// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
//
// Package service provides the cycle-loop/lifecycle state machine shared
// by the four BigBrotr daemon binaries (the one-shot seeder does not use
// it): Idle -> Running -> Waiting -> Stopping
// -> Stopped, with a consecutive-failure counter in the spirit of the
// teacher's MirrorManager health states (GREEN/YELLOW/RED).
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrTooManyFailures is returned by RunForever once the consecutive
// cycle-failure count reaches the configured maximum, per spec.md §4.3
// ("If counter >= max_consecutive_failures, transition to Stopping").
var ErrTooManyFailures = fmt.Errorf("consecutive failures reached the configured maximum")

// State enumerates the lifecycle's finite states.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateWaiting
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateWaiting:
		return "waiting"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Lifecycle is the one method every service implements: a single pass
// of its domain work, returning an error on cycle failure.
type Lifecycle interface {
	RunOnce(ctx context.Context) error
}

// Runner drives a Lifecycle through repeated cycles separated by an
// interval, tracking consecutive failures and exposing Prometheus
// counters through an attached Metrics.
type Runner struct {
	name        string
	work        Lifecycle
	interval    time.Duration
	maxFailures int64
	log         *zap.Logger
	metrics     *Metrics

	state    atomic.Int32
	failures atomic.Int64

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	stoppedCh    chan struct{}
}

// NewRunner builds a Runner around work, cycling every interval. A
// maxFailures <= 0 means no fatal threshold: RunForever only stops on
// context cancellation or an explicit RequestShutdown.
func NewRunner(name string, work Lifecycle, interval time.Duration, maxFailures int64, log *zap.Logger, metrics *Metrics) *Runner {
	r := &Runner{
		name:        name,
		work:        work,
		interval:    interval,
		maxFailures: maxFailures,
		log:         log,
		metrics:     metrics,
		shutdownCh:  make(chan struct{}),
		stoppedCh:   make(chan struct{}),
	}
	r.state.Store(int32(StateIdle))
	return r
}

// State returns the runner's current lifecycle state.
func (r *Runner) State() State { return State(r.state.Load()) }

// ConsecutiveFailures returns the current run of cycle failures.
func (r *Runner) ConsecutiveFailures() int64 { return r.failures.Load() }

// RequestShutdown asks RunForever to exit after its current cycle (or
// immediately, if it's waiting between cycles). Idempotent.
func (r *Runner) RequestShutdown() {
	r.shutdownOnce.Do(func() { close(r.shutdownCh) })
}

// RunOnceAndExit runs exactly one cycle and returns its error, for the
// --once CLI flag. It does not touch lifecycle state beyond metrics.
func (r *Runner) RunOnceAndExit(ctx context.Context) error {
	start := time.Now()
	err := r.work.RunOnce(ctx)
	r.recordCycle(err, time.Since(start))
	return err
}

// RunForever cycles work.RunOnce until ctx is cancelled or
// RequestShutdown is called, sleeping interval between cycles.
func (r *Runner) RunForever(ctx context.Context) error {
	defer close(r.stoppedCh)
	r.state.Store(int32(StateRunning))
	if r.metrics != nil {
		r.metrics.SetInfo(1)
		defer r.metrics.SetInfo(0)
	}

	for {
		select {
		case <-ctx.Done():
			r.state.Store(int32(StateStopped))
			return ctx.Err()
		case <-r.shutdownCh:
			r.state.Store(int32(StateStopping))
			r.state.Store(int32(StateStopped))
			return nil
		default:
		}

		r.state.Store(int32(StateRunning))
		r.log.Info("cycle_started", zap.String("service", r.name))
		start := time.Now()
		err := r.work.RunOnce(ctx)
		elapsed := time.Since(start)

		if err != nil {
			n := r.failures.Add(1)
			r.log.Error("cycle_failed", zap.String("service", r.name), zap.String("error_kind", classifyError(err)),
				zap.Int64("consecutive_failures", n), zap.Error(err))
			r.recordCycle(err, elapsed)

			if r.maxFailures > 0 && n >= r.maxFailures {
				r.state.Store(int32(StateStopping))
				r.state.Store(int32(StateStopped))
				r.log.Error("consecutive failure threshold reached, stopping",
					zap.String("service", r.name), zap.Int64("consecutive_failures", n), zap.Int64("max_consecutive_failures", r.maxFailures))
				return fmt.Errorf("%s: %w: %d consecutive failures", r.name, ErrTooManyFailures, n)
			}
		} else {
			r.failures.Store(0)
			r.log.Info("cycle_completed", zap.String("service", r.name), zap.Duration("elapsed", elapsed))
			r.recordCycle(err, elapsed)
		}

		r.state.Store(int32(StateWaiting))
		select {
		case <-ctx.Done():
			r.state.Store(int32(StateStopped))
			return ctx.Err()
		case <-r.shutdownCh:
			r.state.Store(int32(StateStopping))
			r.state.Store(int32(StateStopped))
			return nil
		case <-time.After(r.interval):
		}
	}
}

// Wait blocks until RunForever has returned.
func (r *Runner) Wait() { <-r.stoppedCh }

func (r *Runner) recordCycle(err error, elapsed time.Duration) {
	if r.metrics == nil {
		return
	}
	r.metrics.ObserveCycle(err == nil, elapsed)
	if err != nil {
		r.metrics.IncError(classifyError(err))
	}
	r.metrics.SetConsecutiveFailures(r.failures.Load())
	r.metrics.SetLastCycleTimestamp(time.Now().Unix())
}

// classifyError buckets a cycle error into the coarse kinds the
// errors_total metric is labeled by. It only looks at sentinel/wrapped
// context errors and falls back to "cycle" for everything domain
// packages return, since service deliberately has no dependency on
// the pgx/pool error types those errors wrap.
func classifyError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "cycle"
	}
}
