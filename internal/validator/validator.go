// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
//
// Package validator promotes candidates into validated relays, per
// spec.md §4.5: stale/exhausted cleanup, chunked probing bounded by
// per-network concurrency, atomic promote-or-increment-failure.
package validator

import (
	"context"
	"fmt"
	"time"

	"github.com/bigbrotr/bigbrotr/internal/model"
	"github.com/bigbrotr/bigbrotr/internal/netsem"
	"go.uber.org/zap"
)

// Persister is the subset of *db.Facade the validator writes through;
// an interface here lets tests substitute a fake without a live pool.
type Persister interface {
	PromoteCandidate(ctx context.Context, serviceName string, r *model.Relay) error
	UpsertServiceState(ctx context.Context, states []*model.ServiceState) error
}

// Config configures one validator cycle.
type Config struct {
	ChunkSize             int
	MaxCandidatesPerCycle int
	MaxFailures           int
	MaxCandidateAge       time.Duration
	ProbeTimeout          time.Duration
	EnabledNetworks       map[model.Network]bool
}

// CandidateStore is the read/write surface Validator needs beyond the
// generic db.Facade (candidate listing isn't a typed facade operation
// since its filter/order is validator-specific).
type CandidateStore interface {
	ListCandidates(ctx context.Context, limit int, enabledNetworks map[model.Network]bool) ([]model.Candidate, error)
	DeleteStaleCandidates(ctx context.Context) (int64, error)
	DeleteAgedCandidates(ctx context.Context, maxAge time.Duration) (int64, error)
	DeleteExhaustedCandidates(ctx context.Context, maxFailures int) (int64, error)
}

// RelayChecker is the is_nostr_relay probe (spec.md §4.7). The monitor
// does not use it; its RTT-open phase runs through probe.RunRtt.
type RelayChecker func(ctx context.Context, url string, network model.Network, timeout time.Duration) bool

// Validator implements service.Lifecycle.
type Validator struct {
	cfg     Config
	facade  Persister
	store   CandidateStore
	checker RelayChecker
	gate    *netsem.Gate
	log     *zap.Logger
}

// New builds a Validator.
func New(cfg Config, facade Persister, store CandidateStore, checker RelayChecker, gate *netsem.Gate, log *zap.Logger) *Validator {
	return &Validator{cfg: cfg, facade: facade, store: store, checker: checker, gate: gate, log: log}
}

// RunOnce performs stale/exhausted cleanup, then loops chunk probing
// until a chunk is empty or max_candidates_per_cycle is reached.
func (v *Validator) RunOnce(ctx context.Context) error {
	staleDeleted, err := v.store.DeleteStaleCandidates(ctx)
	if err != nil {
		return fmt.Errorf("validator: stale cleanup: %w", err)
	}
	agedDeleted, err := v.store.DeleteAgedCandidates(ctx, v.cfg.MaxCandidateAge)
	if err != nil {
		return fmt.Errorf("validator: aged cleanup: %w", err)
	}
	exhaustedDeleted, err := v.store.DeleteExhaustedCandidates(ctx, v.cfg.MaxFailures)
	if err != nil {
		return fmt.Errorf("validator: exhausted cleanup: %w", err)
	}
	if staleDeleted > 0 || agedDeleted > 0 || exhaustedDeleted > 0 {
		v.log.Debug("candidate cleanup",
			zap.Int64("stale_deleted", staleDeleted),
			zap.Int64("aged_deleted", agedDeleted),
			zap.Int64("exhausted_deleted", exhaustedDeleted))
	}

	processed := 0
	for {
		if v.cfg.MaxCandidatesPerCycle > 0 && processed >= v.cfg.MaxCandidatesPerCycle {
			return nil
		}
		limit := v.cfg.ChunkSize
		if limit <= 0 {
			limit = 200
		}
		if v.cfg.MaxCandidatesPerCycle > 0 && processed+limit > v.cfg.MaxCandidatesPerCycle {
			limit = v.cfg.MaxCandidatesPerCycle - processed
		}

		chunk, err := v.store.ListCandidates(ctx, limit, v.cfg.EnabledNetworks)
		if err != nil {
			return fmt.Errorf("validator: listing candidates: %w", err)
		}
		if len(chunk) == 0 {
			return nil
		}

		if err := v.probeChunk(ctx, chunk); err != nil {
			return err
		}
		processed += len(chunk)
	}
}

func (v *Validator) probeChunk(ctx context.Context, chunk []model.Candidate) error {
	results := make(chan error, len(chunk))
	for _, cand := range chunk {
		cand := cand
		go func() {
			results <- v.gate.Do(ctx, cand.Network, func(ctx context.Context) error {
				return v.probeOne(ctx, cand)
			})
		}()
	}
	var firstErr error
	for range chunk {
		if err := <-results; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// probeOne calls is_nostr_relay and persists the outcome. A probe
// exception that is not cancellation is treated as an invalid result,
// not a cycle abort — per spec.md §4.5 "the cycle is not aborted".
func (v *Validator) probeOne(ctx context.Context, cand model.Candidate) error {
	timeout := v.cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	valid := v.safeCheck(cctx, cand)

	if valid {
		r, err := model.NewRelay(cand.URL, cand.DiscoveredAt)
		if err != nil {
			v.log.Warn("promoted candidate failed relay construction", zap.String("url", cand.URL), zap.Error(err))
			return nil
		}
		if err := v.facade.PromoteCandidate(ctx, "validator", r); err != nil {
			return fmt.Errorf("promoting %s: %w", cand.URL, err)
		}
		return nil
	}

	cand.FailedAttempts++
	cand.UpdatedAt = time.Now().Unix()
	state, err := model.NewServiceState("validator", model.StateCandidate, cand.URL, cand.Payload(), cand.UpdatedAt)
	if err != nil {
		return fmt.Errorf("building candidate state: %w", err)
	}
	if err := v.facade.UpsertServiceState(ctx, []*model.ServiceState{state}); err != nil {
		return fmt.Errorf("persisting failed attempt for %s: %w", cand.URL, err)
	}
	return nil
}

func (v *Validator) safeCheck(ctx context.Context, cand model.Candidate) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			v.log.Warn("probe panicked, treated as invalid", zap.String("url", cand.URL), zap.Any("recovered", r))
			ok = false
		}
	}()
	if ctx.Err() != nil {
		return false
	}
	return v.checker(ctx, cand.URL, cand.Network, v.cfg.ProbeTimeout)
}
