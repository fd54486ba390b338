// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
//
// Package synchronizer implements spec.md §4.7: per-relay incremental
// archival with cursor windows, bounded by per-network concurrency.
package synchronizer

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/bigbrotr/bigbrotr/internal/db"
	"github.com/bigbrotr/bigbrotr/internal/model"
	"github.com/bigbrotr/bigbrotr/internal/netsem"
	"github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"
)

// Persister is the subset of *db.Facade the synchronizer writes
// through.
type Persister interface {
	InsertEventRelayCascade(ctx context.Context, records []db.EventRelayRecord) error
	UpsertServiceState(ctx context.Context, states []*model.ServiceState) error
	GetServiceState(ctx context.Context, name string, stateType model.StateType, key *string) ([]*model.ServiceState, error)
	DeleteStaleCursors(ctx context.Context) (int64, error)
}

// RelayStore is the read side: every relay eligible for sync this cycle.
type RelayStore interface {
	ListRelays(ctx context.Context, enabledNetworks map[model.Network]bool) ([]*model.Relay, error)
}

// RelayDialer opens the Conn a sync task drives; satisfied by Dialer in
// production and by fakes in tests.
type RelayDialer interface {
	Connect(ctx context.Context, network model.Network, url string) (Conn, error)
}

// Config configures one synchronizer cycle.
type Config struct {
	ChunkSize           int // batch write size passed to InsertEventRelayCascade
	RelayLimit          int // cap on relays fetched per cycle, 0 = unbounded
	DefaultStart        int64
	LookbackSeconds     int64
	RelayTimeout        time.Duration
	CursorFlushInterval time.Duration
	QueryLimit          int
	EventKinds          []int
	EnabledNetworks     map[model.Network]bool
	// StaggerDelay is accepted for config-schema compatibility but has
	// no scheduling effect — see spec.md's Open Questions.
	StaggerDelay time.Duration
}

// Synchronizer implements service.Lifecycle.
type Synchronizer struct {
	cfg    Config
	facade Persister
	relays RelayStore
	dialer RelayDialer
	gate   *netsem.Gate
	log    *zap.Logger
}

// New builds a Synchronizer.
func New(cfg Config, facade Persister, relays RelayStore, dialer RelayDialer, gate *netsem.Gate, log *zap.Logger) *Synchronizer {
	return &Synchronizer{cfg: cfg, facade: facade, relays: relays, dialer: dialer, gate: gate, log: log}
}

// RunOnce performs cursor cleanup, fetches and shuffles eligible
// relays, then syncs each bounded by its network semaphore.
func (s *Synchronizer) RunOnce(ctx context.Context) error {
	deleted, err := s.facade.DeleteStaleCursors(ctx)
	if err != nil {
		return fmt.Errorf("synchronizer: cursor cleanup: %w", err)
	}
	if deleted > 0 {
		s.log.Debug("deleted stale cursors", zap.Int64("count", deleted))
	}

	relays, err := s.relays.ListRelays(ctx, s.cfg.EnabledNetworks)
	if err != nil {
		return fmt.Errorf("synchronizer: listing relays: %w", err)
	}
	if s.cfg.RelayLimit > 0 && len(relays) > s.cfg.RelayLimit {
		relays = relays[:s.cfg.RelayLimit]
	}
	rand.Shuffle(len(relays), func(i, j int) { relays[i], relays[j] = relays[j], relays[i] })
	if len(relays) == 0 {
		return nil
	}

	errCh := make(chan error, len(relays))
	for _, r := range relays {
		r := r
		go func() {
			errCh <- s.gate.Do(ctx, r.Network(), func(ctx context.Context) error {
				return s.syncRelay(ctx, r)
			})
		}()
	}
	for range relays {
		if err := <-errCh; err != nil {
			s.log.Warn("relay sync failed", zap.Error(err))
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// syncRelay computes the sync window, streams events within it,
// validates and batches them, and flushes the advanced cursor — on the
// relay's own timeout, flushing whatever cursor progress was made.
func (s *Synchronizer) syncRelay(ctx context.Context, r *model.Relay) error {
	timeout := s.cfg.RelayTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cursor, err := s.loadCursor(ctx, r.URL())
	if err != nil {
		return fmt.Errorf("loading cursor for %s: %w", r.URL(), err)
	}

	windowStart := s.cfg.DefaultStart
	if cursor+1 > windowStart {
		windowStart = cursor + 1
	}
	windowEnd := time.Now().Unix() - s.cfg.LookbackSeconds
	if windowStart > windowEnd {
		// Empty window: nothing new to fetch this cycle.
		return nil
	}

	conn, err := s.dialer.Connect(cctx, r.Network(), r.URL())
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", r.URL(), err)
	}
	defer conn.Close()

	filter := s.filterFor(windowStart, windowEnd)
	raw, err := conn.QuerySync(cctx, filter)
	if err != nil {
		if len(raw) == 0 {
			return fmt.Errorf("querying %s: %w", r.URL(), err)
		}
		s.log.Debug("query ended early, processing partial results", zap.String("relay", r.URL()), zap.Error(err))
	}

	newCursor := cursor
	batch := make([]db.EventRelayRecord, 0, len(raw))
	flushTicker := s.newFlushTicker()
	defer flushTicker.Stop()

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.facade.InsertEventRelayCascade(ctx, batch); err != nil {
			return fmt.Errorf("inserting events for %s: %w", r.URL(), err)
		}
		batch = batch[:0]
		return nil
	}

	seenAt := time.Now().Unix()
	for _, evt := range raw {
		select {
		case <-flushTicker.C:
			if err := flush(); err != nil {
				return err
			}
			if err := s.flushCursor(ctx, r.URL(), newCursor); err != nil {
				return err
			}
		default:
		}

		e, err := model.NewEvent(evt, windowStart, windowEnd)
		if err != nil {
			s.log.Debug("dropping invalid event", zap.String("relay", r.URL()), zap.Error(err))
			continue
		}
		batch = append(batch, db.EventRelayRecord{Relay: r, Event: e, SeenAt: seenAt})
		if e.CreatedAt() > newCursor {
			newCursor = e.CreatedAt()
		}

		if s.cfg.ChunkSize > 0 && len(batch) >= s.cfg.ChunkSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	if err := flush(); err != nil {
		return err
	}
	return s.flushCursor(ctx, r.URL(), newCursor)
}

func (s *Synchronizer) filterFor(start, end int64) nostr.Filter {
	since := nostr.Timestamp(start)
	until := nostr.Timestamp(end)
	limit := s.cfg.QueryLimit
	if limit <= 0 {
		limit = 5000
	}
	return nostr.Filter{Kinds: s.cfg.EventKinds, Since: &since, Until: &until, Limit: limit}
}

func (s *Synchronizer) newFlushTicker() *time.Ticker {
	interval := s.cfg.CursorFlushInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return time.NewTicker(interval)
}

const cursorKind = "synchronizer"

func (s *Synchronizer) loadCursor(ctx context.Context, relayURL string) (int64, error) {
	states, err := s.facade.GetServiceState(ctx, cursorKind, model.StateCursor, &relayURL)
	if err != nil {
		return 0, err
	}
	if len(states) == 0 {
		return 0, nil
	}
	payload := states[0].Payload()
	v, ok := payload["last_created_at"]
	if !ok {
		return 0, nil
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	default:
		return 0, nil
	}
}

func (s *Synchronizer) flushCursor(ctx context.Context, relayURL string, cursor int64) error {
	state, err := model.NewServiceState(cursorKind, model.StateCursor, relayURL,
		map[string]any{"last_created_at": cursor}, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("building cursor state for %s: %w", relayURL, err)
	}
	return s.facade.UpsertServiceState(ctx, []*model.ServiceState{state})
}
