// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
//
// Package monitor implements spec.md §4.6: periodically probes
// validated relays with the six NIP-66 checks plus NIP-11, persists
// the results, and publishes kind 30166/10166/0 Nostr events
// describing them.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/bigbrotr/bigbrotr/internal/db"
	"github.com/bigbrotr/bigbrotr/internal/model"
	"github.com/bigbrotr/bigbrotr/internal/netsem"
	"go.uber.org/zap"
)

// Persister is the subset of *db.Facade the monitor writes through.
type Persister interface {
	InsertRelayMetadataCascade(ctx context.Context, records []db.RelayMetadataRecord) error
	UpsertServiceState(ctx context.Context, states []*model.ServiceState) error
	GetServiceState(ctx context.Context, name string, stateType model.StateType, key *string) ([]*model.ServiceState, error)
}

// RelayStore is the read side: relays due for a health check this cycle.
type RelayStore interface {
	ListRelaysDueForCheck(ctx context.Context, maxAge time.Duration, limit int, enabledNetworks map[model.Network]bool) ([]*model.Relay, error)
}

// Config configures one monitor cycle.
type Config struct {
	ChunkSize        int
	CheckInterval    time.Duration // relay_metadata staleness threshold ("due for check")
	ProbeTimeout     time.Duration
	SOCKS5ProxyAddr  string
	DNSResolverAddr  string // host:port, e.g. "1.1.1.1:53"
	PublishRelays    []string
	AnnounceInterval time.Duration // kind 10166 republish cadence
	ProfileInterval  time.Duration // kind 0 republish cadence
	EnabledNetworks  map[model.Network]bool
	Capabilities     []string                 // NIP numbers this monitor supports, for the 10166 announcement
	ProbeFrequencies map[string]time.Duration // per-probe-type cadence, advertised via FrequencyTags
}

// Monitor implements service.Lifecycle.
type Monitor struct {
	cfg      Config
	facade   Persister
	relays   RelayStore
	geo      *GeoIP
	gate     *netsem.Gate
	secKey   string
	pubKey   string
	log      *zap.Logger
	sslCache *sslCache
}

// New builds a Monitor. secKey is the monitor's Nostr identity (hex or
// nsec), used to sign the RTT write-phase echo event and the
// published 30166/10166/0 events.
func New(cfg Config, facade Persister, relays RelayStore, geo *GeoIP, gate *netsem.Gate, secKey, pubKey string, log *zap.Logger) *Monitor {
	return &Monitor{
		cfg: cfg, facade: facade, relays: relays, geo: geo, gate: gate,
		secKey: secKey, pubKey: pubKey, log: log,
		sslCache: newSSLCache(256),
	}
}

// RunOnce performs one monitor cycle: select, chunked concurrent probe,
// persist, publish, per spec.md §4.6.
func (m *Monitor) RunOnce(ctx context.Context) error {
	limit := m.cfg.ChunkSize
	if limit <= 0 {
		limit = 200
	}
	due, err := m.relays.ListRelaysDueForCheck(ctx, m.cfg.CheckInterval, limit, m.cfg.EnabledNetworks)
	if err != nil {
		return fmt.Errorf("monitor: selecting due relays: %w", err)
	}
	if len(due) == 0 {
		return m.maybePublishAnnouncement(ctx)
	}

	results := make([]CheckResult, 0, len(due))
	resultsCh := make(chan CheckResult, len(due))
	errCh := make(chan error, len(due))

	for _, r := range due {
		r := r
		go func() {
			err := m.gate.Do(ctx, r.Network(), func(ctx context.Context) error {
				cr := m.checkRelay(ctx, r)
				resultsCh <- cr
				return nil
			})
			if err != nil {
				errCh <- err
			}
		}()
	}
	for range due {
		select {
		case cr := <-resultsCh:
			results = append(results, cr)
		case err := <-errCh:
			m.log.Warn("relay check failed to schedule", zap.Error(err))
		}
	}

	if err := m.persist(ctx, results); err != nil {
		return fmt.Errorf("monitor: persisting results: %w", err)
	}

	if err := m.publishDiscoveryEvents(ctx, results); err != nil {
		m.log.Warn("publishing discovery events failed", zap.Error(err))
	}
	return m.maybePublishAnnouncement(ctx)
}

func (m *Monitor) persist(ctx context.Context, results []CheckResult) error {
	now := time.Now().Unix()
	var records []db.RelayMetadataRecord
	for _, cr := range results {
		for _, md := range cr.metadataRows() {
			records = append(records, db.RelayMetadataRecord{Relay: cr.Relay, Metadata: md, GeneratedAt: now})
		}
	}
	return m.facade.InsertRelayMetadataCascade(ctx, records)
}
