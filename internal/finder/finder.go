// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
//
// Package finder grows the candidate pool from API sources (JMESPath
// projection over a fetched JSON document) and from event tags on
// already-archived events, per spec.md §4.4.
package finder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bigbrotr/bigbrotr/internal/db"
	"github.com/bigbrotr/bigbrotr/internal/model"
	"github.com/jmespath/go-jmespath"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// ExtraDiscoveryKinds are supplemental discovery kinds: relay-discovery
// (30166) and monitor-announcement (10166) events also carry relay URLs
// worth harvesting, gated by Config.ExtraKindsEnabled.
var ExtraDiscoveryKinds = []int{30166, 10166}

// baseDiscoveryKinds are spec.md §4.4's event-based discovery kinds.
var baseDiscoveryKinds = []int{2, 3, 10002}

// APISource is one external JSON endpoint to mine for relay URLs.
type APISource struct {
	Name       string
	URL        string
	Timeout    time.Duration
	JMESPath   string
}

// Config configures one finder cycle.
type Config struct {
	APISources          []APISource
	DelayBetweenRequests time.Duration
	EventKinds          []int
	BatchSize           int
	ExtraKindsEnabled   bool
}

// EventSource is the read side Finder needs from the synchronizer's
// archive — a page of events with kind in kinds and created_at > since.
type EventSource interface {
	EventsSince(ctx context.Context, kinds []int, since int64, limit int) ([]*model.Event, error)
}

// Finder implements service.Lifecycle, scanning API sources and
// archived events for new candidate relay URLs each cycle.
type Finder struct {
	cfg     Config
	facade  *db.Facade
	events  EventSource
	http    *http.Client
	log     *zap.Logger
	cursors *xsync.MapOf[string, int64] // per-API-source Unix time of last successful fetch, kept across cycles
}

// New builds a Finder.
func New(cfg Config, facade *db.Facade, events EventSource, httpClient *http.Client, log *zap.Logger) *Finder {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Finder{
		cfg:     cfg,
		facade:  facade,
		events:  events,
		http:    httpClient,
		log:     log,
		cursors: xsync.NewMapOf[string, int64](),
	}
}

// RunOnce performs one API-discovery pass and one event-based-discovery
// pass, per spec.md §4.4.
func (f *Finder) RunOnce(ctx context.Context) error {
	if err := f.discoverFromAPIs(ctx); err != nil {
		return fmt.Errorf("finder: API discovery: %w", err)
	}
	if err := f.discoverFromEvents(ctx); err != nil {
		return fmt.Errorf("finder: event discovery: %w", err)
	}
	return nil
}

// discoverFromAPIs processes each configured source sequentially,
// pausing DelayBetweenRequests between them; a failing source is
// logged and skipped (spec.md §4.4 "other sources continue").
func (f *Finder) discoverFromAPIs(ctx context.Context) error {
	for i, src := range f.cfg.APISources {
		if i > 0 && f.cfg.DelayBetweenRequests > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(f.cfg.DelayBetweenRequests):
			}
		}
		urls, err := f.fetchAndExtract(ctx, src)
		if err != nil {
			lastOK, hadSuccess := f.cursors.Load(src.Name)
			if hadSuccess {
				f.log.Warn("API source failed, skipping", zap.String("source", src.Name), zap.Error(err),
					zap.Duration("since_last_success", time.Since(time.Unix(lastOK, 0))))
			} else {
				f.log.Warn("API source failed, skipping", zap.String("source", src.Name), zap.Error(err))
			}
			continue
		}
		f.cursors.Store(src.Name, time.Now().Unix())
		if err := f.upsertCandidates(ctx, urls); err != nil {
			f.log.Warn("persisting candidates from API source failed", zap.String("source", src.Name), zap.Error(err))
		}
	}
	return nil
}

func (f *Finder) fetchAndExtract(ctx context.Context, src APISource) ([]string, error) {
	timeout := src.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", src.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s returned HTTP %d", src.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decoding JSON: %w", err)
	}

	projected, err := jmespath.Search(src.JMESPath, doc)
	if err != nil {
		return nil, fmt.Errorf("applying jmespath %q: %w", src.JMESPath, err)
	}
	return coerceToStrings(projected), nil
}

func coerceToStrings(v any) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []any:
		var out []string
		for _, e := range val {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// discoverFromEvents reads one global cursor (the largest "seen_at" over
// the finder's cursor rows), fetches one batch of newer archived events
// of the configured kinds (plus ExtraDiscoveryKinds when enabled),
// extracts candidate URLs from their single-character-keyed tag values,
// and saves the batch's newest created_at under the key "global". There
// are no per-relay cursors, and only one batch is read per cycle.
func (f *Finder) discoverFromEvents(ctx context.Context) error {
	kinds := append([]int{}, f.cfg.EventKinds...)
	if len(kinds) == 0 {
		kinds = append([]int{}, baseDiscoveryKinds...)
	}
	if f.cfg.ExtraKindsEnabled {
		kinds = append(kinds, ExtraDiscoveryKinds...)
	}

	cursors, err := f.facade.GetServiceState(ctx, "finder", model.StateCursor, nil)
	if err != nil {
		return fmt.Errorf("loading cursors: %w", err)
	}
	var since int64
	for _, c := range cursors {
		if ts, ok := c.Payload()["seen_at"].(float64); ok && int64(ts) > since {
			since = int64(ts)
		}
	}

	batchSize := f.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}

	evts, err := f.events.EventsSince(ctx, kinds, since, batchSize)
	if err != nil {
		return fmt.Errorf("reading events: %w", err)
	}
	if len(evts) == 0 {
		return nil
	}

	var urls []string
	var maxSeen int64
	for _, evt := range evts {
		urls = append(urls, evt.TagValues()...)
		if evt.CreatedAt() > maxSeen {
			maxSeen = evt.CreatedAt()
		}
	}

	if err := f.upsertCandidates(ctx, urls); err != nil {
		return fmt.Errorf("persisting candidates: %w", err)
	}

	state, err := model.NewServiceState("finder", model.StateCursor, "global", map[string]any{"seen_at": float64(maxSeen)}, maxSeen)
	if err != nil {
		return fmt.Errorf("building cursor state: %w", err)
	}
	return f.facade.UpsertServiceState(ctx, []*model.ServiceState{state})
}

// CandidateServiceName is the service_state owner for candidate rows.
// Candidates are conceptually the validator's domain object (spec.md
// §4.3 "Validator stores candidates"); the finder and seeder both
// write under this name so ListCandidates/DeleteStaleCandidates see
// every candidate regardless of who discovered it.
const CandidateServiceName = "validator"

// upsertCandidates validates each raw URL through the Relay constructor
// and writes surviving ones as service_state candidate rows, skipping
// any URL already present in the relay table.
func (f *Finder) upsertCandidates(ctx context.Context, rawURLs []string) error {
	if len(rawURLs) == 0 {
		return nil
	}
	now := time.Now().Unix()

	var normalized []string
	relays := make(map[string]*model.Relay, len(rawURLs))
	for _, raw := range rawURLs {
		r, err := model.NewRelay(raw, now)
		if err != nil {
			continue
		}
		if _, ok := relays[r.URL()]; ok {
			continue
		}
		relays[r.URL()] = r
		normalized = append(normalized, r.URL())
	}
	if len(normalized) == 0 {
		return nil
	}

	existing, err := f.facade.ExistingRelayURLs(ctx, normalized)
	if err != nil {
		return fmt.Errorf("checking existing relays: %w", err)
	}

	var states []*model.ServiceState
	for _, url := range normalized {
		if existing[url] {
			continue
		}
		r := relays[url]
		cand := model.Candidate{URL: r.URL(), Network: r.Network(), FailedAttempts: 0, DiscoveredAt: now, UpdatedAt: now}
		state, err := model.NewServiceState(CandidateServiceName, model.StateCandidate, cand.URL, cand.Payload(), now)
		if err != nil {
			f.log.Warn("building candidate state failed", zap.String("url", cand.URL), zap.Error(err))
			continue
		}
		states = append(states, state)
	}
	if len(states) == 0 {
		return nil
	}
	return f.facade.UpsertServiceState(ctx, states)
}
