// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
//
// Package db is the sole writer of domain data (spec.md §4.2). Inserts,
// upserts, candidate promotion and orphan cleanup go through
// parameterized stored procedures; the service_state deletes and the
// materialized-view refresh are issued as direct parameterized
// statements, not stored procedures. Callers never hand-write SQL
// beyond the pool's generic fetch/fetchrow/fetchval/execute.
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bigbrotr/bigbrotr/internal/model"
	"github.com/bigbrotr/bigbrotr/internal/pool"
	"github.com/jackc/pgx/v5"
	"github.com/nbd-wtf/go-nostr"
)

// Timeouts groups the per-category timeouts supplied at construction,
// per spec.md §4.2 ("individual calls do not accept ad-hoc timeouts").
type Timeouts struct {
	Query   time.Duration
	Batch   time.Duration
	Cleanup time.Duration
	Refresh time.Duration
}

// DefaultTimeouts returns conservative defaults.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Query:   5 * time.Second,
		Batch:   30 * time.Second,
		Cleanup: 2 * time.Minute,
		Refresh: 5 * time.Minute,
	}
}

// Facade is the strongly-typed database surface used by every service.
type Facade struct {
	pool     *pool.Pool
	timeouts Timeouts
	maxBatch int
}

// New builds a Facade around an already-connected pool.
func New(p *pool.Pool, timeouts Timeouts, maxBatchSize int) *Facade {
	if maxBatchSize <= 0 {
		maxBatchSize = 1000
	}
	return &Facade{pool: p, timeouts: timeouts, maxBatch: maxBatchSize}
}

func (f *Facade) chunks(n int) [][2]int {
	var out [][2]int
	for start := 0; start < n; start += f.maxBatch {
		end := start + f.maxBatch
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	if len(out) == 0 {
		out = append(out, [2]int{0, 0})
	}
	return out
}

// InsertRelay inserts relays with ON CONFLICT(url) DO NOTHING, chunked
// at the facade's batch.max_size.
func (f *Facade) InsertRelay(ctx context.Context, relays []*model.Relay) error {
	if len(relays) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeouts.Batch)
	defer cancel()

	for _, c := range f.chunks(len(relays)) {
		chunk := relays[c[0]:c[1]]
		urls := make([]string, len(chunk))
		networks := make([]string, len(chunk))
		discoveredAts := make([]int64, len(chunk))
		for i, r := range chunk {
			urls[i] = r.URL()
			networks[i] = string(r.Network())
			discoveredAts[i] = r.DiscoveredAt()
		}
		if _, err := f.pool.Execute(ctx, `SELECT insert_relay($1,$2,$3)`, urls, networks, discoveredAts); err != nil {
			return fmt.Errorf("db: insert_relay: %w", err)
		}
	}
	return nil
}

// InsertMetadata inserts metadata with ON CONFLICT(id,type) DO NOTHING.
func (f *Facade) InsertMetadata(ctx context.Context, items []*model.Metadata) error {
	if len(items) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeouts.Batch)
	defer cancel()

	for _, c := range f.chunks(len(items)) {
		chunk := items[c[0]:c[1]]
		ids := make([]string, len(chunk))
		types := make([]string, len(chunk))
		datas := make([]json.RawMessage, len(chunk))
		for i, m := range chunk {
			ids[i] = m.ID()
			types[i] = string(m.Type())
			raw, err := json.Marshal(m.Data())
			if err != nil {
				return fmt.Errorf("db: marshaling metadata %s: %w", m.ID(), err)
			}
			datas[i] = raw
		}
		if _, err := f.pool.Execute(ctx, `SELECT insert_metadata($1,$2,$3)`, ids, types, datas); err != nil {
			return fmt.Errorf("db: insert_metadata: %w", err)
		}
	}
	return nil
}

// EventRelayRecord pairs an archived Event with its sighting on a Relay.
type EventRelayRecord struct {
	Relay  *model.Relay
	Event  *model.Event
	SeenAt int64
}

// InsertEventRelayCascade atomically inserts into relay, event and
// event_relay using a single UNNEST-based stored procedure call per chunk.
func (f *Facade) InsertEventRelayCascade(ctx context.Context, records []EventRelayRecord) error {
	if len(records) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeouts.Batch)
	defer cancel()

	for _, c := range f.chunks(len(records)) {
		chunk := records[c[0]:c[1]]
		n := len(chunk)
		relayURLs := make([]string, n)
		relayNetworks := make([]string, n)
		relayDiscoveredAts := make([]int64, n)
		eventIDs := make([]string, n)
		pubkeys := make([]string, n)
		sigs := make([]string, n)
		createdAts := make([]int64, n)
		kinds := make([]int, n)
		tagsArr := make([]json.RawMessage, n)
		contents := make([]string, n)
		tagValuesArr := make([][]string, n)
		seenAts := make([]int64, n)

		for i, rec := range chunk {
			if rec.Relay == nil || rec.Event == nil {
				return fmt.Errorf("db: insert_event_relay_cascade: nil relay or event at index %d", i)
			}
			relayURLs[i] = rec.Relay.URL()
			relayNetworks[i] = string(rec.Relay.Network())
			relayDiscoveredAts[i] = rec.Relay.DiscoveredAt()
			eventIDs[i] = rec.Event.ID()
			pubkeys[i] = rec.Event.PubKey()
			sigs[i] = rec.Event.Sig()
			createdAts[i] = rec.Event.CreatedAt()
			kinds[i] = rec.Event.Kind()
			raw, err := json.Marshal(rec.Event.Tags())
			if err != nil {
				return fmt.Errorf("db: marshaling tags for %s: %w", rec.Event.ID(), err)
			}
			tagsArr[i] = raw
			contents[i] = rec.Event.Content()
			tagValuesArr[i] = rec.Event.TagValues()
			seenAts[i] = rec.SeenAt
		}

		if err := requireEqualLengths(n, relayURLs, eventIDs, seenAts); err != nil {
			return err
		}

		_, err := f.pool.Execute(ctx, `SELECT insert_event_relay_cascade($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			relayURLs, relayNetworks, relayDiscoveredAts,
			eventIDs, pubkeys, sigs, createdAts, kinds, tagsArr, contents, tagValuesArr, seenAts)
		if err != nil {
			return fmt.Errorf("db: insert_event_relay_cascade: %w", err)
		}
	}
	return nil
}

// RelayMetadataRecord pairs a Relay with one generated health-check
// Metadata snapshot.
type RelayMetadataRecord struct {
	Relay       *model.Relay
	Metadata    *model.Metadata
	GeneratedAt int64
}

// InsertRelayMetadataCascade atomically inserts into relay, metadata
// and relay_metadata; metadata is deduplicated by (id,type) inside the
// stored procedure.
func (f *Facade) InsertRelayMetadataCascade(ctx context.Context, records []RelayMetadataRecord) error {
	if len(records) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeouts.Batch)
	defer cancel()

	for _, c := range f.chunks(len(records)) {
		chunk := records[c[0]:c[1]]
		n := len(chunk)
		relayURLs := make([]string, n)
		relayNetworks := make([]string, n)
		relayDiscoveredAts := make([]int64, n)
		mdIDs := make([]string, n)
		mdTypes := make([]string, n)
		mdDatas := make([]json.RawMessage, n)
		generatedAts := make([]int64, n)

		for i, rec := range chunk {
			if rec.Relay == nil || rec.Metadata == nil {
				return fmt.Errorf("db: insert_relay_metadata_cascade: nil relay or metadata at index %d", i)
			}
			relayURLs[i] = rec.Relay.URL()
			relayNetworks[i] = string(rec.Relay.Network())
			relayDiscoveredAts[i] = rec.Relay.DiscoveredAt()
			mdIDs[i] = rec.Metadata.ID()
			mdTypes[i] = string(rec.Metadata.Type())
			raw, err := json.Marshal(rec.Metadata.Data())
			if err != nil {
				return fmt.Errorf("db: marshaling metadata %s: %w", rec.Metadata.ID(), err)
			}
			mdDatas[i] = raw
			generatedAts[i] = rec.GeneratedAt
		}

		_, err := f.pool.Execute(ctx, `SELECT insert_relay_metadata_cascade($1,$2,$3,$4,$5,$6,$7)`,
			relayURLs, relayNetworks, relayDiscoveredAts, mdIDs, mdTypes, mdDatas, generatedAts)
		if err != nil {
			return fmt.Errorf("db: insert_relay_metadata_cascade: %w", err)
		}
	}
	return nil
}

// PromoteCandidate atomically inserts the relay and deletes the
// matching candidate row in a single stored-procedure call, satisfying
// spec.md's exclusivity invariant (never both in relay and candidates).
func (f *Facade) PromoteCandidate(ctx context.Context, serviceName string, r *model.Relay) error {
	ctx, cancel := context.WithTimeout(ctx, f.timeouts.Query)
	defer cancel()
	_, err := f.pool.Execute(ctx, `SELECT promote_candidate($1,$2,$3,$4)`,
		r.URL(), string(r.Network()), r.DiscoveredAt(), serviceName)
	if err != nil {
		return fmt.Errorf("db: promote_candidate: %w", err)
	}
	return nil
}

// ExistingRelayURLs narrows urls down to the ones already present in
// relay, so callers can honor the exclusivity invariant (spec.md §8:
// no URL ever appears in both relay and service_state(type=candidate))
// before writing a candidate row.
func (f *Facade) ExistingRelayURLs(ctx context.Context, urls []string) (map[string]bool, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeouts.Query)
	defer cancel()
	rows, err := f.pool.Fetch(ctx, `SELECT url FROM relay WHERE url = ANY($1)`, urls)
	if err != nil {
		return nil, fmt.Errorf("db: existing_relay_urls: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("db: scanning existing relay url: %w", err)
		}
		out[url] = true
	}
	return out, rows.Err()
}

// UpsertServiceState writes (or updates) a batch of ServiceState rows.
func (f *Facade) UpsertServiceState(ctx context.Context, states []*model.ServiceState) error {
	if len(states) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeouts.Batch)
	defer cancel()

	for _, c := range f.chunks(len(states)) {
		chunk := states[c[0]:c[1]]
		n := len(chunk)
		serviceNames := make([]string, n)
		stateTypes := make([]string, n)
		stateKeys := make([]string, n)
		payloads := make([]json.RawMessage, n)
		updatedAts := make([]int64, n)
		for i, s := range chunk {
			serviceNames[i] = s.ServiceName()
			stateTypes[i] = string(s.StateType())
			stateKeys[i] = s.StateKey()
			raw, err := json.Marshal(s.Payload())
			if err != nil {
				return fmt.Errorf("db: marshaling service_state payload: %w", err)
			}
			payloads[i] = raw
			updatedAts[i] = s.UpdatedAt()
		}
		_, err := f.pool.Execute(ctx, `SELECT upsert_service_state($1,$2,$3,$4,$5)`,
			serviceNames, stateTypes, stateKeys, payloads, updatedAts)
		if err != nil {
			return fmt.Errorf("db: upsert_service_state: %w", err)
		}
	}
	return nil
}

// GetServiceState reads rows for (name, type), optionally narrowed to a
// single key.
func (f *Facade) GetServiceState(ctx context.Context, name string, stateType model.StateType, key *string) ([]*model.ServiceState, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeouts.Query)
	defer cancel()

	var rows pgx.Rows
	var err error
	if key != nil {
		rows, err = f.pool.Fetch(ctx, `SELECT service_name, state_type, state_key, payload, updated_at
			FROM service_state WHERE service_name=$1 AND state_type=$2 AND state_key=$3`, name, string(stateType), *key)
	} else {
		rows, err = f.pool.Fetch(ctx, `SELECT service_name, state_type, state_key, payload, updated_at
			FROM service_state WHERE service_name=$1 AND state_type=$2`, name, string(stateType))
	}
	if err != nil {
		return nil, fmt.Errorf("db: get_service_state: %w", err)
	}
	defer rows.Close()

	var out []*model.ServiceState
	for rows.Next() {
		var svcName, sType, sKey string
		var payloadRaw json.RawMessage
		var updatedAt int64
		if err := rows.Scan(&svcName, &sType, &sKey, &payloadRaw, &updatedAt); err != nil {
			return nil, fmt.Errorf("db: scanning service_state row: %w", err)
		}
		var payload map[string]any
		if err := json.Unmarshal(payloadRaw, &payload); err != nil {
			return nil, fmt.Errorf("db: decoding service_state payload: %w", err)
		}
		s, err := model.NewServiceState(svcName, model.StateType(sType), sKey, payload, updatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteServiceState removes rows by (name, type, key) triples.
func (f *Facade) DeleteServiceState(ctx context.Context, name string, stateType model.StateType, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeouts.Batch)
	defer cancel()
	_, err := f.pool.Execute(ctx, `DELETE FROM service_state WHERE service_name=$1 AND state_type=$2 AND state_key = ANY($3)`,
		name, string(stateType), keys)
	if err != nil {
		return fmt.Errorf("db: delete_service_state: %w", err)
	}
	return nil
}

var viewNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// RefreshMaterializedView validates name against ^[a-z_][a-z0-9_]*$
// before interpolating it into REFRESH MATERIALIZED VIEW CONCURRENTLY,
// guarding against SQL injection through a config-sourced view name.
func (f *Facade) RefreshMaterializedView(ctx context.Context, name string) error {
	if !viewNamePattern.MatchString(name) {
		return fmt.Errorf("db: invalid materialized view name %q", name)
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeouts.Refresh)
	defer cancel()
	_, err := f.pool.Execute(ctx, fmt.Sprintf("REFRESH MATERIALIZED VIEW CONCURRENTLY %s", name))
	if err != nil {
		return fmt.Errorf("db: refresh_materialized_view(%s): %w", name, err)
	}
	return nil
}

// DeleteOrphanEvent batches deletion of events with no remaining
// event_relay references, returning the total rows deleted.
func (f *Facade) DeleteOrphanEvent(ctx context.Context, batchSize int) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeouts.Cleanup)
	defer cancel()
	var total int64
	if err := f.pool.FetchVal(ctx, &total, `SELECT delete_orphan_event($1)`, batchSize); err != nil {
		return 0, fmt.Errorf("db: delete_orphan_event: %w", err)
	}
	return total, nil
}

// DeleteOrphanMetadata batches deletion of metadata with no remaining
// relay_metadata references, returning the total rows deleted.
func (f *Facade) DeleteOrphanMetadata(ctx context.Context, batchSize int) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeouts.Cleanup)
	defer cancel()
	var total int64
	if err := f.pool.FetchVal(ctx, &total, `SELECT delete_orphan_metadata($1)`, batchSize); err != nil {
		return 0, fmt.Errorf("db: delete_orphan_metadata: %w", err)
	}
	return total, nil
}

// ListCandidates reads up to limit service_state(type=candidate) rows
// for the validator, oldest-updated first, narrowed to enabledNetworks
// when non-nil. Filtering happens in Go rather than a JSONB predicate
// since the candidate payload schema is owned by internal/model, not
// the schema package.
func (f *Facade) ListCandidates(ctx context.Context, limit int, enabledNetworks map[model.Network]bool) ([]model.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeouts.Query)
	defer cancel()
	rows, err := f.pool.Fetch(ctx, `SELECT state_key, payload, updated_at FROM service_state
		WHERE service_name='validator' AND state_type='candidate' ORDER BY updated_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("db: list_candidates: %w", err)
	}
	defer rows.Close()

	var out []model.Candidate
	for rows.Next() {
		var key string
		var payloadRaw json.RawMessage
		var updatedAt int64
		if err := rows.Scan(&key, &payloadRaw, &updatedAt); err != nil {
			return nil, fmt.Errorf("db: scanning candidate row: %w", err)
		}
		var payload map[string]any
		if err := json.Unmarshal(payloadRaw, &payload); err != nil {
			return nil, fmt.Errorf("db: decoding candidate payload: %w", err)
		}
		cand := model.CandidateFromPayload(key, updatedAt, payload)
		if enabledNetworks != nil && !enabledNetworks[cand.Network] {
			continue
		}
		out = append(out, cand)
	}
	return out, rows.Err()
}

// DeleteStaleCandidates removes candidates whose URL already exists in
// relay, per spec.md §4.5 step 1 ("delete candidates whose URL already
// exists in relay") and the exclusivity invariant in spec.md §8 (no URL
// ever appears in both relay and service_state(type=candidate)). A
// candidate can reach this state if it was discovered again by finder,
// or promoted, after its candidate row was last read this cycle.
func (f *Facade) DeleteStaleCandidates(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeouts.Cleanup)
	defer cancel()
	tag, err := f.pool.Execute(ctx, `DELETE FROM service_state
		WHERE service_name='validator' AND state_type='candidate'
		AND EXISTS (SELECT 1 FROM relay WHERE relay.url = service_state.state_key)`)
	if err != nil {
		return 0, fmt.Errorf("db: delete_stale_candidates: %w", err)
	}
	return commandTagRows(tag), nil
}

// DeleteAgedCandidates removes candidates whose discovered_at predates
// now-maxAge. This is an additional, config-gated maintenance step
// beyond spec.md's candidate lifecycle (which only retires candidates
// by promotion or by DeleteExhaustedCandidates); it bounds how long a
// candidate that never resolves and never exhausts its failure budget
// can linger. Disabled when maxAge <= 0.
func (f *Facade) DeleteAgedCandidates(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeouts.Cleanup)
	defer cancel()
	cutoff := time.Now().Add(-maxAge).Unix()
	tag, err := f.pool.Execute(ctx, `DELETE FROM service_state
		WHERE service_name='validator' AND state_type='candidate' AND (payload->>'discovered_at')::bigint < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("db: delete_aged_candidates: %w", err)
	}
	return commandTagRows(tag), nil
}

// DeleteExhaustedCandidates removes candidates whose failed_attempts
// has reached maxFailures, per spec.md §8 scenario 2.
func (f *Facade) DeleteExhaustedCandidates(ctx context.Context, maxFailures int) (int64, error) {
	if maxFailures <= 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeouts.Cleanup)
	defer cancel()
	tag, err := f.pool.Execute(ctx, `DELETE FROM service_state
		WHERE service_name='validator' AND state_type='candidate' AND (payload->>'failed_attempts')::int >= $1`, maxFailures)
	if err != nil {
		return 0, fmt.Errorf("db: delete_exhausted_candidates: %w", err)
	}
	return commandTagRows(tag), nil
}

// EventsSince implements finder.EventSource: archived events of the
// given kinds with created_at > since, oldest first (ascending
// created_at), at most limit rows.
func (f *Facade) EventsSince(ctx context.Context, kinds []int, since int64, limit int) ([]*model.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeouts.Query)
	defer cancel()
	rows, err := f.pool.Fetch(ctx, `SELECT id, pubkey, sig, created_at, kind, tags, content, tagvalues
		FROM event WHERE kind = ANY($1) AND created_at > $2 ORDER BY created_at ASC LIMIT $3`,
		kinds, since, limit)
	if err != nil {
		return nil, fmt.Errorf("db: events_since: %w", err)
	}
	defer rows.Close()

	var out []*model.Event
	for rows.Next() {
		var id, pubkey, sig, content string
		var createdAt int64
		var kind int
		var tagsRaw json.RawMessage
		var tagValues []string
		if err := rows.Scan(&id, &pubkey, &sig, &createdAt, &kind, &tagsRaw, &content, &tagValues); err != nil {
			return nil, fmt.Errorf("db: scanning event row: %w", err)
		}
		var tags nostr.Tags
		if err := json.Unmarshal(tagsRaw, &tags); err != nil {
			return nil, fmt.Errorf("db: decoding tags for %s: %w", id, err)
		}
		out = append(out, model.EventFromDBParams(id, pubkey, sig, createdAt, kind, tags, content, tagValues))
	}
	return out, rows.Err()
}

// ListRelaysDueForCheck returns relays whose most recent relay_metadata
// row predates now-maxAge (or that have never been checked), bounded to
// limit and narrowed to enabledNetworks, per spec.md §4.6 step 1.
func (f *Facade) ListRelaysDueForCheck(ctx context.Context, maxAge time.Duration, limit int, enabledNetworks map[model.Network]bool) ([]*model.Relay, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeouts.Query)
	defer cancel()
	cutoff := time.Now().Add(-maxAge).Unix()
	networks := networkList(enabledNetworks)

	rows, err := f.pool.Fetch(ctx, `SELECT r.url, r.network, r.discovered_at
		FROM relay r
		LEFT JOIN LATERAL (
			SELECT MAX(generated_at) AS last_checked FROM relay_metadata rm WHERE rm.relay_url = r.url
		) last ON true
		WHERE (last.last_checked IS NULL OR last.last_checked < $1)
		AND ($2::text[] IS NULL OR r.network = ANY($2))
		ORDER BY COALESCE(last.last_checked, 0) ASC
		LIMIT $3`, cutoff, networks, limit)
	if err != nil {
		return nil, fmt.Errorf("db: list_relays_due_for_check: %w", err)
	}
	defer rows.Close()

	var out []*model.Relay
	for rows.Next() {
		var url, network string
		var discoveredAt int64
		if err := rows.Scan(&url, &network, &discoveredAt); err != nil {
			return nil, fmt.Errorf("db: scanning relay row: %w", err)
		}
		out = append(out, model.FromDBParams(url, network, discoveredAt))
	}
	return out, rows.Err()
}

// ListRelays returns every relay on enabledNetworks, for the
// synchronizer's per-cycle fetch (spec.md §4.7 step 2).
func (f *Facade) ListRelays(ctx context.Context, enabledNetworks map[model.Network]bool) ([]*model.Relay, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeouts.Query)
	defer cancel()
	networks := networkList(enabledNetworks)
	rows, err := f.pool.Fetch(ctx, `SELECT url, network, discovered_at FROM relay
		WHERE $1::text[] IS NULL OR network = ANY($1)`, networks)
	if err != nil {
		return nil, fmt.Errorf("db: list_relays: %w", err)
	}
	defer rows.Close()

	var out []*model.Relay
	for rows.Next() {
		var url, network string
		var discoveredAt int64
		if err := rows.Scan(&url, &network, &discoveredAt); err != nil {
			return nil, fmt.Errorf("db: scanning relay row: %w", err)
		}
		out = append(out, model.FromDBParams(url, network, discoveredAt))
	}
	return out, rows.Err()
}

// DeleteStaleCursors removes synchronizer cursor rows whose relay no
// longer exists, per spec.md §4.7 step 1.
func (f *Facade) DeleteStaleCursors(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeouts.Cleanup)
	defer cancel()
	tag, err := f.pool.Execute(ctx, `DELETE FROM service_state s
		WHERE s.service_name='synchronizer' AND s.state_type='cursor'
		AND NOT EXISTS (SELECT 1 FROM relay r WHERE r.url = s.state_key)`)
	if err != nil {
		return 0, fmt.Errorf("db: delete_stale_cursors: %w", err)
	}
	return commandTagRows(tag), nil
}

func networkList(enabled map[model.Network]bool) []string {
	if enabled == nil {
		return nil
	}
	out := make([]string, 0, len(enabled))
	for n, ok := range enabled {
		if ok {
			out = append(out, string(n))
		}
	}
	return out
}

// commandTagRows parses the RowsAffected count out of a pgx command tag
// string (e.g. "DELETE 3"), returning 0 if it cannot be parsed.
func commandTagRows(tag string) int64 {
	var affected int64
	fields := strings.Fields(tag)
	if len(fields) == 0 {
		return 0
	}
	if _, err := fmt.Sscanf(fields[len(fields)-1], "%d", &affected); err != nil {
		return 0
	}
	return affected
}

func requireEqualLengths(n int, slices ...any) error {
	for _, s := range slices {
		var l int
		switch v := s.(type) {
		case []string:
			l = len(v)
		case []int64:
			l = len(v)
		}
		if l != n {
			return fmt.Errorf("db: programmer error: parallel array length mismatch (want %d)", n)
		}
	}
	return nil
}
