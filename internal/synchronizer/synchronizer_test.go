// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
package synchronizer

import (
	"context"
	"testing"
	"time"

	"github.com/bigbrotr/bigbrotr/internal/db"
	"github.com/bigbrotr/bigbrotr/internal/model"
	"github.com/bigbrotr/bigbrotr/internal/netsem"
	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePersister struct {
	records     []db.EventRelayRecord
	states      map[string]*model.ServiceState
	cursorDels  int64
	upsertCalls int
}

func newFakePersister() *fakePersister {
	return &fakePersister{states: map[string]*model.ServiceState{}}
}

func (f *fakePersister) InsertEventRelayCascade(ctx context.Context, records []db.EventRelayRecord) error {
	f.records = append(f.records, records...)
	return nil
}

func (f *fakePersister) UpsertServiceState(ctx context.Context, states []*model.ServiceState) error {
	f.upsertCalls++
	for _, s := range states {
		f.states[s.StateKey()] = s
	}
	return nil
}

func (f *fakePersister) GetServiceState(ctx context.Context, name string, stateType model.StateType, key *string) ([]*model.ServiceState, error) {
	if key == nil {
		return nil, nil
	}
	if s, ok := f.states[*key]; ok {
		return []*model.ServiceState{s}, nil
	}
	return nil, nil
}

func (f *fakePersister) DeleteStaleCursors(ctx context.Context) (int64, error) {
	return f.cursorDels, nil
}

type fakeRelayStore struct {
	relays []*model.Relay
}

func (f *fakeRelayStore) ListRelays(ctx context.Context, enabled map[model.Network]bool) ([]*model.Relay, error) {
	return f.relays, nil
}

type fakeConn struct {
	events []*nostr.Event
	err    error
}

func (c *fakeConn) QuerySync(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	return c.events, c.err
}
func (c *fakeConn) Close() error { return nil }

type fakeDialer struct {
	conn  Conn
	err   error
	calls int
}

func (d *fakeDialer) Connect(ctx context.Context, network model.Network, url string) (Conn, error) {
	d.calls++
	return d.conn, d.err
}

func signedEvent(t *testing.T, sk string, createdAt int64, content string) *nostr.Event {
	t.Helper()
	pk, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)
	evt := &nostr.Event{
		PubKey:    pk,
		CreatedAt: nostr.Timestamp(createdAt),
		Kind:      1,
		Content:   content,
	}
	require.NoError(t, evt.Sign(sk))
	return evt
}

const testSecKey = "5ee1c8000ab28edd64d74a7d951ac2dd559814887b78d46ae8fc1361e6f8eb8e"

func TestSyncRelay_ValidEventsPersistedAndCursorAdvances(t *testing.T) {
	r, err := model.NewRelay("wss://relay.example.com", 1700000000)
	require.NoError(t, err)

	windowNow := time.Now().Unix()
	evt := signedEvent(t, testSecKey, windowNow-100, "hello")

	persister := newFakePersister()
	store := &fakeRelayStore{relays: []*model.Relay{r}}
	dialer := &fakeDialer{conn: &fakeConn{events: []*nostr.Event{evt}}}

	s := New(Config{
		ChunkSize: 10, DefaultStart: 1600000000, LookbackSeconds: 0,
		RelayTimeout: time.Second, CursorFlushInterval: time.Minute,
	}, persister, store, dialer, netsem.New(netsem.DefaultLimits()), zap.NewNop())

	require.NoError(t, s.RunOnce(context.Background()))
	require.Len(t, persister.records, 1)
	assert.Equal(t, r.URL(), persister.records[0].Relay.URL())

	cursorState, ok := persister.states[r.URL()]
	require.True(t, ok)
	assert.EqualValues(t, windowNow-100, cursorState.Payload()["last_created_at"])
}

func TestSyncRelay_DropsEventOutsideWindow(t *testing.T) {
	r, err := model.NewRelay("wss://relay.example.com", 1700000000)
	require.NoError(t, err)

	evt := signedEvent(t, testSecKey, 1, "too old")

	persister := newFakePersister()
	store := &fakeRelayStore{relays: []*model.Relay{r}}
	dialer := &fakeDialer{conn: &fakeConn{events: []*nostr.Event{evt}}}

	s := New(Config{
		ChunkSize: 10, DefaultStart: 1600000000, LookbackSeconds: 0,
		RelayTimeout: time.Second, CursorFlushInterval: time.Minute,
	}, persister, store, dialer, netsem.New(netsem.DefaultLimits()), zap.NewNop())

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Empty(t, persister.records)
}

func TestSyncRelay_EmptyWindowSkipsConnect(t *testing.T) {
	r, err := model.NewRelay("wss://relay.example.com", 1700000000)
	require.NoError(t, err)

	persister := newFakePersister()
	store := &fakeRelayStore{relays: []*model.Relay{r}}
	dialer := &fakeDialer{err: assertNotCalledErr}

	s := New(Config{
		ChunkSize: 10, DefaultStart: time.Now().Unix() + 100000, LookbackSeconds: 0,
		RelayTimeout: time.Second, CursorFlushInterval: time.Minute,
	}, persister, store, dialer, netsem.New(netsem.DefaultLimits()), zap.NewNop())

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Empty(t, persister.records)
	assert.Zero(t, dialer.calls)
}

var assertNotCalledErr = errNotCalled{}

type errNotCalled struct{}

func (errNotCalled) Error() string { return "dialer should not have been called" }

func TestRunOnce_NoRelaysIsNoop(t *testing.T) {
	persister := newFakePersister()
	store := &fakeRelayStore{}
	s := New(Config{}, persister, store, &fakeDialer{}, netsem.New(netsem.DefaultLimits()), zap.NewNop())

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Empty(t, persister.records)
}

func TestLoadCursor_DefaultsToZeroWhenAbsent(t *testing.T) {
	s := &Synchronizer{facade: newFakePersister()}
	cursor, err := s.loadCursor(context.Background(), "wss://relay.example.com")
	require.NoError(t, err)
	assert.Zero(t, cursor)
}

func TestFlushCursor_RoundTripsThroughLoadCursor(t *testing.T) {
	p := newFakePersister()
	s := &Synchronizer{facade: p}
	require.NoError(t, s.flushCursor(context.Background(), "wss://relay.example.com", 12345))

	cursor, err := s.loadCursor(context.Background(), "wss://relay.example.com")
	require.NoError(t, err)
	assert.EqualValues(t, 12345, cursor)
}
