package validator

import (
	"context"
	"testing"
	"time"

	"github.com/bigbrotr/bigbrotr/internal/model"
	"github.com/bigbrotr/bigbrotr/internal/netsem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	chunks  [][]model.Candidate
	calls   int
	stale   int64
	aged    int64
	exhaust int64
}

func (f *fakeStore) ListCandidates(ctx context.Context, limit int, enabled map[model.Network]bool) ([]model.Candidate, error) {
	if f.calls >= len(f.chunks) {
		return nil, nil
	}
	c := f.chunks[f.calls]
	f.calls++
	return c, nil
}

func (f *fakeStore) DeleteStaleCandidates(ctx context.Context) (int64, error) {
	return f.stale, nil
}
func (f *fakeStore) DeleteAgedCandidates(ctx context.Context, maxAge time.Duration) (int64, error) {
	return f.aged, nil
}
func (f *fakeStore) DeleteExhaustedCandidates(ctx context.Context, max int) (int64, error) {
	return f.exhaust, nil
}

type fakePersister struct {
	promoted []string
	upserted int
}

func (f *fakePersister) PromoteCandidate(ctx context.Context, serviceName string, r *model.Relay) error {
	f.promoted = append(f.promoted, r.URL())
	return nil
}

func (f *fakePersister) UpsertServiceState(ctx context.Context, states []*model.ServiceState) error {
	f.upserted += len(states)
	return nil
}

func TestValidator_RunOnce_StopsWhenChunkEmpty(t *testing.T) {
	store := &fakeStore{chunks: [][]model.Candidate{
		{{URL: "wss://a", Network: model.NetworkClearnet}},
	}}
	checker := func(ctx context.Context, url string, network model.Network, timeout time.Duration) bool {
		return false
	}
	persister := &fakePersister{}
	v := New(Config{ChunkSize: 10}, persister, store, checker, netsem.New(netsem.DefaultLimits()), zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- v.RunOnce(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("RunOnce did not return")
	}
	assert.Equal(t, 2, store.calls) // one chunk, then the empty terminator
	assert.Equal(t, 1, persister.upserted)
	assert.Empty(t, persister.promoted)
}

func TestValidator_RunOnce_PromotesValidCandidate(t *testing.T) {
	store := &fakeStore{chunks: [][]model.Candidate{
		{{URL: "wss://relay.example", Network: model.NetworkClearnet, DiscoveredAt: time.Now().Unix()}},
	}}
	checker := func(ctx context.Context, url string, network model.Network, timeout time.Duration) bool { return true }
	persister := &fakePersister{}
	v := New(Config{ChunkSize: 10}, persister, store, checker, netsem.New(netsem.DefaultLimits()), zap.NewNop())

	require.NoError(t, v.RunOnce(context.Background()))
	assert.Equal(t, []string{"wss://relay.example"}, persister.promoted)
	assert.Zero(t, persister.upserted)
}

func TestValidator_SafeCheck_RecoversPanic(t *testing.T) {
	v := &Validator{
		cfg:     Config{ProbeTimeout: time.Second},
		checker: func(ctx context.Context, url string, network model.Network, timeout time.Duration) bool { panic("boom") },
		log:     zap.NewNop(),
	}
	ok := v.safeCheck(context.Background(), model.Candidate{URL: "wss://x"})
	require.False(t, ok)
}

func TestValidator_SafeCheck_CancelledContextIsInvalid(t *testing.T) {
	v := &Validator{
		cfg:     Config{ProbeTimeout: time.Second},
		checker: func(ctx context.Context, url string, network model.Network, timeout time.Duration) bool { return true },
		log:     zap.NewNop(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, v.safeCheck(ctx, model.Candidate{URL: "wss://x"}))
}
