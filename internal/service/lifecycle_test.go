package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWork struct {
	calls   int64
	failN   int64
	failErr error
}

func (f *fakeWork) RunOnce(ctx context.Context) error {
	n := atomic.AddInt64(&f.calls, 1)
	if f.failN > 0 && n <= f.failN {
		return f.failErr
	}
	return nil
}

func TestRunner_RunOnceAndExit(t *testing.T) {
	w := &fakeWork{}
	r := NewRunner("finder", w, time.Hour, 0, zap.NewNop(), nil)
	require.NoError(t, r.RunOnceAndExit(context.Background()))
	assert.EqualValues(t, 1, w.calls)
}

func TestRunner_TracksConsecutiveFailures(t *testing.T) {
	w := &fakeWork{failN: 2, failErr: errors.New("boom")}
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "validator")
	r := NewRunner("validator", w, time.Millisecond, 0, zap.NewNop(), m)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = r.RunForever(ctx)

	assert.Equal(t, StateStopped, r.State())
	assert.Greater(t, atomic.LoadInt64(&w.calls), int64(2))
	assert.Zero(t, r.ConsecutiveFailures(), "a successful cycle after the two failures resets the count")
}

func TestRunner_StopsAtMaxConsecutiveFailures(t *testing.T) {
	w := &fakeWork{failN: 1000, failErr: errors.New("boom")}
	r := NewRunner("monitor", w, time.Millisecond, 3, zap.NewNop(), nil)

	done := make(chan error, 1)
	go func() { done <- r.RunForever(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTooManyFailures)
	case <-time.After(time.Second):
		t.Fatal("RunForever did not stop at the failure threshold")
	}
	assert.Equal(t, StateStopped, r.State())
	assert.EqualValues(t, 3, r.ConsecutiveFailures())
}

func TestRunner_RequestShutdownStopsLoop(t *testing.T) {
	w := &fakeWork{}
	r := NewRunner("seeder", w, time.Hour, 0, zap.NewNop(), nil)

	done := make(chan error, 1)
	go func() { done <- r.RunForever(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	r.RequestShutdown()
	r.RequestShutdown() // idempotent

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("RunForever did not exit after RequestShutdown")
	}
	assert.Equal(t, StateStopped, r.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "unknown", State(99).String())
}
