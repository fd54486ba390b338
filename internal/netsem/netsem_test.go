package netsem

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bigbrotr/bigbrotr/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_BoundsConcurrency(t *testing.T) {
	g := New(Limits{Tor: 2})

	var inFlight, maxSeen int64
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		go func() {
			_ = g.Do(ctx, model.NetworkTor, func(ctx context.Context) error {
				n := atomic.AddInt64(&inFlight, 1)
				for {
					old := atomic.LoadInt64(&maxSeen)
					if n <= old || atomic.CompareAndSwapInt64(&maxSeen, old, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt64(&inFlight, -1)
				return nil
			})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 5; i++ {
		<-done
	}
	assert.LessOrEqual(t, atomic.LoadInt64(&maxSeen), int64(2))
}

func TestGate_UnknownNetwork(t *testing.T) {
	g := New(DefaultLimits())
	err := g.Acquire(context.Background(), model.Network("bogus"))
	require.Error(t, err)
}

func TestGate_AcquireRespectsCancellation(t *testing.T) {
	g := New(Limits{Loki: 1})
	ctx := context.Background()
	require.NoError(t, g.Acquire(ctx, model.NetworkLoki))

	cctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := g.Acquire(cctx, model.NetworkLoki)
	assert.Error(t, err)
	g.Release(model.NetworkLoki)
}
