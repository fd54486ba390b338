package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDialer struct {
	connErr error
	conn    *fakeConn
}

func (f *fakeDialer) Connect(ctx context.Context, url string) (RttConn, error) {
	if f.connErr != nil {
		return nil, f.connErr
	}
	return f.conn, nil
}

type fakeConn struct {
	subErr       error
	pubErr       error
	echoEvent    *nostr.Event
	echoOverride *nostr.Event // when set, returned instead of the published event
}

func (c *fakeConn) SubscribeOne(ctx context.Context, filter nostr.Filter) (*nostr.Event, error) {
	if c.subErr != nil {
		return nil, c.subErr
	}
	if len(filter.IDs) > 0 {
		if c.echoOverride != nil {
			return c.echoOverride, nil
		}
		return c.echoEvent, nil
	}
	return &nostr.Event{ID: "seen"}, nil
}

func (c *fakeConn) Publish(ctx context.Context, evt nostr.Event) error {
	c.echoEvent = &evt
	return c.pubErr
}

func (c *fakeConn) Close() error { return nil }

func validSecKey(t *testing.T) string {
	t.Helper()
	sk := nostr.GeneratePrivateKey()
	return sk
}

func TestRunRtt_AllPhasesSucceed(t *testing.T) {
	dialer := &fakeDialer{conn: &fakeConn{}}
	result, logs, cancel := RunRtt(context.Background(), dialer, "wss://relay.example", validSecKey(t), time.Second)
	require.NoError(t, cancel)
	assert.True(t, logs.OpenSuccess)
	assert.True(t, logs.ReadSuccess)
	assert.True(t, logs.WriteSuccess)
	assert.GreaterOrEqual(t, result.OpenMs, int64(0))
}

func TestRunRtt_OpenFailureCascades(t *testing.T) {
	dialer := &fakeDialer{connErr: errors.New("connection refused")}
	_, logs, cancel := RunRtt(context.Background(), dialer, "wss://relay.example", validSecKey(t), time.Second)
	require.NoError(t, cancel)
	assert.False(t, logs.OpenSuccess)
	assert.Equal(t, "connection refused", logs.OpenReason)
	assert.False(t, logs.ReadSuccess)
	assert.Equal(t, "connection refused", logs.ReadReason)
	assert.False(t, logs.WriteSuccess)
	assert.Equal(t, "connection refused", logs.WriteReason)
}

func TestRunRtt_WriteFailsWhenEchoMismatched(t *testing.T) {
	dialer := &fakeDialer{conn: &fakeConn{echoOverride: &nostr.Event{ID: "not-the-published-id"}}}
	result, logs, cancel := RunRtt(context.Background(), dialer, "wss://relay.example", validSecKey(t), time.Second)
	require.NoError(t, cancel)
	assert.True(t, logs.OpenSuccess)
	assert.True(t, logs.ReadSuccess)
	assert.False(t, logs.WriteSuccess)
	assert.Equal(t, "relay did not echo published event", logs.WriteReason)
	assert.Zero(t, result.WriteMs)
}
