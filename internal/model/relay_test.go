package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRelay_ClearnetRequiresWSS(t *testing.T) {
	_, err := NewRelay("ws://relay.example.com", 1700000000)
	assert.Error(t, err)

	r, err := NewRelay("wss://relay.example.com", 1700000000)
	require.NoError(t, err)
	assert.Equal(t, NetworkClearnet, r.Network())
	assert.Equal(t, "wss://relay.example.com", r.URL())
}

func TestNewRelay_OverlayNetworksRequireWS(t *testing.T) {
	cases := []struct {
		url     string
		network Network
	}{
		{"ws://abcdefghijklmnopqrstuvwxyz234567abcdefghijklmnopqrstuvwxyz23.onion", NetworkTor},
		{"ws://example.i2p", NetworkI2P},
		{"ws://example.loki", NetworkLoki},
	}
	for _, tc := range cases {
		r, err := NewRelay(tc.url, 1700000000)
		require.NoError(t, err, tc.url)
		assert.Equal(t, tc.network, r.Network())
	}

	_, err := NewRelay("wss://example.onion", 1700000000)
	assert.Error(t, err, "overlay network must use ws not wss")
}

func TestNewRelay_RejectsQueryAndFragment(t *testing.T) {
	_, err := NewRelay("wss://relay.example.com?x=1", 0)
	assert.Error(t, err)
	_, err = NewRelay("wss://relay.example.com#frag", 0)
	assert.Error(t, err)
}

func TestNewRelay_RejectsPrivateIP(t *testing.T) {
	_, err := NewRelay("wss://127.0.0.1", 0)
	assert.Error(t, err)
	_, err = NewRelay("wss://10.0.0.5", 0)
	assert.Error(t, err)
	_, err = NewRelay("wss://localhost", 0)
	assert.Error(t, err)
}

func TestNewRelay_NoExplicitPortAccepted(t *testing.T) {
	r, err := NewRelay("wss://relay.example.com", 0)
	require.NoError(t, err)
	assert.NotContains(t, r.URL(), ":443")
}

func TestNewRelay_CanonicalizationIdempotent(t *testing.T) {
	r1, err := NewRelay("WSS://Relay.Example.COM/", 0)
	require.NoError(t, err)
	r2, err := NewRelay(r1.URL(), 0)
	require.NoError(t, err)
	assert.Equal(t, r1.URL(), r2.URL())
}
