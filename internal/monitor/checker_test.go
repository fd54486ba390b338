// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
package monitor

import (
	"testing"

	"github.com/bigbrotr/bigbrotr/internal/model"
	"github.com/bigbrotr/bigbrotr/internal/probe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRelay(t *testing.T, url string) *model.Relay {
	t.Helper()
	r, err := model.NewRelay(url, 1700000000)
	require.NoError(t, err)
	return r
}

func TestHostPort_ClearnetDefaultsAndExplicitPort(t *testing.T) {
	host, port, clearnet := hostPort(mustRelay(t, "wss://relay.example.com"))
	assert.Equal(t, "relay.example.com", host)
	assert.Equal(t, 443, port)
	assert.True(t, clearnet)

	host, port, clearnet = hostPort(mustRelay(t, "wss://relay.example.com:8443"))
	assert.Equal(t, "relay.example.com", host)
	assert.Equal(t, 8443, port)
	assert.True(t, clearnet)
}

func TestHostPort_OverlayNotClearnet(t *testing.T) {
	_, _, clearnet := hostPort(mustRelay(t, "ws://abc123def456ghi789jklmnopqrstuvwxyz0123456789abcdefghijklmno.onion"))
	assert.False(t, clearnet)
}

func TestCheckResult_MetadataRowsSkipsNil(t *testing.T) {
	md, err := model.NewMetadata(model.MetadataNip11Info, map[string]any{"name": "x"})
	require.NoError(t, err)
	cr := CheckResult{Nip11: md}
	assert.Len(t, cr.metadataRows(), 1)
}

func TestSslCache_RoundTrips(t *testing.T) {
	c := newSSLCache(4)
	_, ok := c.get("relay.example.com")
	assert.False(t, ok)

	info := probe.SslInfo{SubjectCN: "relay.example.com", Valid: true}
	c.put("relay.example.com", info)

	got, ok := c.get("relay.example.com")
	require.True(t, ok)
	assert.Equal(t, info, got)
}

func TestMetadataBuilders_ProduceContentAddressedRows(t *testing.T) {
	md, err := nip11Metadata(probe.Nip11Info{Name: "r", SupportedNIPs: []int{1, 11}})
	require.NoError(t, err)
	assert.Equal(t, model.MetadataNip11Info, md.Type())
	assert.NotEmpty(t, md.ID())

	md2, err := nip11Metadata(probe.Nip11Info{Name: "r", SupportedNIPs: []int{1, 11}})
	require.NoError(t, err)
	assert.Equal(t, md.ID(), md2.ID(), "identical probe output must content-address identically")
}

func TestIntsToAny_PreservesOrder(t *testing.T) {
	assert.Equal(t, []any{1, 11, 42}, intsToAny([]int{1, 11, 42}))
}
