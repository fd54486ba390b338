// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/bigbrotr/bigbrotr/internal/db"
	"github.com/bigbrotr/bigbrotr/internal/model"
	"github.com/bigbrotr/bigbrotr/internal/probe"
	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nostrTag(values ...string) nostr.Tag { return nostr.Tag(values) }

func assertNoTagNamed(t *testing.T, tags nostr.Tags, name string) {
	t.Helper()
	for _, tag := range tags {
		if len(tag) > 0 && tag[0] == name {
			t.Fatalf("unexpected tag %q present: %v", name, tag)
		}
	}
}

func TestDiscoveryTags_OnlySuccessfulProbesEmitTags(t *testing.T) {
	r := mustRelay(t, "wss://relay.example.com")

	rttMD, err := model.NewMetadata(model.MetadataNip66Rtt, map[string]any{
		"open_ms": int64(42), "open_success": true,
		"read_ms": int64(0), "read_success": false,
		"write_ms": int64(0), "write_success": false,
	})
	require.NoError(t, err)

	cr := CheckResult{Relay: r, Rtt: rttMD}
	tags := discoveryTags(cr)

	assert.Contains(t, tags, nostrTag("d", "wss://relay.example.com"))
	assert.Contains(t, tags, nostrTag("rtt-open", "42"))
	assertNoTagNamed(t, tags, "rtt-read")
	assertNoTagNamed(t, tags, "rtt-write")
}

func TestDiscoveryTags_GeoAndNetAndSsl(t *testing.T) {
	r := mustRelay(t, "wss://relay.example.com")
	sslMD, err := model.NewMetadata(model.MetadataNip66Ssl, map[string]any{"valid": true})
	require.NoError(t, err)
	netMD, err := model.NewMetadata(model.MetadataNip66Net, map[string]any{"ip": "1.2.3.4"})
	require.NoError(t, err)
	geoMD, err := model.NewMetadata(model.MetadataNip66Geo, map[string]any{"geohash": "u4pruydqqvj"})
	require.NoError(t, err)

	cr := CheckResult{
		Relay: r,
		Ssl:   sslMD,
		Net:   netMD,
		Geo:   geoMD,
		info: checkInfo{
			ssl: probe.SslInfo{Valid: true, IssuerCN: "Let's Encrypt"},
			net: probe.NetInfo{IP: "1.2.3.4", ASN: 64512, ASOrg: "Example Net"},
			geo: probe.GeoInfo{Geohash: "u4pruydqqvj", Country: "NL"},
		},
	}

	tags := discoveryTags(cr)
	assert.Contains(t, tags, nostrTag("ssl-issuer", "Let's Encrypt"))
	assert.Contains(t, tags, nostrTag("net-ip", "1.2.3.4"))
	assert.Contains(t, tags, nostrTag("net-asn-org", "Example Net"))
	assert.Contains(t, tags, nostrTag("g", "u4pruydqqvj"))
	assert.Contains(t, tags, nostrTag("geo-country", "NL"))
}

func TestFrequencyTags_RendersSecondsPerType(t *testing.T) {
	m := &Monitor{cfg: Config{ProbeFrequencies: map[string]time.Duration{"nip66_rtt": time.Hour}}}
	tags := m.FrequencyTags()
	require.Len(t, tags, 1)
	assert.Equal(t, "f", tags[0][0])
	assert.Equal(t, "nip66_rtt", tags[0][1])
	assert.Equal(t, "3600", tags[0][2])
}

type fakePublishPersister struct {
	states map[string]*model.ServiceState
}

func (f *fakePublishPersister) InsertRelayMetadataCascade(ctx context.Context, records []db.RelayMetadataRecord) error {
	return nil
}

func (f *fakePublishPersister) UpsertServiceState(ctx context.Context, states []*model.ServiceState) error {
	for _, s := range states {
		f.states[s.StateKey()] = s
	}
	return nil
}

func (f *fakePublishPersister) GetServiceState(ctx context.Context, name string, stateType model.StateType, key *string) ([]*model.ServiceState, error) {
	if key == nil {
		return nil, nil
	}
	if s, ok := f.states[*key]; ok {
		return []*model.ServiceState{s}, nil
	}
	return nil, nil
}

func TestPublicationDue_FirstTimeIsDue(t *testing.T) {
	p := &fakePublishPersister{states: map[string]*model.ServiceState{}}
	m := &Monitor{facade: p, log: zap.NewNop()}

	due, err := m.publicationDue(context.Background(), "announcement", time.Hour)
	require.NoError(t, err)
	assert.True(t, due)
}

func TestPublicationDue_ZeroIntervalNeverDue(t *testing.T) {
	p := &fakePublishPersister{states: map[string]*model.ServiceState{}}
	m := &Monitor{facade: p, log: zap.NewNop()}

	due, err := m.publicationDue(context.Background(), "announcement", 0)
	require.NoError(t, err)
	assert.False(t, due)
}

func TestPublicationDue_RecentPublicationNotDue(t *testing.T) {
	p := &fakePublishPersister{states: map[string]*model.ServiceState{}}
	m := &Monitor{facade: p, log: zap.NewNop()}

	require.NoError(t, m.recordPublication(context.Background(), "announcement"))
	due, err := m.publicationDue(context.Background(), "announcement", time.Hour)
	require.NoError(t, err)
	assert.False(t, due)
}
