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

	"github.com/bigbrotr/bigbrotr/internal/model"
	"github.com/bigbrotr/bigbrotr/internal/netsem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRelayStore struct {
	relays []*model.Relay
}

func (f *fakeRelayStore) ListRelaysDueForCheck(ctx context.Context, maxAge time.Duration, limit int, networks map[model.Network]bool) ([]*model.Relay, error) {
	return f.relays, nil
}

func TestRunOnce_NoRelaysDueSkipsProbingAndAnnouncementsOff(t *testing.T) {
	store := &fakeRelayStore{}
	persister := &fakePublishPersister{states: map[string]*model.ServiceState{}}
	m := New(Config{ChunkSize: 10}, persister, store, nil, netsem.New(netsem.DefaultLimits()), "", "", zap.NewNop())

	err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, persister.states, "no announce/profile interval configured, nothing should be recorded")
}
