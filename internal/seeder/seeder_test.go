// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
package seeder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bigbrotr/bigbrotr/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePersister struct {
	states   []*model.ServiceState
	existing map[string]bool
}

func (f *fakePersister) ExistingRelayURLs(ctx context.Context, urls []string) (map[string]bool, error) {
	if f.existing == nil {
		return nil, nil
	}
	out := make(map[string]bool)
	for _, u := range urls {
		if f.existing[u] {
			out[u] = true
		}
	}
	return out, nil
}

func (f *fakePersister) UpsertServiceState(ctx context.Context, states []*model.ServiceState) error {
	f.states = append(f.states, states...)
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "candidates.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestSeed_NewlineDelimitedFile(t *testing.T) {
	path := writeFile(t, "wss://relay.one.example\n# a comment\n\nwss://relay.two.example\n")
	p := &fakePersister{}

	n, err := Seed(context.Background(), p, path, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, p.states, 2)
}

func TestSeed_JSONArrayFile(t *testing.T) {
	path := writeFile(t, `["wss://relay.one.example", "wss://relay.two.example"]`)
	p := &fakePersister{}

	n, err := Seed(context.Background(), p, path, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSeed_SkipsInvalidURLs(t *testing.T) {
	path := writeFile(t, "not a url\nwss://relay.one.example\n")
	p := &fakePersister{}

	n, err := Seed(context.Background(), p, path, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSeed_SkipsURLsAlreadyRelays(t *testing.T) {
	path := writeFile(t, "wss://relay.one.example\nwss://relay.two.example\n")
	p := &fakePersister{existing: map[string]bool{"wss://relay.one.example": true}}

	n, err := Seed(context.Background(), p, path, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, p.states, 1)
	assert.Equal(t, "wss://relay.two.example", p.states[0].StateKey())
}

func TestSeed_MissingFileReturnsError(t *testing.T) {
	p := &fakePersister{}
	_, err := Seed(context.Background(), p, filepath.Join(t.TempDir(), "nope.txt"), zap.NewNop())
	assert.Error(t, err)
}
