package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalJSON_StableUnderKeyReordering(t *testing.T) {
	a := map[string]any{"b": 1, "a": []any{map[string]any{"y": 2, "x": 1}}}
	b := map[string]any{"a": []any{map[string]any{"x": 1, "y": 2}}, "b": 1}

	ca, err := CanonicalJSON(a)
	require.NoError(t, err)
	cb, err := CanonicalJSON(b)
	require.NoError(t, err)
	assert.Equal(t, string(ca), string(cb))
}

func TestContentHash_InvariantUnderKeyReordering(t *testing.T) {
	a := map[string]any{"b": 1, "a": []any{map[string]any{"y": 2, "x": 1}}}
	b := map[string]any{"a": []any{map[string]any{"x": 1, "y": 2}}, "b": 1}

	ha, err := ContentHash(a)
	require.NoError(t, err)
	hb, err := ContentHash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}
