package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetadata_ContentAddressed(t *testing.T) {
	m1, err := NewMetadata(MetadataNip11Info, map[string]any{"name": "relay"})
	require.NoError(t, err)
	m2, err := NewMetadata(MetadataNip11Info, map[string]any{"name": "relay"})
	require.NoError(t, err)
	assert.Equal(t, m1.ID(), m2.ID())
}

func TestNewMetadata_SameBytesDifferentTypeCoexist(t *testing.T) {
	data := map[string]any{"v": 1}
	m1, err := NewMetadata(MetadataNip66Rtt, data)
	require.NoError(t, err)
	m2, err := NewMetadata(MetadataNip66Ssl, data)
	require.NoError(t, err)
	assert.Equal(t, m1.ID(), m2.ID())
	assert.NotEqual(t, m1.Type(), m2.Type())
}

func TestNewMetadata_RejectsUnknownType(t *testing.T) {
	_, err := NewMetadata(MetadataType("bogus"), map[string]any{})
	assert.Error(t, err)
}

func TestFromDBParams_IntegrityCheck(t *testing.T) {
	m, err := NewMetadata(MetadataNip11Info, map[string]any{"name": "relay"})
	require.NoError(t, err)

	_, err = MetadataFromDBParams(m.ID(), m.Type(), m.Data())
	require.NoError(t, err)

	_, err = MetadataFromDBParams("deadbeef", m.Type(), m.Data())
	assert.Error(t, err)
}

func TestMetadata_DataIsDefensivelyCopied(t *testing.T) {
	m, err := NewMetadata(MetadataNip11Info, map[string]any{"name": "relay"})
	require.NoError(t, err)
	d := m.Data()
	d["name"] = "mutated"
	assert.Equal(t, "relay", m.Data()["name"])
}
