package probe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNip11_KnownFieldsExtracted(t *testing.T) {
	body := []byte(`{
		"name": "relay.example",
		"description": "a test relay",
		"supported_nips": [11, 1, 42, 1, 66],
		"software": "bigbrotr",
		"version": "1.0",
		"limitation": {"max_message_length": 65536},
		"unknown_field": 12345
	}`)

	info, err := ParseNip11(body)
	require.NoError(t, err)
	assert.Equal(t, "relay.example", info.Name)
	assert.Equal(t, "a test relay", info.Description)
	assert.Equal(t, []int{1, 11, 42, 66}, info.SupportedNIPs)
	assert.Equal(t, "bigbrotr", info.Software)
	assert.Equal(t, float64(65536), info.Limitation["max_message_length"])
}

func TestParseNip11_InvalidFieldTypeDroppedSilently(t *testing.T) {
	body := []byte(`{"name": 12345, "description": "valid"}`)
	info, err := ParseNip11(body)
	require.NoError(t, err)
	assert.Empty(t, info.Name)
	assert.Equal(t, "valid", info.Description)
}

func TestParseNip11_InvalidJSONErrors(t *testing.T) {
	_, err := ParseNip11([]byte("not json"))
	assert.Error(t, err)
}

func TestToHTTPURL_RewritesScheme(t *testing.T) {
	u, err := toHTTPURL("wss://relay.example/path")
	require.NoError(t, err)
	assert.Equal(t, "https://relay.example/path", u)

	u2, err := toHTTPURL("ws://relay.onion")
	require.NoError(t, err)
	assert.Equal(t, "http://relay.onion", u2)
}

func TestDedupInts(t *testing.T) {
	assert.Equal(t, []int{1, 2, 3}, dedupInts([]int{1, 1, 2, 3, 3, 3}))
	assert.Empty(t, dedupInts(nil))
}
