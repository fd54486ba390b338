package finder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerceToStrings(t *testing.T) {
	assert.Equal(t, []string{"wss://a"}, coerceToStrings("wss://a"))
	assert.Equal(t, []string{"wss://a", "wss://b"}, coerceToStrings([]any{"wss://a", "wss://b", 42}))
	assert.Nil(t, coerceToStrings(42))
}

func TestFetchAndExtract_AppliesJMESPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"relays": [{"url": "wss://relay.one"}, {"url": "wss://relay.two"}]}`))
	}))
	defer srv.Close()

	f := New(Config{}, nil, nil, srv.Client(), nil)
	urls, err := f.fetchAndExtract(context.Background(), APISource{
		Name: "test", URL: srv.URL, Timeout: time.Second, JMESPath: "relays[].url",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"wss://relay.one", "wss://relay.two"}, urls)
}

func TestFetchAndExtract_NonJSONErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	f := New(Config{}, nil, nil, srv.Client(), nil)
	_, err := f.fetchAndExtract(context.Background(), APISource{URL: srv.URL, Timeout: time.Second, JMESPath: "relays"})
	assert.Error(t, err)
}
