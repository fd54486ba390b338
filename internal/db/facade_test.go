package db

import (
	"testing"

	"github.com/bigbrotr/bigbrotr/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestFacade_Chunks(t *testing.T) {
	f := &Facade{maxBatch: 3}

	assert.Equal(t, [][2]int{{0, 3}, {3, 6}, {6, 7}}, f.chunks(7))
	assert.Equal(t, [][2]int{{0, 0}}, f.chunks(0))
	assert.Equal(t, [][2]int{{0, 2}}, f.chunks(2))
}

func TestNew_DefaultsMaxBatch(t *testing.T) {
	f := New(nil, DefaultTimeouts(), 0)
	assert.Equal(t, 1000, f.maxBatch)

	f2 := New(nil, DefaultTimeouts(), 50)
	assert.Equal(t, 50, f2.maxBatch)
}

func TestRefreshMaterializedView_RejectsInvalidNames(t *testing.T) {
	f := New(nil, DefaultTimeouts(), 10)

	for _, bad := range []string{"Relay_Stats", "relay-stats", "1relay", "relay;drop table x", ""} {
		err := f.RefreshMaterializedView(nil, bad) //nolint:staticcheck // nil ctx never reached: validation short-circuits
		assert.Error(t, err, bad)
	}
}

func TestViewNamePattern_AcceptsValidIdentifiers(t *testing.T) {
	for _, good := range []string{"relay_health_7d", "_private", "a"} {
		assert.True(t, viewNamePattern.MatchString(good), good)
	}
}

func TestRequireEqualLengths(t *testing.T) {
	assert.NoError(t, requireEqualLengths(3, []string{"a", "b", "c"}, []int64{1, 2, 3}))
	assert.Error(t, requireEqualLengths(3, []string{"a", "b"}))
}

func TestCommandTagRows(t *testing.T) {
	assert.Equal(t, int64(3), commandTagRows("DELETE 3"))
	assert.Equal(t, int64(1), commandTagRows("UPDATE 1"))
	assert.Equal(t, int64(0), commandTagRows(""))
	assert.Equal(t, int64(0), commandTagRows("SELECT"))
}

func TestNetworkList(t *testing.T) {
	assert.Nil(t, networkList(nil))
	got := networkList(map[model.Network]bool{model.NetworkClearnet: true, model.NetworkTor: false})
	assert.Equal(t, []string{"clearnet"}, got)
}
