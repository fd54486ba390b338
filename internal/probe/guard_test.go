package probe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuard_SuccessPassesThrough(t *testing.T) {
	data, logs, cancel := Guard(func() (int, error) { return 42, nil })
	assert.NoError(t, cancel)
	assert.True(t, logs.Success)
	assert.Equal(t, 42, data)
}

func TestGuard_ErrorBecomesLogs(t *testing.T) {
	data, logs, cancel := Guard(func() (int, error) { return 0, errors.New("refused") })
	assert.NoError(t, cancel)
	assert.False(t, logs.Success)
	assert.Equal(t, "refused", logs.Reason)
	assert.Zero(t, data)
}

func TestGuard_EmptyReasonFallsBackToType(t *testing.T) {
	_, logs, _ := Guard(func() (int, error) { return 0, emptyMessageError{} })
	assert.Equal(t, "probe.emptyMessageError", logs.Reason)
}

func TestGuard_PanicIsRecovered(t *testing.T) {
	data, logs, cancel := Guard(func() (string, error) {
		panic("kaboom")
	})
	assert.NoError(t, cancel)
	assert.False(t, logs.Success)
	assert.Equal(t, "kaboom", logs.Reason)
	assert.Empty(t, data)
}

func TestGuard_CancellationBypassesWrapper(t *testing.T) {
	_, logs, cancel := Guard(func() (int, error) { return 0, context.Canceled })
	assert.Equal(t, context.Canceled, cancel)
	assert.False(t, logs.Success)
	assert.Empty(t, logs.Reason)
}

type emptyMessageError struct{}

func (emptyMessageError) Error() string { return "" }
