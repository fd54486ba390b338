// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
//
// Package probe implements the never-raise NIP-11/NIP-66 health-check
// state machines shared by the validator and monitor services. Every
// probe returns a (data, Logs) pair; Guard is the boundary that turns a
// panic or error into Logs instead of letting it escape, except for
// context cancellation, which is never a probe failure and propagates.
package probe

import (
	"context"
	"errors"
	"fmt"
)

// Logs is the universal never-raise result carried by every probe.
type Logs struct {
	Success bool
	Reason  string
}

func failureLogs(err error) Logs {
	reason := err.Error()
	if reason == "" {
		reason = fmt.Sprintf("%T", err)
	}
	return Logs{Success: false, Reason: reason}
}

func failureLogsFromPanic(r any) Logs {
	if err, ok := r.(error); ok {
		return failureLogs(err)
	}
	reason := fmt.Sprintf("%v", r)
	if reason == "" {
		reason = fmt.Sprintf("%T", r)
	}
	return Logs{Success: false, Reason: reason}
}

// Guard runs fn and converts any error or panic into Logs. If fn fails
// with context.Canceled or context.DeadlineExceeded, Guard does not
// convert it: it returns the zero value of T, zero Logs, and the
// cancellation error itself, so the caller can propagate shutdown
// instead of recording it as a probe failure.
func Guard[T any](fn func() (T, error)) (data T, logs Logs, cancelErr error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			data = zero
			logs = failureLogsFromPanic(r)
		}
	}()

	d, err := fn()
	if err == nil {
		return d, Logs{Success: true}, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		var zero T
		return zero, Logs{}, err
	}
	var zero T
	return zero, failureLogs(err), nil
}
