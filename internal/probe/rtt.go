// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// EphemeralProbeKind is the kind used for the RTT write-phase's
// throwaway echo event (spec.md §4.6).
const EphemeralProbeKind = 22456

// RttLogs cascades failure across the three RTT phases: if open fails,
// read and write automatically fail with the same reason and no
// further connection attempt is made.
type RttLogs struct {
	OpenSuccess bool
	OpenReason  string
	OpenMs      int64

	ReadSuccess bool
	ReadReason  string
	ReadMs      int64

	WriteSuccess bool
	WriteReason  string
	WriteMs      int64
}

// RttResult carries the measured latencies for whichever phases
// completed.
type RttResult struct {
	OpenMs  int64
	ReadMs  int64
	WriteMs int64
}

// RttDialer abstracts relay connection/subscription/publish so tests
// can substitute a fake without a real WebSocket server.
type RttDialer interface {
	Connect(ctx context.Context, url string) (RttConn, error)
}

// RttConn is the minimal relay surface the RTT probe drives.
type RttConn interface {
	SubscribeOne(ctx context.Context, filter nostr.Filter) (*nostr.Event, error)
	Publish(ctx context.Context, evt nostr.Event) error
	Close() error
}

// RunRtt executes the open/read/write phases against url using dialer,
// signing the write-phase probe event with secKey. It never panics or
// returns an error for ordinary probe failure; cancellation still
// propagates through Guard's cancelErr.
func RunRtt(ctx context.Context, dialer RttDialer, url string, secKey string, writeTimeout time.Duration) (RttResult, RttLogs, error) {
	var result RttResult
	var logs RttLogs

	conn, openLogs, cancelErr := Guard(func() (RttConn, error) {
		start := time.Now()
		c, err := dialer.Connect(ctx, url)
		if err != nil {
			return nil, err
		}
		result.OpenMs = time.Since(start).Milliseconds()
		return c, nil
	})
	if cancelErr != nil {
		return result, logs, cancelErr
	}
	logs.OpenSuccess = openLogs.Success
	logs.OpenReason = openLogs.Reason
	logs.OpenMs = result.OpenMs

	if !openLogs.Success {
		logs.ReadSuccess, logs.ReadReason = false, openLogs.Reason
		logs.WriteSuccess, logs.WriteReason = false, openLogs.Reason
		return result, logs, nil
	}
	defer conn.Close()

	_, readLogs, cancelErr := Guard(func() (struct{}, error) {
		start := time.Now()
		_, err := conn.SubscribeOne(ctx, nostr.Filter{Limit: 1})
		if err != nil {
			return struct{}{}, err
		}
		result.ReadMs = time.Since(start).Milliseconds()
		return struct{}{}, nil
	})
	if cancelErr != nil {
		return result, logs, cancelErr
	}
	logs.ReadSuccess = readLogs.Success
	logs.ReadReason = readLogs.Reason
	logs.ReadMs = result.ReadMs

	_, writeLogs, cancelErr := Guard(func() (struct{}, error) {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()

		evt, err := buildEchoEvent(secKey)
		if err != nil {
			return struct{}{}, err
		}
		start := time.Now()
		if err := conn.Publish(wctx, evt); err != nil {
			return struct{}{}, fmt.Errorf("publishing echo event: %w", err)
		}
		echoed, err := conn.SubscribeOne(wctx, nostr.Filter{IDs: []string{evt.ID}})
		if err != nil {
			return struct{}{}, fmt.Errorf("waiting for echo: %w", err)
		}
		if echoed == nil || echoed.ID != evt.ID {
			return struct{}{}, fmt.Errorf("relay did not echo published event")
		}
		result.WriteMs = time.Since(start).Milliseconds()
		return struct{}{}, nil
	})
	if cancelErr != nil {
		return result, logs, cancelErr
	}
	logs.WriteSuccess = writeLogs.Success
	logs.WriteReason = writeLogs.Reason
	logs.WriteMs = result.WriteMs

	return result, logs, nil
}

func buildEchoEvent(secKey string) (nostr.Event, error) {
	evt := nostr.Event{
		Kind:      EphemeralProbeKind,
		CreatedAt: nostr.Now(),
		Content:   "bigbrotr-rtt-probe",
		Tags:      nostr.Tags{},
	}
	if err := evt.Sign(secKey); err != nil {
		return nostr.Event{}, fmt.Errorf("signing echo event: %w", err)
	}
	return evt, nil
}
