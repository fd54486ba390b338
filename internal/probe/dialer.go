// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
package probe

import (
	"context"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
)

// NostrDialer is the production RttDialer backed by go-nostr's
// RelayConnect, the same constructor the teacher's RelayStore uses for
// every outbound connection.
type NostrDialer struct{}

func (NostrDialer) Connect(ctx context.Context, url string) (RttConn, error) {
	rl, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", url, err)
	}
	return &nostrConn{relay: rl}, nil
}

type nostrConn struct {
	relay *nostr.Relay
}

func (c *nostrConn) SubscribeOne(ctx context.Context, filter nostr.Filter) (*nostr.Event, error) {
	sub, err := c.relay.Subscribe(ctx, nostr.Filters{filter})
	if err != nil {
		return nil, fmt.Errorf("subscribing: %w", err)
	}
	defer sub.Unsub()

	select {
	case evt, ok := <-sub.Events:
		if !ok {
			return nil, fmt.Errorf("subscription closed before an event arrived")
		}
		return evt, nil
	case <-sub.EndOfStoredEvents:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *nostrConn) Publish(ctx context.Context, evt nostr.Event) error {
	return c.relay.Publish(ctx, evt)
}

func (c *nostrConn) Close() error {
	return c.relay.Close()
}
