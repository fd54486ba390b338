// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
package synchronizer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bigbrotr/bigbrotr/internal/model"
	"github.com/coder/websocket"
	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/net/proxy"
)

// Conn is the minimal relay surface the synchronizer drives: one
// historical query returning every event the relay holds for a filter.
type Conn interface {
	QuerySync(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error)
	Close() error
}

// Dialer builds a Conn for a relay, routing clearnet relays through
// go-nostr's own dialer (as the teacher's relaystore.go does) and
// overlay relays through a SOCKS5 proxy, per spec.md §4.7.
type Dialer struct {
	SOCKS5Addr string
}

// Connect opens a relay connection appropriate to network.
func (d Dialer) Connect(ctx context.Context, network model.Network, url string) (Conn, error) {
	if network == model.NetworkClearnet || d.SOCKS5Addr == "" {
		rl, err := nostr.RelayConnect(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("connecting to %s: %w", url, err)
		}
		return &nostrConn{relay: rl}, nil
	}
	return dialOverlay(ctx, d.SOCKS5Addr, url)
}

type nostrConn struct {
	relay *nostr.Relay
}

func (c *nostrConn) QuerySync(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	return c.relay.QuerySync(ctx, filter)
}

func (c *nostrConn) Close() error { return c.relay.Close() }

// dialOverlay drives the NIP-01 REQ/EVENT/EOSE handshake directly over
// a coder/websocket connection tunneled through a SOCKS5 proxy. go-nostr's
// own dialer has no pluggable proxy hook, so .onion/.i2p/.loki relays
// bypass it entirely in favor of this minimal client.
func dialOverlay(ctx context.Context, socks5Addr, url string) (Conn, error) {
	dialer, err := proxy.SOCKS5("tcp", socks5Addr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("building SOCKS5 dialer: %w", err)
	}
	contextDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("SOCKS5 dialer does not support context")
	}
	client := &http.Client{Transport: &http.Transport{DialContext: contextDialer.DialContext}}

	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPClient: client})
	if err != nil {
		return nil, fmt.Errorf("dialing %s through SOCKS5: %w", url, err)
	}
	return &overlayConn{conn: conn}, nil
}

type overlayConn struct {
	conn *websocket.Conn
}

func (c *overlayConn) QuerySync(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	const subID = "sync"
	reqFrame, err := json.Marshal([]any{"REQ", subID, filter})
	if err != nil {
		return nil, fmt.Errorf("encoding REQ: %w", err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, reqFrame); err != nil {
		return nil, fmt.Errorf("writing REQ: %w", err)
	}
	defer func() {
		closeFrame, _ := json.Marshal([]any{"CLOSE", subID})
		_ = c.conn.Write(context.Background(), websocket.MessageText, closeFrame)
	}()

	var events []*nostr.Event
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return events, fmt.Errorf("reading frame: %w", err)
		}
		var frame []json.RawMessage
		if err := json.Unmarshal(data, &frame); err != nil || len(frame) == 0 {
			continue
		}
		var label string
		if err := json.Unmarshal(frame[0], &label); err != nil {
			continue
		}
		switch label {
		case "EVENT":
			if len(frame) < 3 {
				continue
			}
			var evt nostr.Event
			if err := json.Unmarshal(frame[2], &evt); err != nil {
				continue
			}
			events = append(events, &evt)
		case "EOSE", "CLOSED", "NOTICE":
			return events, nil
		}
	}
}

func (c *overlayConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
