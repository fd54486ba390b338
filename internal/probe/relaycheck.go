// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
package probe

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bigbrotr/bigbrotr/internal/model"
	"github.com/coder/websocket"
	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/net/proxy"
)

// CheckIsRelay answers the validator's is_nostr_relay question within
// timeout. Clearnet candidates (and overlay candidates when socks5Addr
// is empty) pass as soon as go-nostr's RelayConnect opens the WebSocket;
// no REQ is sent to them. Overlay candidates with a proxy get a REQ over
// a SOCKS5-proxied WebSocket, since go-nostr's public RelayConnect has
// no dialer hook to pass a proxy through, and pass on the first frame
// read back, whatever its type (EOSE is not specifically required).
func CheckIsRelay(ctx context.Context, net model.Network, socks5Addr, url string, timeout time.Duration) bool {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if net == model.NetworkClearnet || socks5Addr == "" {
		rl, err := nostr.RelayConnect(cctx, url)
		if err != nil {
			return false
		}
		defer rl.Close()
		return true
	}

	dialer, err := proxy.SOCKS5("tcp", socks5Addr, nil, proxy.Direct)
	if err != nil {
		return false
	}
	contextDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return false
	}
	client := &http.Client{Transport: &http.Transport{DialContext: contextDialer.DialContext}}

	conn, _, err := websocket.Dial(cctx, url, &websocket.DialOptions{HTTPClient: client})
	if err != nil {
		return false
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	req, err := json.Marshal([]any{"REQ", "probe", nostr.Filter{Limit: 1}})
	if err != nil {
		return false
	}
	if err := conn.Write(cctx, websocket.MessageText, req); err != nil {
		return false
	}
	_, _, err = conn.Read(cctx)
	return err == nil
}
