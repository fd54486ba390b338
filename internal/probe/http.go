// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
package probe

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HttpInfo carries the Server and X-Powered-By response headers.
type HttpInfo struct {
	Server       string
	XPoweredBy   string
}

// RunHttp issues its own plain GET to the relay's http(s) URL through
// client and records the Server and X-Powered-By response headers. It
// does not observe the RTT probe's WebSocket handshake; the headers come
// from this separate request.
func RunHttp(ctx context.Context, client *http.Client, relayURL string, timeout time.Duration) (HttpInfo, Logs, error) {
	return Guard(func() (HttpInfo, error) {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		httpURL, err := toHTTPURL(relayURL)
		if err != nil {
			return HttpInfo{}, err
		}
		req, err := http.NewRequestWithContext(cctx, http.MethodGet, httpURL, nil)
		if err != nil {
			return HttpInfo{}, fmt.Errorf("http probe: building request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return HttpInfo{}, fmt.Errorf("http probe: %s: %w", httpURL, err)
		}
		defer resp.Body.Close()

		return HttpInfo{
			Server:     resp.Header.Get("Server"),
			XPoweredBy: resp.Header.Get("X-Powered-By"),
		}, nil
	})
}
