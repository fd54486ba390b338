// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/bigbrotr/bigbrotr/internal/model"
	"golang.org/x/net/proxy"
)

// Nip11Info is the relay information document's extracted fields.
type Nip11Info struct {
	Name          string
	Description   string
	Pubkey        string
	Contact       string
	SupportedNIPs []int
	Software      string
	Version       string
	Limitation    map[string]any
	Language      []string
	Posting       map[string]any
	PaymentsURL   string
}

// fieldParser decodes one NIP-11 field; ok is false when the raw value
// has the wrong shape, so the field is silently dropped.
type fieldParser func(raw json.RawMessage, into *Nip11Info) (ok bool)

var nip11Fields = map[string]fieldParser{
	"name":        parseString(func(i *Nip11Info, v string) { i.Name = v }),
	"description": parseString(func(i *Nip11Info, v string) { i.Description = v }),
	"pubkey":      parseString(func(i *Nip11Info, v string) { i.Pubkey = v }),
	"contact":     parseString(func(i *Nip11Info, v string) { i.Contact = v }),
	"software":    parseString(func(i *Nip11Info, v string) { i.Software = v }),
	"version":     parseString(func(i *Nip11Info, v string) { i.Version = v }),
	"payments_url": parseString(func(i *Nip11Info, v string) { i.PaymentsURL = v }),
	"supported_nips": func(raw json.RawMessage, into *Nip11Info) bool {
		var nips []int
		if err := json.Unmarshal(raw, &nips); err != nil {
			return false
		}
		sort.Ints(nips)
		into.SupportedNIPs = dedupInts(nips)
		return true
	},
	"language_tags": func(raw json.RawMessage, into *Nip11Info) bool {
		var langs []string
		if err := json.Unmarshal(raw, &langs); err != nil {
			return false
		}
		into.Language = langs
		return true
	},
	"limitation": parseObject(func(i *Nip11Info, v map[string]any) { i.Limitation = v }),
	"posting_policy": func(raw json.RawMessage, into *Nip11Info) bool {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			into.Posting = map[string]any{"policy": s}
			return true
		}
		return false
	},
}

func parseString(set func(*Nip11Info, string)) fieldParser {
	return func(raw json.RawMessage, into *Nip11Info) bool {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return false
		}
		set(into, s)
		return true
	}
}

func parseObject(set func(*Nip11Info, map[string]any)) fieldParser {
	return func(raw json.RawMessage, into *Nip11Info) bool {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return false
		}
		set(into, m)
		return true
	}
}

func dedupInts(sorted []int) []int {
	out := sorted[:0:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return out
}

// ParseNip11 folds the declarative field table over a decoded NIP-11
// document, dropping any field whose value fails to parse.
func ParseNip11(body []byte) (Nip11Info, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return Nip11Info{}, fmt.Errorf("nip11: invalid JSON document: %w", err)
	}
	var info Nip11Info
	for name, raw := range doc {
		parser, known := nip11Fields[name]
		if !known {
			continue
		}
		parser(raw, &info)
	}
	return info, nil
}

// HTTPClientFor builds an http.Client appropriate to network: a direct
// client for clearnet, or one dialing through a SOCKS5 proxy for
// overlay networks (spec.md §6.8's "HTTP through SOCKS5 proxy").
func HTTPClientFor(net model.Network, socks5Addr string, timeout time.Duration) (*http.Client, error) {
	if net == model.NetworkClearnet || socks5Addr == "" {
		return &http.Client{Timeout: timeout}, nil
	}
	dialer, err := proxy.SOCKS5("tcp", socks5Addr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("nip11: building SOCKS5 dialer: %w", err)
	}
	contextDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("nip11: SOCKS5 dialer does not support context")
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &http.Transport{DialContext: contextDialer.DialContext},
	}, nil
}

// FetchNip11 GETs the relay's information document, rewriting the
// ws(s):// scheme to http(s):// and setting Accept: application/nostr+json.
func FetchNip11(ctx context.Context, client *http.Client, relayURL string) (Nip11Info, error) {
	httpURL, err := toHTTPURL(relayURL)
	if err != nil {
		return Nip11Info{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httpURL, nil)
	if err != nil {
		return Nip11Info{}, fmt.Errorf("nip11: building request: %w", err)
	}
	req.Header.Set("Accept", "application/nostr+json")

	resp, err := client.Do(req)
	if err != nil {
		return Nip11Info{}, fmt.Errorf("nip11: fetching %s: %w", httpURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Nip11Info{}, fmt.Errorf("nip11: %s returned HTTP %d", httpURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Nip11Info{}, fmt.Errorf("nip11: reading body: %w", err)
	}
	return ParseNip11(body)
}

func toHTTPURL(relayURL string) (string, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return "", fmt.Errorf("nip11: invalid relay URL %q: %w", relayURL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	return u.String(), nil
}
