// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
//
// Package model holds the frozen, validated entities shared by every
// BigBrotr service: Relay, Event, Metadata, ServiceState and their
// junction records. Every constructor performs full validation and the
// returned value is immutable — there are no setters.
package model

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Network classifies the transport a Relay is reached over.
type Network string

const (
	NetworkClearnet Network = "clearnet"
	NetworkTor      Network = "tor"
	NetworkI2P      Network = "i2p"
	NetworkLoki     Network = "loki"
)

// Relay is a validated WebSocket endpoint. Zero value is not usable;
// construct with NewRelay.
type Relay struct {
	url          string
	network      Network
	discoveredAt int64
	dbParams     [3]any
}

// NewRelay canonicalizes and validates a candidate URL, deriving its
// Network from the authority's top-level label and enforcing the
// scheme/authority invariants from the data model spec.
func NewRelay(rawURL string, discoveredAt int64) (*Relay, error) {
	canon, network, err := canonicalizeRelayURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("relay: %w", err)
	}
	r := &Relay{
		url:          canon,
		network:      network,
		discoveredAt: discoveredAt,
	}
	r.dbParams = [3]any{r.url, string(r.network), r.discoveredAt}
	return r, nil
}

// URL returns the canonical scheme+authority+path.
func (r *Relay) URL() string { return r.url }

// Network returns the derived network classification.
func (r *Relay) Network() Network { return r.network }

// DiscoveredAt returns the immutable discovery timestamp (Unix seconds).
func (r *Relay) DiscoveredAt() int64 { return r.discoveredAt }

// DBParams returns the cached (url, network, discovered_at) tuple used
// by the facade's parallel-array inserts.
func (r *Relay) DBParams() [3]any { return r.dbParams }

// FromDBParams reconstructs a Relay from stored column values, without
// re-running canonicalization (the row is assumed already canonical).
func FromDBParams(rawURL string, network string, discoveredAt int64) *Relay {
	r := &Relay{url: rawURL, network: Network(network), discoveredAt: discoveredAt}
	r.dbParams = [3]any{r.url, string(r.network), r.discoveredAt}
	return r
}

func canonicalizeRelayURL(raw string) (string, Network, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return "", "", fmt.Errorf("URL %q must not carry a query or fragment", raw)
	}
	host := u.Hostname()
	if host == "" {
		return "", "", fmt.Errorf("URL %q has no host", raw)
	}
	network := networkFor(host)

	scheme := strings.ToLower(u.Scheme)
	wantScheme := "ws"
	if network == NetworkClearnet {
		wantScheme = "wss"
	}
	if scheme != wantScheme {
		return "", "", fmt.Errorf("URL %q must use scheme %q for network %q, got %q", raw, wantScheme, network, scheme)
	}

	if network == NetworkClearnet {
		if err := rejectPrivateHost(host); err != nil {
			return "", "", err
		}
	}

	lowerHost := strings.ToLower(host)
	authority := lowerHost
	if u.Port() != "" {
		authority = net.JoinHostPort(lowerHost, u.Port())
	}
	path := u.Path
	if path == "/" {
		path = ""
	}
	canon := scheme + "://" + authority + path
	return canon, network, nil
}

func networkFor(host string) Network {
	h := strings.ToLower(host)
	switch {
	case strings.HasSuffix(h, ".onion"):
		return NetworkTor
	case strings.HasSuffix(h, ".i2p"):
		return NetworkI2P
	case strings.HasSuffix(h, ".loki"):
		return NetworkLoki
	default:
		return NetworkClearnet
	}
}

func rejectPrivateHost(host string) error {
	ip := net.ParseIP(host)
	if ip == nil {
		// hostname, not a literal IP — DNS-level privacy is checked
		// separately by the probe layer; construction only rejects
		// obviously-local literal addresses and names.
		if host == "localhost" {
			return fmt.Errorf("host %q is local, rejected", host)
		}
		return nil
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return fmt.Errorf("host %q resolves to a private/local address, rejected", host)
	}
	return nil
}
