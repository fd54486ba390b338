// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
//
// Package netsem bounds in-flight connection attempts per network so a
// slow batch of .onion relays cannot starve clearnet throughput, and so
// a misconfigured SOCKS5 proxy cannot exhaust file descriptors.
package netsem

import (
	"context"
	"fmt"

	"github.com/bigbrotr/bigbrotr/internal/model"
	"golang.org/x/sync/semaphore"
)

// Limits sets the weight of each network's semaphore. Zero or negative
// entries fall back to the package defaults.
type Limits struct {
	Clearnet int64
	Tor      int64
	I2P      int64
	Loki     int64
}

// DefaultLimits matches spec.md's suggested concurrency bounds.
func DefaultLimits() Limits {
	return Limits{Clearnet: 50, Tor: 10, I2P: 5, Loki: 5}
}

// Gate holds one weighted semaphore per Network.
type Gate struct {
	sems map[model.Network]*semaphore.Weighted
}

// New builds a Gate from Limits, substituting defaults for non-positive
// entries.
func New(limits Limits) *Gate {
	def := DefaultLimits()
	weight := func(v, d int64) int64 {
		if v <= 0 {
			return d
		}
		return v
	}
	return &Gate{
		sems: map[model.Network]*semaphore.Weighted{
			model.NetworkClearnet: semaphore.NewWeighted(weight(limits.Clearnet, def.Clearnet)),
			model.NetworkTor:      semaphore.NewWeighted(weight(limits.Tor, def.Tor)),
			model.NetworkI2P:      semaphore.NewWeighted(weight(limits.I2P, def.I2P)),
			model.NetworkLoki:     semaphore.NewWeighted(weight(limits.Loki, def.Loki)),
		},
	}
}

// Acquire blocks until a slot is free on net's semaphore or ctx is done.
func (g *Gate) Acquire(ctx context.Context, net model.Network) error {
	sem, ok := g.sems[net]
	if !ok {
		return fmt.Errorf("netsem: unknown network %q", net)
	}
	return sem.Acquire(ctx, 1)
}

// Release returns a previously acquired slot on net's semaphore.
func (g *Gate) Release(net model.Network) {
	if sem, ok := g.sems[net]; ok {
		sem.Release(1)
	}
}

// Do acquires net's slot, runs fn, and releases the slot unconditionally.
func (g *Gate) Do(ctx context.Context, net model.Network, fn func(context.Context) error) error {
	if err := g.Acquire(ctx, net); err != nil {
		return err
	}
	defer g.Release(net)
	return fn(ctx)
}
