// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
//
// cmd/monitor runs the relay health-check and NIP-66 publication loop,
// per spec.md §4.6.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bigbrotr/bigbrotr/internal/bootstrap"
	"github.com/bigbrotr/bigbrotr/internal/monitor"
	"github.com/bigbrotr/bigbrotr/internal/netsem"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "monitor",
		Usage: "probe validated relays and publish NIP-66 discovery events",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "config.yaml", Usage: "path to the YAML config file"},
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "path to a .env file providing secrets"},
			&cli.StringFlag{Name: "log-level", Usage: "override the config's log_level"},
			&cli.BoolFlag{Name: "once", Usage: "run a single cycle and exit"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "monitor:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	ctx := context.Background()

	common, err := bootstrap.Setup(ctx, c.String("config"), c.String("env-file"), "monitor", c.String("log-level"))
	if err != nil {
		return err
	}
	defer common.Pool.Close()
	defer common.Log.Sync()

	secHex, pubKey, err := bootstrap.DecodeNostrKey(common.Secrets.NostrPrivateKey)
	if err != nil {
		return fmt.Errorf("monitor: %w", err)
	}

	mcfg := common.Config.Monitor
	gate := netsem.New(netsem.Limits{
		Clearnet: mcfg.Networks.Clearnet, Tor: mcfg.Networks.Tor, I2P: mcfg.Networks.I2P, Loki: mcfg.Networks.Loki,
	})

	geo := monitor.NewGeoIP(mcfg.GeoIPDir, mcfg.GeoIPCityURL, mcfg.GeoIPASNURL, mcfg.GeoIPMaxAge, common.Log)
	if err := geo.Start(mcfg.GeoIPRefreshCron); err != nil {
		return fmt.Errorf("monitor: starting geoip refresh: %w", err)
	}
	defer geo.Stop()

	m := monitor.New(monitor.Config{
		ChunkSize:        mcfg.BatchSize,
		CheckInterval:    mcfg.CycleInterval,
		ProbeTimeout:     mcfg.ProbeTimeout,
		SOCKS5ProxyAddr:  mcfg.SOCKS5ProxyAddr,
		DNSResolverAddr:  mcfg.DNSResolverAddr,
		PublishRelays:    mcfg.PublishRelays,
		AnnounceInterval: mcfg.AnnounceInterval,
		ProfileInterval:  mcfg.ProfileInterval,
		EnabledNetworks: bootstrap.EnabledNetworksFrom(
			mcfg.Networks.Clearnet, mcfg.Networks.Tor, mcfg.Networks.I2P, mcfg.Networks.Loki,
		),
		Capabilities: mcfg.Capabilities,
	}, common.Facade, common.Facade, geo, gate, secHex, pubKey, common.Log)

	code := bootstrap.RunDaemon(ctx, "monitor", m, mcfg.CycleInterval, mcfg.MaxConsecutiveFailures, c.Bool("once"), common.Config.Metrics.Addr, common)
	if code != 0 {
		return fmt.Errorf("service exited with a non-zero code")
	}
	return nil
}
