// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
//
// cmd/synchronizer runs the per-relay incremental archival loop, per
// spec.md §4.7.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bigbrotr/bigbrotr/internal/bootstrap"
	"github.com/bigbrotr/bigbrotr/internal/netsem"
	"github.com/bigbrotr/bigbrotr/internal/synchronizer"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "synchronizer",
		Usage: "incrementally archive events from every validated relay",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "config.yaml", Usage: "path to the YAML config file"},
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "path to a .env file providing secrets"},
			&cli.StringFlag{Name: "log-level", Usage: "override the config's log_level"},
			&cli.BoolFlag{Name: "once", Usage: "run a single cycle and exit"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "synchronizer:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	ctx := context.Background()

	common, err := bootstrap.Setup(ctx, c.String("config"), c.String("env-file"), "synchronizer", c.String("log-level"))
	if err != nil {
		return err
	}
	defer common.Pool.Close()
	defer common.Log.Sync()

	scfg := common.Config.Synchronizer
	gate := netsem.New(netsem.Limits{
		Clearnet: scfg.Networks.Clearnet, Tor: scfg.Networks.Tor, I2P: scfg.Networks.I2P, Loki: scfg.Networks.Loki,
	})
	dialer := synchronizer.Dialer{SOCKS5Addr: scfg.SOCKS5ProxyAddr}

	s := synchronizer.New(synchronizer.Config{
		ChunkSize:           scfg.BatchSize,
		RelayLimit:          scfg.RelayLimit,
		DefaultStart:        scfg.DefaultStart,
		LookbackSeconds:     scfg.LookbackSeconds,
		RelayTimeout:        scfg.RelayTimeout,
		CursorFlushInterval: scfg.CursorFlushInterval,
		QueryLimit:          scfg.QueryLimit,
		EventKinds:          scfg.EventKinds,
		EnabledNetworks: bootstrap.EnabledNetworksFrom(
			scfg.Networks.Clearnet, scfg.Networks.Tor, scfg.Networks.I2P, scfg.Networks.Loki,
		),
		StaggerDelay: scfg.StaggerDelay,
	}, common.Facade, common.Facade, dialer, gate, common.Log)

	code := bootstrap.RunDaemon(ctx, "synchronizer", s, scfg.CycleInterval, scfg.MaxConsecutiveFailures, c.Bool("once"), common.Config.Metrics.Addr, common)
	if code != 0 {
		return fmt.Errorf("service exited with a non-zero code")
	}
	return nil
}
