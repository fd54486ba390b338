// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
//
// cmd/validator runs the candidate-promotion loop, per spec.md §4.5.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bigbrotr/bigbrotr/internal/bootstrap"
	"github.com/bigbrotr/bigbrotr/internal/model"
	"github.com/bigbrotr/bigbrotr/internal/netsem"
	"github.com/bigbrotr/bigbrotr/internal/probe"
	"github.com/bigbrotr/bigbrotr/internal/validator"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "validator",
		Usage: "probe candidate relays and promote the ones that answer",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "config.yaml", Usage: "path to the YAML config file"},
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "path to a .env file providing secrets"},
			&cli.StringFlag{Name: "log-level", Usage: "override the config's log_level"},
			&cli.BoolFlag{Name: "once", Usage: "run a single cycle and exit"},
			&cli.StringFlag{Name: "socks5-addr", Usage: "SOCKS5 proxy address for tor/i2p/loki candidate checks"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "validator:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	ctx := context.Background()

	common, err := bootstrap.Setup(ctx, c.String("config"), c.String("env-file"), "validator", c.String("log-level"))
	if err != nil {
		return err
	}
	defer common.Pool.Close()
	defer common.Log.Sync()

	vcfg := common.Config.Validator
	gate := netsem.New(netsem.Limits{
		Clearnet: vcfg.Networks.Clearnet, Tor: vcfg.Networks.Tor, I2P: vcfg.Networks.I2P, Loki: vcfg.Networks.Loki,
	})

	socks5Addr := c.String("socks5-addr")
	checker := func(ctx context.Context, url string, network model.Network, timeout time.Duration) bool {
		return probe.CheckIsRelay(ctx, network, socks5Addr, url, timeout)
	}

	v := validator.New(validator.Config{
		ChunkSize:       vcfg.BatchSize,
		MaxFailures:     vcfg.MaxFailedAttempts,
		MaxCandidateAge: vcfg.MaxCandidateAge,
		ProbeTimeout:    vcfg.ProbeTimeout,
		EnabledNetworks: bootstrap.EnabledNetworksFrom(
			vcfg.Networks.Clearnet, vcfg.Networks.Tor, vcfg.Networks.I2P, vcfg.Networks.Loki,
		),
	}, common.Facade, common.Facade, checker, gate, common.Log)

	code := bootstrap.RunDaemon(ctx, "validator", v, vcfg.CycleInterval, vcfg.MaxConsecutiveFailures, c.Bool("once"), common.Config.Metrics.Addr, common)
	if code != 0 {
		return fmt.Errorf("service exited with a non-zero code")
	}
	return nil
}
