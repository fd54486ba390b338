// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
//
// cmd/seeder is the one-shot binary that promotes a static file of
// relay URLs into the candidate pool, per spec.md §1/§8.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bigbrotr/bigbrotr/internal/bootstrap"
	"github.com/bigbrotr/bigbrotr/internal/seeder"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := &cli.App{
		Name:  "seeder",
		Usage: "promote a static relay URL list into the candidate pool",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "config.yaml", Usage: "path to the YAML config file"},
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "path to a .env file providing secrets"},
			&cli.StringFlag{Name: "log-level", Usage: "override the config's log_level (DEBUG, INFO, WARN, ERROR)"},
			&cli.StringFlag{Name: "candidates-file", Usage: "override the config's seeder.input_path"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "seeder:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	ctx := context.Background()

	common, err := bootstrap.Setup(ctx, c.String("config"), c.String("env-file"), "seeder", c.String("log-level"))
	if err != nil {
		return err
	}
	defer common.Pool.Close()
	defer common.Log.Sync()

	path := c.String("candidates-file")
	if path == "" {
		path = common.Config.Seeder.InputPath
	}
	if path == "" {
		return fmt.Errorf("seeder: no candidates file given (--candidates-file or seeder.input_path)")
	}

	n, err := seeder.Seed(ctx, common.Facade, path, common.Log)
	if err != nil {
		return err
	}
	common.Log.Info("seeding complete", zap.Int("candidates_written", n))
	return nil
}
