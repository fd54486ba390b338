// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
//
// cmd/finder runs the API/event-tag candidate discovery loop, per
// spec.md §4.4.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/bigbrotr/bigbrotr/internal/bootstrap"
	"github.com/bigbrotr/bigbrotr/internal/finder"
	"github.com/bigbrotr/bigbrotr/internal/model"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := &cli.App{
		Name:  "finder",
		Usage: "discover new relay candidates from APIs and archived event tags",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "config.yaml", Usage: "path to the YAML config file"},
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "path to a .env file providing secrets"},
			&cli.StringFlag{Name: "log-level", Usage: "override the config's log_level"},
			&cli.BoolFlag{Name: "once", Usage: "run a single cycle and exit"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "finder:", err)
		os.Exit(1)
	}
}

// apiSourceFile is the on-disk shape of --config's finder.api_sources_path.
type apiSourceFile struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Timeout  string `json:"timeout"`
	JMESPath string `json:"jmespath"`
}

func loadAPISources(path string) ([]finder.APISource, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading api sources file %s: %w", path, err)
	}
	var entries []apiSourceFile
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parsing api sources file %s: %w", path, err)
	}
	sources := make([]finder.APISource, 0, len(entries))
	for _, e := range entries {
		timeout := 10 * time.Second
		if e.Timeout != "" {
			if d, err := time.ParseDuration(e.Timeout); err == nil {
				timeout = d
			}
		}
		sources = append(sources, finder.APISource{Name: e.Name, URL: e.URL, Timeout: timeout, JMESPath: e.JMESPath})
	}
	return sources, nil
}

func run(c *cli.Context) error {
	ctx := context.Background()

	common, err := bootstrap.Setup(ctx, c.String("config"), c.String("env-file"), "finder", c.String("log-level"))
	if err != nil {
		return err
	}
	defer common.Pool.Close()
	defer common.Log.Sync()

	fcfg := common.Config.Finder
	sources, err := loadAPISources(fcfg.APISourcesPath)
	if err != nil {
		return err
	}

	if err := seedBootstrapRelays(ctx, common, fcfg.BootstrapRelays); err != nil {
		common.Log.Warn("seeding bootstrap relays failed", zap.Error(err))
	}

	f := finder.New(finder.Config{
		APISources:           sources,
		DelayBetweenRequests: fcfg.DelayBetweenRequests,
		EventKinds:           fcfg.EventKinds,
		BatchSize:            fcfg.BatchSize,
		ExtraKindsEnabled:    fcfg.ExtraKindsEnabled,
	}, common.Facade, common.Facade, nil, common.Log)

	code := bootstrap.RunDaemon(ctx, "finder", f, fcfg.CycleInterval, fcfg.MaxConsecutiveFailures, c.Bool("once"), common.Config.Metrics.Addr, common)
	if code != 0 {
		return fmt.Errorf("service exited with a non-zero code")
	}
	return nil
}

// seedBootstrapRelays upserts the finder's configured fallback relay
// list as candidates, the same way cmd/seeder does for a user-supplied
// file — useful so a fresh deployment isn't solely dependent on the
// first API source answering before anything can be validated.
func seedBootstrapRelays(ctx context.Context, common *bootstrap.Common, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	now := time.Now().Unix()

	var normalized []string
	relays := make(map[string]*model.Relay, len(urls))
	for _, raw := range urls {
		r, err := model.NewRelay(raw, now)
		if err != nil {
			continue
		}
		relays[r.URL()] = r
		normalized = append(normalized, r.URL())
	}
	if len(normalized) == 0 {
		return nil
	}

	existing, err := common.Facade.ExistingRelayURLs(ctx, normalized)
	if err != nil {
		return fmt.Errorf("checking existing relays: %w", err)
	}

	var states []*model.ServiceState
	for _, url := range normalized {
		if existing[url] {
			continue
		}
		r := relays[url]
		cand := model.Candidate{URL: r.URL(), Network: r.Network(), FailedAttempts: 0, DiscoveredAt: now, UpdatedAt: now}
		state, err := model.NewServiceState(finder.CandidateServiceName, model.StateCandidate, cand.URL, cand.Payload(), now)
		if err != nil {
			continue
		}
		states = append(states, state)
	}
	if len(states) == 0 {
		return nil
	}
	return common.Facade.UpsertServiceState(ctx, states)
}
