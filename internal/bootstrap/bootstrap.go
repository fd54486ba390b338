// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
//
// Package bootstrap holds the startup sequence shared by every
// cmd/<service> binary: load config, connect the pool, build the
// facade and logger, and wire a Prometheus registry. Each binary would
// otherwise repeat this verbatim, the way the teacher's single
// cmd/saint-michaels-mirror avoided by having only one entrypoint.
package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/bigbrotr/bigbrotr/internal/config"
	"github.com/bigbrotr/bigbrotr/internal/db"
	"github.com/bigbrotr/bigbrotr/internal/logging"
	"github.com/bigbrotr/bigbrotr/internal/model"
	"github.com/bigbrotr/bigbrotr/internal/pool"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Common is the set of shared resources every long-running service
// binary assembles before entering its Runner loop.
type Common struct {
	Config   *config.Config
	Secrets  *config.Secrets
	Log      *zap.Logger
	Pool     *pool.Pool
	Facade   *db.Facade
	Registry *prometheus.Registry
}

// Setup loads configPath/envFile, connects the database as the writer
// role (every service mutates service_state at minimum, so none of the
// five binaries qualify for the read-only role), and returns the
// shared resources. logLevel overrides the YAML log_level when non-empty.
func Setup(ctx context.Context, configPath, envFile, service, logLevel string) (*Common, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	secrets, err := config.LoadSecrets(envFile)
	if err != nil {
		return nil, err
	}

	level := logging.Level(cfg.LogLevel)
	if logLevel != "" {
		level = logging.Level(logLevel)
	}
	log, err := logging.New(service, level, cfg.LogJSON)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	dsn := WriterDSN(secrets)
	poolCfg := pool.Config{
		DSN:                dsn,
		MinSize:            cfg.Pool.MinSize,
		MaxSize:            cfg.Pool.MaxSize,
		MaxQueries:         cfg.Pool.MaxQueries,
		AcquisitionTimeout: cfg.Pool.AcquisitionTimeout,
		HealthCheckTimeout: cfg.Pool.HealthCheckTimeout,
		MaxAttempts:        cfg.Pool.MaxAttempts,
		InitialDelay:       cfg.Pool.InitialDelay,
		MaxDelay:           cfg.Pool.MaxDelay,
		ExponentialBackoff: cfg.Pool.ExponentialBackoff,
	}
	p, err := pool.Connect(ctx, poolCfg, log)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	facade := db.New(p, db.DefaultTimeouts(), cfg.Batch.MaxSize)

	return &Common{
		Config:   cfg,
		Secrets:  secrets,
		Log:      log,
		Pool:     p,
		Facade:   facade,
		Registry: prometheus.NewRegistry(),
	}, nil
}

// WriterDSN builds a libpq connection string for the bigbrotr_writer
// role. The schema carries no GRANT statements to ground separate
// role usernames, so every service binary authenticates as the writer;
// the reader/admin passwords exist for operator tooling run outside
// these binaries (migrations, read replicas), not for the daemons.
func WriterDSN(s *config.Secrets) string {
	return fmt.Sprintf("postgres://bigbrotr_writer:%s@%s:%d/%s",
		s.DBWriterPassword, s.DBHost, s.DBPort, s.DBName)
}

// DecodeNostrKey accepts an nsec bech32 string or a raw hex private
// key (generating a fresh one when sec is empty, the same fallback the
// teacher's relay binary uses) and returns the hex secret plus its
// derived public key.
func DecodeNostrKey(sec string) (secHex, pubKey string, err error) {
	if sec == "" {
		sec = nostr.GeneratePrivateKey()
	}
	secHex = sec
	if strings.HasPrefix(sec, "nsec") {
		pfx, val, decErr := nip19.Decode(sec)
		if decErr != nil || pfx != "nsec" {
			return "", "", fmt.Errorf("decoding nsec key: %w", decErr)
		}
		s, ok := val.(string)
		if !ok {
			return "", "", fmt.Errorf("decoding nsec key: unexpected payload type")
		}
		secHex = s
	}
	pubKey, err = nostr.GetPublicKey(secHex)
	if err != nil {
		return "", "", fmt.Errorf("deriving public key: %w", err)
	}
	return secHex, pubKey, nil
}

// EnabledNetworksFrom turns a NetworkLimits block into the map shape
// every read-side query filters by: a network is enabled when its
// configured concurrency limit is positive.
func EnabledNetworksFrom(clearnet, tor, i2p, loki int64) map[model.Network]bool {
	return map[model.Network]bool{
		model.NetworkClearnet: clearnet > 0,
		model.NetworkTor:      tor > 0,
		model.NetworkI2P:      i2p > 0,
		model.NetworkLoki:     loki > 0,
	}
}
