// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
//
// Package config loads the non-secret YAML configuration tree and the
// secret environment table shared by every BigBrotr service binary.
// Non-secrets live in a YAML file because they are reviewed and
// versioned alongside deployment manifests; secrets live in the
// environment (or a developer .env file) so they never land in a
// config repo, following the split the teacher's own relay config
// draws between flags/env and the broadcast-relay YAML-free settings.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
	"gopkg.in/yaml.v3"
)

// PoolConfig mirrors internal/pool.Config's tunables for YAML loading.
type PoolConfig struct {
	MinSize            int32         `yaml:"min_size"`
	MaxSize            int32         `yaml:"max_size"`
	MaxQueries         int64         `yaml:"max_queries"`
	AcquisitionTimeout time.Duration `yaml:"acquisition_timeout"`
	HealthCheckTimeout time.Duration `yaml:"health_check_timeout"`
	MaxAttempts        int           `yaml:"max_attempts"`
	InitialDelay       time.Duration `yaml:"initial_delay"`
	MaxDelay           time.Duration `yaml:"max_delay"`
	ExponentialBackoff bool          `yaml:"exponential_backoff"`
}

// BatchConfig bounds the db facade's chunking.
type BatchConfig struct {
	MaxSize int `yaml:"max_size"`
}

// NetworkLimits mirrors internal/netsem.Limits for YAML loading.
type NetworkLimits struct {
	Clearnet int64 `yaml:"clearnet"`
	Tor      int64 `yaml:"tor"`
	I2P      int64 `yaml:"i2p"`
	Loki     int64 `yaml:"loki"`
}

// FinderConfig configures the finder service.
type FinderConfig struct {
	CycleInterval        time.Duration `yaml:"cycle_interval"`
	APISourcesPath       string        `yaml:"api_sources_path"`
	EventKinds           []int         `yaml:"event_kinds"`
	ExtraKindsEnabled    bool          `yaml:"extra_kinds_enabled"`
	BatchSize            int           `yaml:"batch_size"`
	DelayBetweenRequests time.Duration `yaml:"delay_between_requests"`
	BootstrapRelays      []string      `yaml:"bootstrap_relays"`
	HTTPTimeout          time.Duration `yaml:"http_timeout"`
	// MaxConsecutiveFailures stops the daemon with a non-zero exit once
	// this many cycles in a row have failed; <= 0 disables the check.
	MaxConsecutiveFailures int64         `yaml:"max_consecutive_failures"`
	Networks               NetworkLimits `yaml:"network_limits"`
}

// ValidatorConfig configures the validator service.
type ValidatorConfig struct {
	CycleInterval     time.Duration `yaml:"cycle_interval"`
	BatchSize         int           `yaml:"batch_size"`
	MaxFailedAttempts int           `yaml:"max_failed_attempts"`
	MaxCandidateAge   time.Duration `yaml:"max_candidate_age"`
	ProbeTimeout      time.Duration `yaml:"probe_timeout"`
	// MaxConsecutiveFailures stops the daemon with a non-zero exit once
	// this many cycles in a row have failed; <= 0 disables the check.
	MaxConsecutiveFailures int64         `yaml:"max_consecutive_failures"`
	Networks               NetworkLimits `yaml:"network_limits"`
}

// MonitorConfig configures the monitor service.
type MonitorConfig struct {
	CycleInterval    time.Duration `yaml:"cycle_interval"`
	BatchSize        int           `yaml:"batch_size"`
	ProbeTimeout     time.Duration `yaml:"probe_timeout"`
	SOCKS5ProxyAddr  string        `yaml:"socks5_proxy_addr"`
	DNSResolverAddr  string        `yaml:"dns_resolver_addr"`
	GeoIPDir         string        `yaml:"geoip_dir"`
	GeoIPCityURL     string        `yaml:"geoip_city_url"`
	GeoIPASNURL      string        `yaml:"geoip_asn_url"`
	GeoIPMaxAge      time.Duration `yaml:"geoip_max_age"`
	GeoIPRefreshCron string        `yaml:"geoip_refresh_cron"`
	PublishKinds     []int         `yaml:"publish_kinds"`
	PublishRelays    []string      `yaml:"publish_relays"`
	AnnounceInterval time.Duration `yaml:"announce_interval"`
	ProfileInterval  time.Duration `yaml:"profile_interval"`
	Capabilities     []string      `yaml:"capabilities"`
	// MaxConsecutiveFailures stops the daemon with a non-zero exit once
	// this many cycles in a row have failed; <= 0 disables the check.
	MaxConsecutiveFailures int64         `yaml:"max_consecutive_failures"`
	Networks               NetworkLimits `yaml:"network_limits"`
}

// SynchronizerConfig configures the synchronizer service.
type SynchronizerConfig struct {
	CycleInterval       time.Duration `yaml:"cycle_interval"`
	BatchSize           int           `yaml:"batch_size"`
	RelayLimit          int           `yaml:"relay_limit"`
	QueryLimit          int           `yaml:"query_limit"`
	EventKinds          []int         `yaml:"event_kinds"`
	DefaultStart        int64         `yaml:"default_start"`
	LookbackSeconds     int64         `yaml:"lookback_seconds"`
	RelayTimeout        time.Duration `yaml:"relay_timeout"`
	CursorFlushInterval time.Duration `yaml:"cursor_flush_interval"`
	WriteTimeout        time.Duration `yaml:"write_timeout"`
	SOCKS5ProxyAddr     string        `yaml:"socks5_proxy_addr"`
	InsecureTLSFallback bool          `yaml:"insecure_tls_fallback"`
	// StaggerDelay is carried for schema compatibility but has no
	// scheduling effect — see internal/synchronizer's doc comment.
	StaggerDelay time.Duration `yaml:"stagger_delay"`
	// MaxConsecutiveFailures stops the daemon with a non-zero exit once
	// this many cycles in a row have failed; <= 0 disables the check.
	MaxConsecutiveFailures int64         `yaml:"max_consecutive_failures"`
	Networks               NetworkLimits `yaml:"network_limits"`
}

// SeederConfig configures the one-shot seeder binary.
type SeederConfig struct {
	InputPath string `yaml:"input_path"`
}

// MetricsConfig configures the shared Prometheus HTTP server.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the root of the non-secret YAML tree.
type Config struct {
	LogLevel     string             `yaml:"log_level"`
	LogJSON      bool               `yaml:"log_json"`
	Pool         PoolConfig         `yaml:"pool"`
	Batch        BatchConfig        `yaml:"batch"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Finder       FinderConfig       `yaml:"finder"`
	Validator    ValidatorConfig    `yaml:"validator"`
	Monitor      MonitorConfig      `yaml:"monitor"`
	Synchronizer SynchronizerConfig `yaml:"synchronizer"`
	Seeder       SeederConfig       `yaml:"seeder"`
}

// Load reads and parses a YAML file at path into Config, applying
// defaults for any zero-valued field a config author omitted.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns a Config populated with conservative defaults, so a
// minimal YAML file only needs to override what it cares about.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		LogJSON:  false,
		Pool: PoolConfig{
			MinSize: 2, MaxSize: 20, MaxQueries: 50000,
			AcquisitionTimeout: 10 * time.Second, HealthCheckTimeout: 2 * time.Second,
			MaxAttempts: 5, InitialDelay: 200 * time.Millisecond, MaxDelay: 10 * time.Second,
			ExponentialBackoff: true,
		},
		Batch:   BatchConfig{MaxSize: 1000},
		Metrics: MetricsConfig{Addr: ":9090"},
		Finder: FinderConfig{
			CycleInterval: time.Hour, EventKinds: []int{2, 3, 10002, 30166, 10166},
			ExtraKindsEnabled: true, BatchSize: 500, DelayBetweenRequests: 2 * time.Second,
			HTTPTimeout: 10 * time.Second, MaxConsecutiveFailures: 10,
			Networks: NetworkLimits{Clearnet: 50, Tor: 10, I2P: 5, Loki: 5},
		},
		Validator: ValidatorConfig{
			CycleInterval: 30 * time.Minute, BatchSize: 200, MaxFailedAttempts: 5,
			MaxCandidateAge: 30 * 24 * time.Hour, ProbeTimeout: 10 * time.Second,
			MaxConsecutiveFailures: 10,
			Networks:               NetworkLimits{Clearnet: 50, Tor: 10, I2P: 5, Loki: 5},
		},
		Monitor: MonitorConfig{
			CycleInterval: time.Hour, BatchSize: 200, ProbeTimeout: 15 * time.Second,
			GeoIPDir: "./geoip", GeoIPMaxAge: 30 * 24 * time.Hour, GeoIPRefreshCron: "0 3 * * *",
			PublishKinds: []int{30166, 10166, 0}, AnnounceInterval: time.Hour, ProfileInterval: 24 * time.Hour,
			Capabilities:           []string{"1", "11", "66"},
			MaxConsecutiveFailures: 10,
			Networks:               NetworkLimits{Clearnet: 50, Tor: 10, I2P: 5, Loki: 5},
		},
		Synchronizer: SynchronizerConfig{
			CycleInterval: 5 * time.Minute, BatchSize: 500, QueryLimit: 5000,
			EventKinds: []int{0, 1, 2, 3, 10002, 30166, 10166}, MaxConsecutiveFailures: 10,
			DefaultStart: 1600000000, LookbackSeconds: 60,
			RelayTimeout: 30 * time.Second, CursorFlushInterval: 15 * time.Second,
			WriteTimeout: 10 * time.Second, Networks: NetworkLimits{Clearnet: 50, Tor: 10, I2P: 5, Loki: 5},
		},
	}
}

// Secrets holds environment-sourced values that must never be checked
// into a YAML config repo.
type Secrets struct {
	DBAdminPassword  string `env:"DB_ADMIN_PASSWORD"`
	DBWriterPassword string `env:"DB_WRITER_PASSWORD"`
	DBReaderPassword string `env:"DB_READER_PASSWORD"`
	NostrPrivateKey  string `env:"NOSTR_PRIVATE_KEY"`
	DBHost           string `env:"DB_HOST" default:"localhost"`
	DBPort           int    `env:"DB_PORT" default:"5432"`
	DBName           string `env:"DB_NAME" default:"bigbrotr"`
}

// LoadSecrets loads Secrets from the process environment, first merging
// in envFile (if it exists) without overriding variables already set —
// matching the teacher pack's .env-as-fallback convention.
func LoadSecrets(envFile string) (*Secrets, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("config: loading env file %s: %w", envFile, err)
			}
		}
	}
	var s Secrets
	if err := env.Load(&s, &env.Options{SliceSep: ","}); err != nil {
		return nil, fmt.Errorf("config: loading secrets: %w", err)
	}
	if s.DBAdminPassword == "" || s.DBWriterPassword == "" {
		return nil, fmt.Errorf("config: DB_ADMIN_PASSWORD and DB_WRITER_PASSWORD are required")
	}
	return &s, nil
}
