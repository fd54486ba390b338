// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
package monitor

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/oschwald/maxminddb-golang"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// GeoIP manages the City and ASN MMDB files the Geo/Net probes read:
// age-checked on a cron schedule, downloaded when missing or stale, and
// swapped in atomically so in-flight probes never see a half-written
// file (spec.md §4.6 "load in a worker thread to avoid blocking").
type GeoIP struct {
	dir         string
	cityURL     string
	asnURL      string
	maxAge      time.Duration
	httpClient  *http.Client
	log         *zap.Logger
	cityReader  atomic.Pointer[maxminddb.Reader]
	asnReader   atomic.Pointer[maxminddb.Reader]
	cron        *cron.Cron
}

// NewGeoIP builds a GeoIP manager. dir holds city.mmdb and asn.mmdb;
// cityURL/asnURL are downloaded into dir when a file is absent or
// older than maxAge.
func NewGeoIP(dir, cityURL, asnURL string, maxAge time.Duration, log *zap.Logger) *GeoIP {
	return &GeoIP{
		dir: dir, cityURL: cityURL, asnURL: asnURL, maxAge: maxAge,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		log:        log,
	}
}

func (g *GeoIP) City() *maxminddb.Reader { return g.cityReader.Load() }
func (g *GeoIP) ASN() *maxminddb.Reader  { return g.asnReader.Load() }

// Start performs an initial refresh then schedules cronSpec (e.g.
// "0 3 * * *") for subsequent age checks, per spec.md §4.6.
func (g *GeoIP) Start(cronSpec string) error {
	if err := g.refresh(); err != nil {
		g.log.Warn("initial geoip refresh failed", zap.Error(err))
	}
	g.cron = cron.New()
	if _, err := g.cron.AddFunc(cronSpec, func() {
		if err := g.refresh(); err != nil {
			g.log.Warn("scheduled geoip refresh failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("geoip: scheduling refresh %q: %w", cronSpec, err)
	}
	g.cron.Start()
	return nil
}

// Stop halts the refresh schedule and releases open MMDB readers.
func (g *GeoIP) Stop() {
	if g.cron != nil {
		g.cron.Stop()
	}
	if r := g.cityReader.Load(); r != nil {
		_ = r.Close()
	}
	if r := g.asnReader.Load(); r != nil {
		_ = r.Close()
	}
}

func (g *GeoIP) refresh() error {
	cityPath := filepath.Join(g.dir, "city.mmdb")
	if stale, err := g.isStale(cityPath); err == nil && stale && g.cityURL != "" {
		if err := g.download(g.cityURL, cityPath); err != nil {
			return fmt.Errorf("geoip: downloading city db: %w", err)
		}
	}
	if r, err := maxminddb.Open(cityPath); err == nil {
		if old := g.cityReader.Swap(r); old != nil {
			_ = old.Close()
		}
	}

	asnPath := filepath.Join(g.dir, "asn.mmdb")
	if stale, err := g.isStale(asnPath); err == nil && stale && g.asnURL != "" {
		if err := g.download(g.asnURL, asnPath); err != nil {
			return fmt.Errorf("geoip: downloading asn db: %w", err)
		}
	}
	if r, err := maxminddb.Open(asnPath); err == nil {
		if old := g.asnReader.Swap(r); old != nil {
			_ = old.Close()
		}
	}
	return nil
}

// isStale reports whether path is missing or older than g.maxAge.
func (g *GeoIP) isStale(path string) (bool, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return time.Since(info.ModTime()) > g.maxAge, nil
}

func (g *GeoIP) download(url, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	resp, err := g.httpClient.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned HTTP %d", url, resp.StatusCode)
	}

	tmp := destPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, destPath)
}
