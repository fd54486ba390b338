// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
//
// Package seeder is the one-shot file reader that promotes a static
// list of relay URLs into the candidate pool, per spec.md §1's "seeder
// (a one-shot file reader)".
package seeder

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bigbrotr/bigbrotr/internal/model"
	"go.uber.org/zap"
)

// Persister is the subset of *db.Facade the seeder writes through.
type Persister interface {
	ExistingRelayURLs(ctx context.Context, urls []string) (map[string]bool, error)
	UpsertServiceState(ctx context.Context, states []*model.ServiceState) error
}

// candidateServiceName matches internal/finder's CandidateServiceName:
// candidates are the validator's domain object regardless of who
// discovered them.
const candidateServiceName = "validator"

// Seed reads relay URLs from path (one per line, or a JSON array of
// strings) and upserts each as a candidate, skipping invalid URLs.
// Returns the count of candidates written.
func Seed(ctx context.Context, facade Persister, path string, log *zap.Logger) (int, error) {
	urls, err := readURLs(path)
	if err != nil {
		return 0, fmt.Errorf("seeder: reading %s: %w", path, err)
	}

	now := time.Now().Unix()

	var normalized []string
	relays := make(map[string]*model.Relay, len(urls))
	for _, raw := range urls {
		r, err := model.NewRelay(raw, now)
		if err != nil {
			log.Warn("skipping invalid candidate URL", zap.String("url", raw), zap.Error(err))
			continue
		}
		relays[r.URL()] = r
		normalized = append(normalized, r.URL())
	}
	if len(normalized) == 0 {
		return 0, nil
	}

	existing, err := facade.ExistingRelayURLs(ctx, normalized)
	if err != nil {
		return 0, fmt.Errorf("seeder: checking existing relays: %w", err)
	}

	var states []*model.ServiceState
	for _, url := range normalized {
		if existing[url] {
			continue
		}
		r := relays[url]
		cand := model.Candidate{URL: r.URL(), Network: r.Network(), FailedAttempts: 0, DiscoveredAt: now, UpdatedAt: now}
		state, err := model.NewServiceState(candidateServiceName, model.StateCandidate, cand.URL, cand.Payload(), now)
		if err != nil {
			log.Warn("building candidate state failed", zap.String("url", cand.URL), zap.Error(err))
			continue
		}
		states = append(states, state)
	}
	if len(states) == 0 {
		return 0, nil
	}
	if err := facade.UpsertServiceState(ctx, states); err != nil {
		return 0, fmt.Errorf("seeder: persisting candidates: %w", err)
	}
	return len(states), nil
}

// readURLs accepts either a JSON array of strings or a newline-delimited
// text file, auto-detected from the first non-whitespace byte.
func readURLs(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var urls []string
		if err := json.Unmarshal([]byte(trimmed), &urls); err != nil {
			return nil, fmt.Errorf("decoding JSON array: %w", err)
		}
		return urls, nil
	}

	var urls []string
	scanner := bufio.NewScanner(strings.NewReader(trimmed))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}
