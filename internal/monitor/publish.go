// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
package monitor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bigbrotr/bigbrotr/internal/model"
	"github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"
)

const (
	kindDiscovery    = 30166
	kindAnnouncement = 10166
	kindProfile      = 0
)

// discoveryTags builds the kind-30166 tag list from one relay's
// CheckResult, per spec.md §4.6's tag taxonomy — only successful
// probes contribute tags.
func discoveryTags(cr CheckResult) nostr.Tags {
	tags := nostr.Tags{{"d", cr.Relay.URL()}}

	if cr.Rtt != nil {
		data := cr.Rtt.Data()
		if v, ok := data["open_success"].(bool); ok && v {
			tags = append(tags, nostr.Tag{"rtt-open", intTag(data["open_ms"])})
		}
		if v, ok := data["read_success"].(bool); ok && v {
			tags = append(tags, nostr.Tag{"rtt-read", intTag(data["read_ms"])})
		}
		if v, ok := data["write_success"].(bool); ok && v {
			tags = append(tags, nostr.Tag{"rtt-write", intTag(data["write_ms"])})
		}
	}
	if cr.Ssl != nil {
		s := cr.info.ssl
		tags = append(tags, nostr.Tag{"ssl", strconv.FormatBool(s.Valid)})
		tags = append(tags, nostr.Tag{"ssl-expires", strconv.FormatInt(s.NotAfter.Unix(), 10)})
		tags = append(tags, nostr.Tag{"ssl-issuer", s.IssuerCN})
	}
	if cr.Net != nil {
		n := cr.info.net
		tags = append(tags, nostr.Tag{"net-ip", n.IP})
		tags = append(tags, nostr.Tag{"net-asn", strconv.FormatUint(uint64(n.ASN), 10)})
		tags = append(tags, nostr.Tag{"net-asn-org", n.ASOrg})
	}
	if cr.Geo != nil {
		g := cr.info.geo
		tags = append(tags, nostr.Tag{"g", g.Geohash})
		tags = append(tags, nostr.Tag{"geo-country", g.Country})
		tags = append(tags, nostr.Tag{"geo-city", g.City})
		tags = append(tags, nostr.Tag{"geo-lat", strconv.FormatFloat(g.Latitude, 'f', -1, 64)})
		tags = append(tags, nostr.Tag{"geo-lon", strconv.FormatFloat(g.Longitude, 'f', -1, 64)})
		tags = append(tags, nostr.Tag{"geo-tz", g.TimeZone})
	}
	if cr.Nip11 != nil {
		info := cr.info.nip11
		for _, n := range info.SupportedNIPs {
			tags = append(tags, nostr.Tag{"N", strconv.Itoa(n)})
		}
		for _, lang := range info.Language {
			tags = append(tags, nostr.Tag{"l", lang})
		}
	}
	return tags
}

func intTag(v any) string {
	switch n := v.(type) {
	case int64:
		return strconv.FormatInt(n, 10)
	case int:
		return strconv.Itoa(n)
	default:
		return "0"
	}
}

// FrequencyTags renders the monitor's per-probe-type check cadence as
// repeated ["f", type, seconds] tags on the kind-10166 announcement, a
// supplemental field letting consumers compute staleness budgets
// without guessing (spec.md's tag taxonomy is silent on this).
func (m *Monitor) FrequencyTags() nostr.Tags {
	var tags nostr.Tags
	for probeType, interval := range m.cfg.ProbeFrequencies {
		tags = append(tags, nostr.Tag{"f", probeType, strconv.FormatInt(int64(interval.Seconds()), 10)})
	}
	return tags
}

func (m *Monitor) buildAnnouncement() (nostr.Event, error) {
	tags := nostr.Tags{{"d", m.pubKey}}
	for _, nip := range m.cfg.Capabilities {
		tags = append(tags, nostr.Tag{"N", nip})
	}
	tags = append(tags, m.FrequencyTags()...)

	evt := nostr.Event{Kind: kindAnnouncement, CreatedAt: nostr.Now(), Content: "", Tags: tags}
	if err := evt.Sign(m.secKey); err != nil {
		return nostr.Event{}, fmt.Errorf("signing announcement: %w", err)
	}
	return evt, nil
}

// publishDiscoveryEvents broadcasts one signed kind-30166 event per
// checked relay to every configured publication relay.
func (m *Monitor) publishDiscoveryEvents(ctx context.Context, results []CheckResult) error {
	var lastErr error
	published := 0
	for _, cr := range results {
		evt := nostr.Event{Kind: kindDiscovery, CreatedAt: nostr.Now(), Content: "", Tags: discoveryTags(cr)}
		if err := evt.Sign(m.secKey); err != nil {
			lastErr = err
			continue
		}
		if n := m.broadcast(ctx, evt); n > 0 {
			published++
		} else {
			m.log.Warn("discovery event reached zero relays", zap.String("relay", cr.Relay.URL()))
		}
	}
	if published == 0 && len(results) > 0 {
		return fmt.Errorf("monitor: broadcast zero of %d discovery events", len(results))
	}
	return lastErr
}

// maybePublishAnnouncement publishes the kind-10166/kind-0 events when
// their configured interval has elapsed, tracked via
// service_state(type=publication).
func (m *Monitor) maybePublishAnnouncement(ctx context.Context) error {
	due, err := m.publicationDue(ctx, "announcement", m.cfg.AnnounceInterval)
	if err != nil {
		return err
	}
	if due {
		evt, err := m.buildAnnouncement()
		if err != nil {
			return fmt.Errorf("monitor: building announcement: %w", err)
		}
		m.broadcast(ctx, evt)
		if err := m.recordPublication(ctx, "announcement"); err != nil {
			return err
		}
	}

	profileDue, err := m.publicationDue(ctx, "profile", m.cfg.ProfileInterval)
	if err != nil {
		return err
	}
	if profileDue {
		evt := nostr.Event{Kind: kindProfile, CreatedAt: nostr.Now(), Content: "{}", Tags: nostr.Tags{}}
		if err := evt.Sign(m.secKey); err != nil {
			return fmt.Errorf("monitor: signing profile event: %w", err)
		}
		m.broadcast(ctx, evt)
		if err := m.recordPublication(ctx, "profile"); err != nil {
			return err
		}
	}
	return nil
}

func (m *Monitor) publicationDue(ctx context.Context, key string, interval time.Duration) (bool, error) {
	if interval <= 0 {
		return false, nil
	}
	states, err := m.facade.GetServiceState(ctx, "monitor", model.StatePublication, &key)
	if err != nil {
		return false, fmt.Errorf("monitor: reading publication state %s: %w", key, err)
	}
	if len(states) == 0 {
		return true, nil
	}
	last := states[0].UpdatedAt()
	return time.Now().Unix()-last >= int64(interval.Seconds()), nil
}

func (m *Monitor) recordPublication(ctx context.Context, key string) error {
	now := time.Now().Unix()
	state, err := model.NewServiceState("monitor", model.StatePublication, key, map[string]any{"published_at": now}, now)
	if err != nil {
		return err
	}
	return m.facade.UpsertServiceState(ctx, []*model.ServiceState{state})
}

// broadcast publishes evt to every configured publication relay,
// returning the count of relays that accepted it.
func (m *Monitor) broadcast(ctx context.Context, evt nostr.Event) int {
	accepted := 0
	for _, url := range m.cfg.PublishRelays {
		func() {
			cctx, cancel := context.WithTimeout(ctx, m.probeTimeout())
			defer cancel()
			rl, err := nostr.RelayConnect(cctx, url)
			if err != nil {
				m.log.Debug("publish connect failed", zap.String("relay", url), zap.Error(err))
				return
			}
			defer rl.Close()
			if err := rl.Publish(cctx, evt); err != nil {
				m.log.Debug("publish failed", zap.String("relay", url), zap.Error(err))
				return
			}
			accepted++
		}()
	}
	return accepted
}
