// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
package monitor

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/bigbrotr/bigbrotr/internal/model"
	"github.com/bigbrotr/bigbrotr/internal/probe"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CheckResult collects up to seven optional metadata rows produced for
// one relay in a cycle, per spec.md §4.6 step 3.
type CheckResult struct {
	Relay *model.Relay

	Nip11 *model.Metadata
	Rtt   *model.Metadata
	Ssl   *model.Metadata
	Geo   *model.Metadata
	Net   *model.Metadata
	Dns   *model.Metadata
	Http  *model.Metadata

	info checkInfo // raw probe outputs, kept for the publish stage's tag taxonomy
}

// checkInfo carries the successful-probe payloads untyped-metadata
// can't roundtrip cleanly (e.g. Nip11Info.SupportedNIPs as []int),
// needed verbatim when building the kind-30166 tag list.
type checkInfo struct {
	nip11 probe.Nip11Info
	rtt   probe.RttResult
	ssl   probe.SslInfo
	geo   probe.GeoInfo
	net   probe.NetInfo
}

func (cr CheckResult) metadataRows() []*model.Metadata {
	var out []*model.Metadata
	for _, md := range []*model.Metadata{cr.Nip11, cr.Rtt, cr.Ssl, cr.Geo, cr.Net, cr.Dns, cr.Http} {
		if md != nil {
			out = append(out, md)
		}
	}
	return out
}

// sslCache memoizes SSL certificate extraction within a cycle, keyed by
// host:port — many relay URLs behind the same reverse proxy share a
// certificate, so this avoids redundant TLS dials (spec.md §5's
// concurrency-model goal, recovered via the pack's LRU dependency).
type sslCache struct {
	mu    sync.Mutex
	cache *lru.Cache[string, probe.SslInfo]
}

func newSSLCache(size int) *sslCache {
	c, _ := lru.New[string, probe.SslInfo](size)
	return &sslCache{cache: c}
}

func (s *sslCache) get(key string) (probe.SslInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Get(key)
}

func (s *sslCache) put(key string, info probe.SslInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(key, info)
}

// checkRelay runs the six NIP-66 probes and the NIP-11 fetch
// concurrently for one relay, each honoring the never-raise contract
// (§4.8); a failed probe simply omits its metadata row, and only a
// NIP-11 failure is logged (at debug level).
func (m *Monitor) checkRelay(ctx context.Context, r *model.Relay) CheckResult {
	cctx, cancel := context.WithTimeout(ctx, m.probeTimeout())
	defer cancel()

	host, port, isClearnet := hostPort(r)
	httpClient, err := probe.HTTPClientFor(r.Network(), m.cfg.SOCKS5ProxyAddr, m.probeTimeout())
	if err != nil {
		m.log.Warn("building http client failed", zap.String("url", r.URL()), zap.Error(err))
		return CheckResult{Relay: r}
	}

	cr := CheckResult{Relay: r}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(cctx)

	g.Go(func() error {
		info, err := probe.FetchNip11(gctx, httpClient, r.URL())
		if err != nil {
			m.log.Debug("nip11 probe failed", zap.String("url", r.URL()), zap.Error(err))
			return nil
		}
		md, err := nip11Metadata(info)
		if err != nil {
			return nil
		}
		mu.Lock()
		cr.Nip11 = md
		cr.info.nip11 = info
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		result, logs, err := probe.RunRtt(gctx, probe.NostrDialer{}, r.URL(), m.secKey, m.probeTimeout())
		if err != nil {
			return nil // cancellation, not a probe failure
		}
		if !logs.OpenSuccess && !logs.ReadSuccess && !logs.WriteSuccess {
			return nil
		}
		md, err := rttMetadata(result, logs)
		if err != nil {
			return nil
		}
		mu.Lock()
		cr.Rtt = md
		cr.info.rtt = result
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		if !isClearnet {
			return nil
		}
		sslKey := host + ":" + strconv.Itoa(port)
		if cached, ok := m.sslCache.get(sslKey); ok {
			md, err := sslMetadata(cached)
			if err == nil {
				mu.Lock()
				cr.Ssl = md
				cr.info.ssl = cached
				mu.Unlock()
			}
			return nil
		}
		info, logs, err := probe.RunSsl(host, port, m.probeTimeout())
		if err != nil || !logs.Success {
			return nil
		}
		m.sslCache.put(sslKey, info)
		md, err := sslMetadata(info)
		if err != nil {
			return nil
		}
		mu.Lock()
		cr.Ssl = md
		cr.info.ssl = info
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		if !isClearnet {
			return nil
		}
		info, logs, err := probe.RunDns(host, m.dnsResolverAddr(), m.probeTimeout())
		if err != nil || !logs.Success {
			return nil
		}
		md, err := dnsMetadata(info)
		if err != nil {
			return nil
		}
		mu.Lock()
		cr.Dns = md
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		if !isClearnet || m.geo == nil {
			return nil
		}
		cityDB := m.geo.City()
		if cityDB == nil {
			return nil
		}
		info, logs, err := probe.RunGeo(host, cityDB)
		if err != nil || !logs.Success {
			return nil
		}
		md, err := geoMetadata(info)
		if err != nil {
			return nil
		}
		mu.Lock()
		cr.Geo = md
		cr.info.geo = info
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		if !isClearnet || m.geo == nil {
			return nil
		}
		cityDB, asnDB := m.geo.City(), m.geo.ASN()
		if cityDB == nil || asnDB == nil {
			return nil
		}
		info, logs, err := probe.RunNet(host, cityDB, asnDB)
		if err != nil || !logs.Success {
			return nil
		}
		md, err := netMetadata(info)
		if err != nil {
			return nil
		}
		mu.Lock()
		cr.Net = md
		cr.info.net = info
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		info, logs, err := probe.RunHttp(gctx, httpClient, r.URL(), m.probeTimeout())
		if err != nil || !logs.Success {
			return nil
		}
		md, err := httpMetadata(info)
		if err != nil {
			return nil
		}
		mu.Lock()
		cr.Http = md
		mu.Unlock()
		return nil
	})

	_ = g.Wait() // every goroutine above already swallows its own error

	return cr
}

func (m *Monitor) probeTimeout() time.Duration {
	if m.cfg.ProbeTimeout <= 0 {
		return 15 * time.Second
	}
	return m.cfg.ProbeTimeout
}

func (m *Monitor) dnsResolverAddr() string {
	if m.cfg.DNSResolverAddr == "" {
		return "1.1.1.1:53"
	}
	return m.cfg.DNSResolverAddr
}

// hostPort splits a relay URL into host/port, reporting whether it's a
// clearnet relay (the only network where SSL/DNS/Geo/Net apply).
func hostPort(r *model.Relay) (host string, port int, isClearnet bool) {
	u, err := url.Parse(r.URL())
	if err != nil {
		return "", 0, false
	}
	host = u.Hostname()
	port = 443
	if u.Scheme == "ws" {
		port = 80
	}
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			port = n
		}
	}
	return host, port, r.Network() == model.NetworkClearnet
}

func nip11Metadata(info probe.Nip11Info) (*model.Metadata, error) {
	return model.NewMetadata(model.MetadataNip11Info, map[string]any{
		"name": info.Name, "description": info.Description, "pubkey": info.Pubkey,
		"contact": info.Contact, "supported_nips": intsToAny(info.SupportedNIPs),
		"software": info.Software, "version": info.Version, "limitation": info.Limitation,
		"language": info.Language, "posting": info.Posting, "payments_url": info.PaymentsURL,
	})
}

func rttMetadata(r probe.RttResult, logs probe.RttLogs) (*model.Metadata, error) {
	return model.NewMetadata(model.MetadataNip66Rtt, map[string]any{
		"open_ms": r.OpenMs, "read_ms": r.ReadMs, "write_ms": r.WriteMs,
		"open_success": logs.OpenSuccess, "read_success": logs.ReadSuccess, "write_success": logs.WriteSuccess,
	})
}

func sslMetadata(s probe.SslInfo) (*model.Metadata, error) {
	return model.NewMetadata(model.MetadataNip66Ssl, map[string]any{
		"subject_cn": s.SubjectCN, "issuer_cn": s.IssuerCN, "not_after": s.NotAfter.Unix(),
		"sans": stringsToAny(s.SANs), "serial_number": s.SerialNumber, "fingerprint": s.Fingerprint,
		"protocol": s.Protocol, "cipher": s.Cipher, "valid": s.Valid,
	})
}

func dnsMetadata(d probe.DnsInfo) (*model.Metadata, error) {
	return model.NewMetadata(model.MetadataNip66Dns, map[string]any{
		"a": stringsToAny(d.A), "aaaa": stringsToAny(d.AAAA), "cname": d.CNAME,
		"ns": stringsToAny(d.NS), "ptr": stringsToAny(d.PTR),
	})
}

func geoMetadata(g probe.GeoInfo) (*model.Metadata, error) {
	return model.NewMetadata(model.MetadataNip66Geo, map[string]any{
		"ip": g.IP, "country": g.Country, "city": g.City, "latitude": g.Latitude, "longitude": g.Longitude,
		"geohash": g.Geohash, "time_zone": g.TimeZone, "continent": g.Continent, "postal": g.Postal,
	})
}

func netMetadata(n probe.NetInfo) (*model.Metadata, error) {
	return model.NewMetadata(model.MetadataNip66Net, map[string]any{
		"ip": n.IP, "country": n.Country, "asn": n.ASN, "as_org": n.ASOrg,
	})
}

func httpMetadata(h probe.HttpInfo) (*model.Metadata, error) {
	return model.NewMetadata(model.MetadataNip66Http, map[string]any{
		"server": h.Server, "x_powered_by": h.XPoweredBy,
	})
}

func intsToAny(in []int) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
