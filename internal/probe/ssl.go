// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
package probe

import (
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"net"
	"time"
)

// SslInfo is the extracted certificate data, clearnet-only (spec.md §4.6).
type SslInfo struct {
	SubjectCN    string
	IssuerCN     string
	NotAfter     time.Time
	SANs         []string
	SerialNumber string
	Fingerprint  string
	Protocol     string
	Cipher       string
	Valid        bool
}

// RunSsl dials host:port twice: once with verification disabled to
// extract certificate fields unconditionally, and — only if extraction
// produced a non-empty payload — once with full verification to decide
// Valid. Both dials run on the calling goroutine, one after the other;
// the monitor calls RunSsl from its own per-relay errgroup goroutine.
func RunSsl(host string, port int, timeout time.Duration) (SslInfo, Logs, error) {
	return Guard(func() (SslInfo, error) {
		addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))

		extracted, err := dialAndExtract(addr, timeout, true)
		if err != nil {
			return SslInfo{}, fmt.Errorf("extracting certificate from %s: %w", addr, err)
		}
		if extracted.Fingerprint == "" {
			return extracted, nil
		}

		verified, err := dialAndExtract(addr, timeout, false)
		extracted.Valid = err == nil
		if err == nil {
			extracted.Protocol = verified.Protocol
			extracted.Cipher = verified.Cipher
		}
		return extracted, nil
	})
}

func dialAndExtract(addr string, timeout time.Duration, insecure bool) (SslInfo, error) {
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{InsecureSkipVerify: insecure}) //nolint:gosec // extraction dial is intentionally unverified per spec
	if err != nil {
		return SslInfo{}, err
	}
	defer conn.Close()

	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return SslInfo{}, fmt.Errorf("no peer certificates presented")
	}
	cert := state.PeerCertificates[0]
	sum := sha256.Sum256(cert.Raw)

	return SslInfo{
		SubjectCN:    cert.Subject.CommonName,
		IssuerCN:     cert.Issuer.CommonName,
		NotAfter:     cert.NotAfter,
		SANs:         cert.DNSNames,
		SerialNumber: cert.SerialNumber.String(),
		Fingerprint:  hex.EncodeToString(sum[:]),
		Protocol:     tlsVersionName(state.Version),
		Cipher:       tls.CipherSuiteName(state.CipherSuite),
	}, nil
}

func tlsVersionName(v uint16) string {
	switch v {
	case tls.VersionTLS10:
		return "TLS1.0"
	case tls.VersionTLS11:
		return "TLS1.1"
	case tls.VersionTLS12:
		return "TLS1.2"
	case tls.VersionTLS13:
		return "TLS1.3"
	default:
		return "unknown"
	}
}
