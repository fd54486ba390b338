// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
package probe

import (
	"fmt"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/net/publicsuffix"
)

// DnsInfo holds resolved DNS records. Each slice is independently
// populated: a failure resolving one record type never blanks another
// (spec.md §4.6 "each record type error is isolated").
type DnsInfo struct {
	A       []string
	AAAA    []string
	CNAME   string
	PTR     []string
	NS      []string
	Errors  map[string]string
}

// RunDns resolves A/AAAA/CNAME/PTR for host and NS for its
// publicsuffix-registered domain, against resolverAddr (host:port).
func RunDns(host, resolverAddr string, timeout time.Duration) (DnsInfo, Logs, error) {
	return Guard(func() (DnsInfo, error) {
		info := DnsInfo{Errors: map[string]string{}}
		client := &dns.Client{Timeout: timeout}

		if a, err := queryRecords(client, resolverAddr, host, dns.TypeA); err != nil {
			info.Errors["A"] = err.Error()
		} else {
			info.A = a
		}
		if aaaa, err := queryRecords(client, resolverAddr, host, dns.TypeAAAA); err != nil {
			info.Errors["AAAA"] = err.Error()
		} else {
			info.AAAA = aaaa
		}
		if cname, err := queryRecords(client, resolverAddr, host, dns.TypeCNAME); err != nil {
			info.Errors["CNAME"] = err.Error()
		} else if len(cname) > 0 {
			info.CNAME = cname[0]
		}
		if ptr, err := queryRecords(client, resolverAddr, host, dns.TypePTR); err != nil {
			info.Errors["PTR"] = err.Error()
		} else {
			info.PTR = ptr
		}

		registered, err := publicsuffix.EffectiveTLDPlusOne(host)
		if err != nil {
			info.Errors["NS"] = fmt.Sprintf("registered domain: %v", err)
		} else if ns, err := queryRecords(client, resolverAddr, registered, dns.TypeNS); err != nil {
			info.Errors["NS"] = err.Error()
		} else {
			info.NS = ns
		}

		if len(info.A) == 0 && len(info.AAAA) == 0 && len(info.Errors) == 5 {
			return info, fmt.Errorf("all DNS record lookups failed for %s", host)
		}
		return info, nil
	})
}

func queryRecords(client *dns.Client, resolverAddr, name string, qtype uint16) ([]string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = true

	resp, _, err := client.Exchange(m, resolverAddr)
	if err != nil {
		return nil, fmt.Errorf("querying %s for %s: %w", name, dns.TypeToString[qtype], err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("%s query for %s returned rcode %s", dns.TypeToString[qtype], name, dns.RcodeToString[resp.Rcode])
	}

	var out []string
	for _, rr := range resp.Answer {
		switch v := rr.(type) {
		case *dns.A:
			out = append(out, v.A.String())
		case *dns.AAAA:
			out = append(out, v.AAAA.String())
		case *dns.CNAME:
			out = append(out, v.Target)
		case *dns.PTR:
			out = append(out, v.Ptr)
		case *dns.NS:
			out = append(out, v.Ns)
		}
	}
	return out, nil
}
