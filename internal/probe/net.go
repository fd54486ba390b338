// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
package probe

import (
	"fmt"

	"github.com/oschwald/maxminddb-golang"
)

// asnRecord mirrors MaxMind's GeoLite2-ASN schema.
type asnRecord struct {
	AutonomousSystemNumber       uint   `maxminddb:"autonomous_system_number"`
	AutonomousSystemOrganization string `maxminddb:"autonomous_system_organization"`
}

// NetInfo is the network-ownership data extracted for a relay's IP.
type NetInfo struct {
	IP      string
	Country string
	ASN     uint
	ASOrg   string
}

// RunNet resolves host's preferred IP and looks it up in both the City
// and ASN databases.
func RunNet(host string, cityDB, asnDB *maxminddb.Reader) (NetInfo, Logs, error) {
	return Guard(func() (NetInfo, error) {
		ip, err := preferredIP(host)
		if err != nil {
			return NetInfo{}, err
		}

		var city cityRecord
		if err := cityDB.Lookup(ip, &city); err != nil {
			return NetInfo{}, fmt.Errorf("city lookup for %s: %w", ip, err)
		}
		var asn asnRecord
		if err := asnDB.Lookup(ip, &asn); err != nil {
			return NetInfo{}, fmt.Errorf("asn lookup for %s: %w", ip, err)
		}

		return NetInfo{
			IP:      ip.String(),
			Country: city.Country.ISOCode,
			ASN:     asn.AutonomousSystemNumber,
			ASOrg:   asn.AutonomousSystemOrganization,
		}, nil
	})
}
