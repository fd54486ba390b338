// Copyright (c) 2025 Girino Vey.
//
// This software is licensed under Girino's Anarchist License (GAL).
// See LICENSE file for full license text.
// License available at: https://license.girino.org/
package probe

import (
	"fmt"
	"net"

	"github.com/mmcloughlin/geohash"
	"github.com/oschwald/maxminddb-golang"
)

const geohashPrecision = 9

// cityRecord mirrors the subset of MaxMind's City DB schema this probe
// reads; field names match the GeoIP2-City JSON shape.
type cityRecord struct {
	Country struct {
		ISOCode string            `maxminddb:"iso_code"`
		Names   map[string]string `maxminddb:"names"`
	} `maxminddb:"country"`
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	Location struct {
		Latitude  float64 `maxminddb:"latitude"`
		Longitude float64 `maxminddb:"longitude"`
		TimeZone  string  `maxminddb:"time_zone"`
	} `maxminddb:"location"`
	Continent struct {
		Code string `maxminddb:"code"`
	} `maxminddb:"continent"`
	Postal struct {
		Code string `maxminddb:"code"`
	} `maxminddb:"postal"`
}

// GeoInfo is the resolved geolocation for a relay's preferred IP.
type GeoInfo struct {
	IP        string
	Country   string
	City      string
	Latitude  float64
	Longitude float64
	Geohash   string
	TimeZone  string
	Continent string
	Postal    string
}

// RunGeo resolves host to a preferred (IPv4-first) address and looks it
// up in the City database.
func RunGeo(host string, cityDB *maxminddb.Reader) (GeoInfo, Logs, error) {
	return Guard(func() (GeoInfo, error) {
		ip, err := preferredIP(host)
		if err != nil {
			return GeoInfo{}, err
		}

		var rec cityRecord
		if err := cityDB.Lookup(ip, &rec); err != nil {
			return GeoInfo{}, fmt.Errorf("city lookup for %s: %w", ip, err)
		}

		return GeoInfo{
			IP:        ip.String(),
			Country:   rec.Country.ISOCode,
			City:      rec.City.Names["en"],
			Latitude:  rec.Location.Latitude,
			Longitude: rec.Location.Longitude,
			Geohash:   geohash.EncodeWithPrecision(rec.Location.Latitude, rec.Location.Longitude, geohashPrecision),
			TimeZone:  rec.Location.TimeZone,
			Continent: rec.Continent.Code,
			Postal:    rec.Postal.Code,
		}, nil
	})
}

// preferredIP resolves host, preferring the first IPv4 address and
// falling back to the first IPv6 address (spec.md §4.6).
func preferredIP(host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", host, err)
	}
	var v6 net.IP
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
		if v6 == nil {
			v6 = ip
		}
	}
	if v6 != nil {
		return v6, nil
	}
	return nil, fmt.Errorf("no addresses resolved for %s", host)
}
