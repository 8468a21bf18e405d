// Package geoip resolves IP addresses to approximate locations through a
// pluggable lookup backend fronted by a read-through TTL cache.
package geoip

import (
	"context"
	"log"
	"net"
	"time"

	"geogate/internal/models"
)

// Lookup is the backend that maps a public IP to a location. Production
// binds this to a MaxMind database; tests substitute fakes.
type Lookup interface {
	Locate(ctx context.Context, ip string) (models.GeoLocation, error)
}

// Cache is the shared geolocation cache. It is injected rather than
// global so tests can run against an in-memory fake. A nil cache degrades
// to looking up every time.
type Cache interface {
	Get(key string) (models.GeoLocation, bool)
	Set(key string, value models.GeoLocation)
}

// Resolver answers "where is this IP" with a read-through cache in front
// of the lookup backend. Private and reserved addresses are classified
// locally and never touch the cache or the backend.
type Resolver struct {
	lookup  Lookup
	cache   Cache
	timeout time.Duration
}

func NewResolver(lookup Lookup, cache Cache, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Resolver{lookup: lookup, cache: cache, timeout: timeout}
}

// Resolve never returns an error: lookup failures, timeouts, and
// unparseable addresses all degrade to a location with nil coordinates,
// which downstream consumers treat as "no location available".
func (r *Resolver) Resolve(ctx context.Context, ip string) models.GeoLocation {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		log.Printf("geoip: unparseable address %q, no location", ip)
		return models.GeoLocation{}
	}

	if isPrivate(parsed) {
		return models.GeoLocation{Country: "XX", City: "Private", IsPrivate: true}
	}

	if r.cache != nil {
		if cached, ok := r.cache.Get(ip); ok {
			return cached
		}
	}

	if r.lookup == nil {
		return models.GeoLocation{}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	location, err := r.lookup.Locate(ctx, ip)
	if err != nil {
		log.Printf("geoip: lookup failed for %s: %v", ip, err)
		return models.GeoLocation{}
	}

	if r.cache != nil {
		r.cache.Set(ip, location)
	}
	return location
}

// isPrivate covers loopback, RFC 1918 (10/8, 172.16/12, 192.168/16),
// link-local and their IPv6 equivalents.
func isPrivate(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast()
}
