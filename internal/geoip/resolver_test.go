package geoip

import (
	"context"
	"errors"
	"testing"
	"time"

	"geogate/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLookup struct {
	calls    int
	location models.GeoLocation
	err      error
}

func (c *countingLookup) Locate(ctx context.Context, ip string) (models.GeoLocation, error) {
	c.calls++
	return c.location, c.err
}

type fakeCache struct {
	entries map[string]models.GeoLocation
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]models.GeoLocation)}
}

func (c *fakeCache) Get(key string) (models.GeoLocation, bool) {
	v, ok := c.entries[key]
	return v, ok
}

func (c *fakeCache) Set(key string, value models.GeoLocation) {
	c.sets++
	c.entries[key] = value
}

func usLocation() models.GeoLocation {
	return models.GeoLocation{
		Country:   "US",
		City:      "San Francisco",
		Latitude:  models.Float64(37.7749),
		Longitude: models.Float64(-122.4194),
	}
}

func TestResolve_PrivateAddresses(t *testing.T) {
	lookup := &countingLookup{location: usLocation()}
	cache := newFakeCache()
	r := NewResolver(lookup, cache, time.Second)

	for _, ip := range []string{"127.0.0.1", "10.1.2.3", "172.16.0.1", "192.168.1.1", "::1"} {
		t.Run(ip, func(t *testing.T) {
			loc := r.Resolve(context.Background(), ip)
			assert.True(t, loc.IsPrivate)
			assert.Equal(t, "XX", loc.Country)
			assert.Nil(t, loc.Latitude)
			assert.Nil(t, loc.Longitude)
		})
	}

	// Private addresses never reach the lookup or the cache.
	assert.Zero(t, lookup.calls)
	assert.Zero(t, cache.sets)
}

func TestResolve_CacheMissThenHit(t *testing.T) {
	lookup := &countingLookup{location: usLocation()}
	cache := newFakeCache()
	r := NewResolver(lookup, cache, time.Second)

	first := r.Resolve(context.Background(), "8.8.8.8")
	require.Equal(t, 1, lookup.calls)
	assert.Equal(t, "US", first.Country)
	require.True(t, first.HasCoordinates())

	second := r.Resolve(context.Background(), "8.8.8.8")
	assert.Equal(t, 1, lookup.calls, "second resolve must be served from cache")
	assert.Equal(t, first, second)
}

func TestResolve_LookupFailureYieldsEmptyLocation(t *testing.T) {
	lookup := &countingLookup{err: errors.New("backend down")}
	cache := newFakeCache()
	r := NewResolver(lookup, cache, time.Second)

	loc := r.Resolve(context.Background(), "8.8.8.8")
	assert.False(t, loc.HasCoordinates())
	assert.False(t, loc.IsPrivate)
	assert.Zero(t, cache.sets, "failed lookups are not cached")
}

func TestResolve_NilCacheLooksUpEveryTime(t *testing.T) {
	lookup := &countingLookup{location: usLocation()}
	r := NewResolver(lookup, nil, time.Second)

	r.Resolve(context.Background(), "8.8.8.8")
	r.Resolve(context.Background(), "8.8.8.8")
	assert.Equal(t, 2, lookup.calls)
}

func TestResolve_UnparseableAddress(t *testing.T) {
	lookup := &countingLookup{location: usLocation()}
	r := NewResolver(lookup, newFakeCache(), time.Second)

	loc := r.Resolve(context.Background(), "not-an-ip")
	assert.False(t, loc.HasCoordinates())
	assert.Zero(t, lookup.calls)
}

func TestResolve_NilLookup(t *testing.T) {
	r := NewResolver(nil, newFakeCache(), time.Second)

	loc := r.Resolve(context.Background(), "8.8.8.8")
	assert.False(t, loc.HasCoordinates())
}
