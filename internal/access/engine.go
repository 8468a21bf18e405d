// Package access composes IP-rule and geofence checks into a single
// allow/block decision per request.
package access

import (
	"context"
	"fmt"

	"geogate/internal/geofence"
	"geogate/internal/iprules"
	"geogate/internal/models"
)

const (
	ReasonFilterDisabled = "filter disabled"
	ReasonNoLocation     = "no location available"
	ReasonNoGeofence     = "no geofence configured"
	ReasonOutsideFences  = "not within any configured geofence"
	ReasonBothPassed     = "both IP and geo checks passed"
)

// LocationResolver supplies the IP-derived location. It never fails;
// "no location" is expressed as nil coordinates.
type LocationResolver interface {
	Resolve(ctx context.Context, ip string) models.GeoLocation
}

// Request carries one evaluation's inputs. Rule and fence sets are
// read-only snapshots owned by the caller; the engine never mutates them.
// Only active entries should be passed in.
type Request struct {
	Mode     models.FilterMode
	ClientIP string
	GPSLat   *float64
	GPSLon   *float64
	Rules    []models.IPRule
	Fences   []models.Geofence
}

// Engine is the access decision composer. It is stateless and safe for
// concurrent use; the only shared resource is the resolver's cache.
type Engine struct {
	resolver LocationResolver
}

func NewEngine(resolver LocationResolver) *Engine {
	return &Engine{resolver: resolver}
}

// Decide produces the allow/block verdict for one request. It never
// returns an error: malformed rules are skipped, missing location is a
// decision outcome, and an unrecognized mode fails open with a reason
// naming it. Disabled mode performs no geolocation lookup at all.
func (e *Engine) Decide(ctx context.Context, req Request) models.AccessDecision {
	if req.Mode == models.FilterDisabled {
		return models.AccessDecision{Allowed: true, Reason: ReasonFilterDisabled}
	}

	ipGeo := e.resolve(ctx, req.ClientIP)

	switch req.Mode {
	case models.FilterIP:
		return e.decideIP(req, ipGeo)
	case models.FilterGeo:
		return e.decideGeo(req, ipGeo)
	case models.FilterIPAndGeo:
		return e.decideIPAndGeo(req, ipGeo)
	}

	// Fail open on configuration typos rather than locking everyone out.
	return models.AccessDecision{
		Allowed: true,
		Reason:  fmt.Sprintf("unknown filter mode: %s", req.Mode),
		IPGeo:   ipGeo,
	}
}

func (e *Engine) resolve(ctx context.Context, ip string) *models.GeoLocation {
	if e.resolver == nil || ip == "" {
		return nil
	}
	location := e.resolver.Resolve(ctx, ip)
	return &location
}

// decideIP delegates to the rule resolver; the resolved location rides
// along for audit context only.
func (e *Engine) decideIP(req Request, ipGeo *models.GeoLocation) models.AccessDecision {
	allowed, reason := iprules.Evaluate(req.Rules, req.ClientIP)
	return models.AccessDecision{
		Allowed: allowed,
		Reason:  reason,
		IPGeo:   ipGeo,
		IPCheck: reason,
	}
}

func (e *Engine) decideGeo(req Request, ipGeo *models.GeoLocation) models.AccessDecision {
	lat, lon := effectiveLocation(req, ipGeo)

	if lat == nil || lon == nil {
		return models.AccessDecision{Allowed: false, Reason: ReasonNoLocation, IPGeo: ipGeo}
	}

	if len(req.Fences) == 0 {
		return models.AccessDecision{Allowed: true, Reason: ReasonNoGeofence, IPGeo: ipGeo}
	}

	inside, reason := geofence.EvaluateAll(req.Fences, lat, lon)
	if inside {
		return models.AccessDecision{
			Allowed:  true,
			Reason:   fmt.Sprintf("within geofence: %s", reason),
			IPGeo:    ipGeo,
			GeoCheck: reason,
		}
	}

	return models.AccessDecision{
		Allowed:  false,
		Reason:   ReasonOutsideFences,
		IPGeo:    ipGeo,
		GeoCheck: geofence.ReasonOutsideAll,
	}
}

// decideIPAndGeo runs both checks independently and requires both to
// pass. A geo side with no usable location is a geo-fail; it does not
// short-circuit the IP check's own reporting.
func (e *Engine) decideIPAndGeo(req Request, ipGeo *models.GeoLocation) models.AccessDecision {
	ipAllowed, ipReason := iprules.Evaluate(req.Rules, req.ClientIP)

	lat, lon := effectiveLocation(req, ipGeo)

	geoAllowed := false
	geoReason := ReasonNoLocation

	if lat != nil && lon != nil {
		if len(req.Fences) > 0 {
			geoAllowed, geoReason = geofence.EvaluateAll(req.Fences, lat, lon)
		} else {
			geoAllowed = true
			geoReason = ReasonNoGeofence
		}
	}

	var reason string
	switch {
	case !ipAllowed:
		reason = fmt.Sprintf("IP: %s", ipReason)
	case !geoAllowed:
		reason = fmt.Sprintf("Geo: %s", geoReason)
	default:
		reason = ReasonBothPassed
	}

	return models.AccessDecision{
		Allowed:  ipAllowed && geoAllowed,
		Reason:   reason,
		IPGeo:    ipGeo,
		IPCheck:  ipReason,
		GeoCheck: geoReason,
	}
}

// effectiveLocation prefers device-reported GPS and falls back to the
// IP-derived fix, coordinate by coordinate.
func effectiveLocation(req Request, ipGeo *models.GeoLocation) (*float64, *float64) {
	lat := req.GPSLat
	lon := req.GPSLon

	if lat == nil && ipGeo != nil {
		lat = ipGeo.Latitude
	}
	if lon == nil && ipGeo != nil {
		lon = ipGeo.Longitude
	}
	return lat, lon
}
