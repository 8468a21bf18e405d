package models

import "time"

// FilterMode selects which checks a site applies to incoming requests.
type FilterMode string

const (
	FilterDisabled FilterMode = "disabled"
	FilterIP       FilterMode = "ip"
	FilterGeo      FilterMode = "geo"
	FilterIPAndGeo FilterMode = "ip_and_geo"
)

// Rule actions.
const (
	ActionAllow = "allow"
	ActionDeny  = "deny"
)

// GeoLocation is the result of resolving an IP address to a place.
// Coordinates are pointers because "no location" is a first-class outcome,
// not a zero value.
type GeoLocation struct {
	Country   string   `json:"country,omitempty"`
	City      string   `json:"city,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	IsPrivate bool     `json:"is_private,omitempty"`
}

// HasCoordinates reports whether the location carries a usable lat/lon pair.
func (g *GeoLocation) HasCoordinates() bool {
	return g != nil && g.Latitude != nil && g.Longitude != nil
}

// IPRule is a single CIDR-based allow/deny rule. A CIDR without a "/"
// is an exact single-address match. Priority is carried from the rule
// store but resolution is driven purely by prefix specificity.
type IPRule struct {
	CIDR     string `json:"cidr" yaml:"cidr"`
	Action   string `json:"action" yaml:"action"`
	Active   bool   `json:"active" yaml:"active"`
	Priority int    `json:"priority" yaml:"priority"`
}

// Polygon is a GeoJSON-style polygon: the first ring is the outer ring of
// [longitude, latitude] vertex pairs, first and last vertex equal.
type Polygon struct {
	Type        string        `json:"type"`
	Coordinates [][][]float64 `json:"coordinates"`
}

// OuterRing returns the polygon's outer ring, or nil if the polygon is not
// a well-formed GeoJSON Polygon.
func (p *Polygon) OuterRing() [][]float64 {
	if p == nil || p.Type != "Polygon" || len(p.Coordinates) == 0 {
		return nil
	}
	return p.Coordinates[0]
}

// Geofence bounds a geographic area, either by polygon or by a circle
// around a center point. At most one of the two shapes is evaluated.
type Geofence struct {
	Name         string   `json:"name,omitempty"`
	Polygon      *Polygon `json:"polygon,omitempty"`
	CenterLat    *float64 `json:"center_lat,omitempty"`
	CenterLon    *float64 `json:"center_lon,omitempty"`
	RadiusMeters *float64 `json:"radius_meters,omitempty"`
	Active       bool     `json:"active"`
}

// AccessDecision is the single allow/block verdict for one request.
// Reason is always non-empty. IPCheck and GeoCheck are populated only
// for the checks that were actually performed.
type AccessDecision struct {
	Allowed  bool         `json:"allowed"`
	Reason   string       `json:"reason"`
	IPGeo    *GeoLocation `json:"ip_geo,omitempty"`
	IPCheck  string       `json:"ip_check,omitempty"`
	GeoCheck string       `json:"geo_check,omitempty"`
}

// AuditRecord is the flattened form of a decision plus the client signals
// it was made from, ready for persistence as an immutable audit row.
type AuditRecord struct {
	Site         string    `json:"site"`
	ClientIP     string    `json:"client_ip"`
	Decision     string    `json:"decision"`
	Reason       string    `json:"reason"`
	IPGeoCountry string    `json:"ip_geo_country,omitempty"`
	IPGeoCity    string    `json:"ip_geo_city,omitempty"`
	IPGeoLat     *float64  `json:"ip_geo_lat,omitempty"`
	IPGeoLon     *float64  `json:"ip_geo_lon,omitempty"`
	GPSLat       *float64  `json:"gps_lat,omitempty"`
	GPSLon       *float64  `json:"gps_lon,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	ArtifactKey  string    `json:"artifact_key,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Float64 returns a pointer to v. Convenience for optional fields.
func Float64(v float64) *float64 {
	return &v
}
