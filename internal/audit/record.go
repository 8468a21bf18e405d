// Package audit persists and fans out immutable records of access
// decisions. Nothing here can fail the decision path: backend errors are
// logged and dropped.
package audit

import (
	"time"

	"geogate/internal/models"
)

// NewRecord flattens a decision and the client signals it was made from
// into one audit row.
func NewRecord(site, clientIP string, decision models.AccessDecision, gpsLat, gpsLon *float64, userAgent, artifactKey string) models.AuditRecord {
	record := models.AuditRecord{
		Site:        site,
		ClientIP:    clientIP,
		Decision:    verdict(decision.Allowed),
		Reason:      decision.Reason,
		GPSLat:      gpsLat,
		GPSLon:      gpsLon,
		UserAgent:   userAgent,
		ArtifactKey: artifactKey,
		Timestamp:   time.Now().UTC(),
	}

	if decision.IPGeo != nil {
		record.IPGeoCountry = decision.IPGeo.Country
		record.IPGeoCity = decision.IPGeo.City
		record.IPGeoLat = decision.IPGeo.Latitude
		record.IPGeoLon = decision.IPGeo.Longitude
	}

	return record
}

func verdict(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "blocked"
}
