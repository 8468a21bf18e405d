package audit

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"geogate/internal/models"
)

var csvHeader = []string{
	"timestamp", "site", "client_ip", "decision", "reason",
	"ip_geo_country", "ip_geo_city", "ip_geo_lat", "ip_geo_lon",
	"gps_lat", "gps_lon", "user_agent", "artifact_key",
}

// WriteCSV renders audit rows as CSV with a header row.
func WriteCSV(w io.Writer, records []models.AuditRecord) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(csvHeader); err != nil {
		return err
	}

	for _, r := range records {
		row := []string{
			r.Timestamp.Format(time.RFC3339),
			r.Site,
			r.ClientIP,
			r.Decision,
			r.Reason,
			r.IPGeoCountry,
			r.IPGeoCity,
			formatFloat(r.IPGeoLat),
			formatFloat(r.IPGeoLon),
			formatFloat(r.GPSLat),
			formatFloat(r.GPSLon),
			r.UserAgent,
			r.ArtifactKey,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
