package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"geogate/internal/models"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS access_audit (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	site TEXT NOT NULL,
	client_ip TEXT NOT NULL,
	decision TEXT NOT NULL,
	reason TEXT NOT NULL,
	ip_geo_country TEXT,
	ip_geo_city TEXT,
	ip_geo_lat REAL,
	ip_geo_lon REAL,
	gps_lat REAL,
	gps_lon REAL,
	user_agent TEXT,
	artifact_key TEXT,
	timestamp TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_access_audit_site ON access_audit(site);
`

// Store persists audit records in an embedded SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database at path and ensures the schema.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create audit schema: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing connection. The caller owns schema
// setup; tests use this with a mock driver.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert appends one immutable audit row.
func (s *Store) Insert(ctx context.Context, record models.AuditRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO access_audit
		(site, client_ip, decision, reason, ip_geo_country, ip_geo_city,
		 ip_geo_lat, ip_geo_lon, gps_lat, gps_lon, user_agent, artifact_key, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.Site, record.ClientIP, record.Decision, record.Reason,
		nullString(record.IPGeoCountry), nullString(record.IPGeoCity),
		nullFloat(record.IPGeoLat), nullFloat(record.IPGeoLon),
		nullFloat(record.GPSLat), nullFloat(record.GPSLon),
		nullString(record.UserAgent), nullString(record.ArtifactKey),
		record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// List returns audit rows newest first, optionally filtered by site.
func (s *Store) List(ctx context.Context, site string, limit, offset int) ([]models.AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT site, client_ip, decision, reason, ip_geo_country, ip_geo_city,
		ip_geo_lat, ip_geo_lon, gps_lat, gps_lon, user_agent, artifact_key, timestamp
		FROM access_audit`
	args := []any{}
	if site != "" {
		query += ` WHERE site = ?`
		args = append(args, site)
	}
	query += ` ORDER BY timestamp DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	var records []models.AuditRecord
	for rows.Next() {
		var r models.AuditRecord
		var country, city, userAgent, artifactKey sql.NullString
		var ipLat, ipLon, gpsLat, gpsLon sql.NullFloat64
		var ts time.Time

		if err := rows.Scan(&r.Site, &r.ClientIP, &r.Decision, &r.Reason,
			&country, &city, &ipLat, &ipLon, &gpsLat, &gpsLon,
			&userAgent, &artifactKey, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}

		r.IPGeoCountry = country.String
		r.IPGeoCity = city.String
		r.IPGeoLat = floatPtr(ipLat)
		r.IPGeoLon = floatPtr(ipLon)
		r.GPSLat = floatPtr(gpsLat)
		r.GPSLon = floatPtr(gpsLon)
		r.UserAgent = userAgent.String
		r.ArtifactKey = artifactKey.String
		r.Timestamp = ts
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
