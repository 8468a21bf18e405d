package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenAddr       string
	SitesFilePath    string
	GeoIPDBPath      string
	GeoCacheSize     int
	GeoCacheTTL      time.Duration
	GeoLookupTimeout time.Duration
	AuditBackends    []string
	AuditDBPath      string
	AuditFilePath    string
	LokiURL          string
	ArtifactDir      string
	CaptureEnabled   bool
	CaptureTimeout   time.Duration
}

func Load() *Config {
	cfg := &Config{
		ListenAddr:       getEnv("LISTEN_ADDR", ":8080"),
		SitesFilePath:    getEnv("SITES_FILE_PATH", "/etc/geogate/sites.yml"),
		GeoIPDBPath:      getEnv("GEOIP_DB_PATH", ""),
		GeoCacheSize:     getEnvInt("GEO_CACHE_SIZE", 10000),
		GeoCacheTTL:      getEnvDuration("GEO_CACHE_TTL", time.Hour),
		GeoLookupTimeout: getEnvDuration("GEO_LOOKUP_TIMEOUT", 5*time.Second),
		AuditBackends:    getEnvSlice("AUDIT_BACKENDS", []string{"sqlite"}),
		AuditDBPath:      getEnv("AUDIT_DB_PATH", "/data/audit.db"),
		AuditFilePath:    getEnv("AUDIT_FILE_PATH", "/data/audit.jsonl"),
		LokiURL:          getEnv("LOKI_URL", ""),
		ArtifactDir:      getEnv("ARTIFACT_DIR", "/data/artifacts"),
		CaptureEnabled:   getEnvBool("CAPTURE_ENABLED", false),
		CaptureTimeout:   getEnvDuration("CAPTURE_TIMEOUT", 10*time.Second),
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
