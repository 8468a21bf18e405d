package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Run("loads default values correctly", func(t *testing.T) {
		cfg := Load()

		if cfg.ListenAddr != ":8080" {
			t.Errorf("expected default ListenAddr to be ':8080', got %s", cfg.ListenAddr)
		}
		if cfg.GeoIPDBPath != "" {
			t.Errorf("expected default GeoIPDBPath to be empty, got %s", cfg.GeoIPDBPath)
		}
		if cfg.GeoCacheSize != 10000 {
			t.Errorf("expected default GeoCacheSize to be 10000, got %d", cfg.GeoCacheSize)
		}
		if cfg.GeoCacheTTL != time.Hour {
			t.Errorf("expected default GeoCacheTTL to be 1h, got %v", cfg.GeoCacheTTL)
		}
		if cfg.GeoLookupTimeout != 5*time.Second {
			t.Errorf("expected default GeoLookupTimeout to be 5s, got %v", cfg.GeoLookupTimeout)
		}
		if cfg.CaptureEnabled {
			t.Errorf("expected default CaptureEnabled to be false")
		}
		if !reflect.DeepEqual(cfg.AuditBackends, []string{"sqlite"}) {
			t.Errorf("expected default AuditBackends to be [sqlite], got %v", cfg.AuditBackends)
		}
	})

	t.Run("overrides default values from environment variables", func(t *testing.T) {
		t.Setenv("LISTEN_ADDR", "127.0.0.1:9090")
		t.Setenv("GEOIP_DB_PATH", "/data/GeoLite2-City.mmdb")
		t.Setenv("GEO_CACHE_TTL", "30m")
		t.Setenv("GEO_LOOKUP_TIMEOUT", "2s")
		t.Setenv("AUDIT_BACKENDS", "sqlite,file,loki")
		t.Setenv("LOKI_URL", "http://loki:3100")
		t.Setenv("CAPTURE_ENABLED", "true")

		cfg := Load()

		if cfg.ListenAddr != "127.0.0.1:9090" {
			t.Errorf("expected overridden ListenAddr, got %s", cfg.ListenAddr)
		}
		if cfg.GeoIPDBPath != "/data/GeoLite2-City.mmdb" {
			t.Errorf("expected overridden GeoIPDBPath, got %s", cfg.GeoIPDBPath)
		}
		if cfg.GeoCacheTTL != 30*time.Minute {
			t.Errorf("expected overridden GeoCacheTTL to be 30m, got %v", cfg.GeoCacheTTL)
		}
		if cfg.GeoLookupTimeout != 2*time.Second {
			t.Errorf("expected overridden GeoLookupTimeout to be 2s, got %v", cfg.GeoLookupTimeout)
		}
		expectedBackends := []string{"sqlite", "file", "loki"}
		if !reflect.DeepEqual(cfg.AuditBackends, expectedBackends) {
			t.Errorf("expected AuditBackends %v, got %v", expectedBackends, cfg.AuditBackends)
		}
		if cfg.LokiURL != "http://loki:3100" {
			t.Errorf("expected overridden LokiURL, got %s", cfg.LokiURL)
		}
		if !cfg.CaptureEnabled {
			t.Errorf("expected CaptureEnabled to be true")
		}
	})

	t.Run("ignores malformed values", func(t *testing.T) {
		t.Setenv("GEO_CACHE_SIZE", "not-a-number")
		t.Setenv("GEO_CACHE_TTL", "eleven minutes")
		t.Setenv("CAPTURE_ENABLED", "definitely")

		cfg := Load()

		if cfg.GeoCacheSize != 10000 {
			t.Errorf("expected malformed GEO_CACHE_SIZE to fall back to 10000, got %d", cfg.GeoCacheSize)
		}
		if cfg.GeoCacheTTL != time.Hour {
			t.Errorf("expected malformed GEO_CACHE_TTL to fall back to 1h, got %v", cfg.GeoCacheTTL)
		}
		if cfg.CaptureEnabled {
			t.Errorf("expected malformed CAPTURE_ENABLED to fall back to false")
		}
	})
}
