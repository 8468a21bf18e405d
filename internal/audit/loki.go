package audit

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"geogate/internal/models"

	"github.com/goccy/go-json"
	"github.com/grafana/dskit/flagext"
	"github.com/grafana/loki-client-go/loki"
	"github.com/grafana/loki-client-go/pkg/urlutil"
	"github.com/prometheus/common/model"
)

const defaultLokiPushPath = "/loki/api/v1/push"

// LokiBackend streams audit records to a Grafana Loki instance.
type LokiBackend struct {
	client *loki.Client
}

// NewLokiBackend creates a new Loki backend.
func NewLokiBackend(lokiURL string) (*LokiBackend, error) {
	u, err := normalizeLokiPushURL(lokiURL)
	if err != nil {
		return nil, err
	}

	// Wait for Loki to become ready before creating a client. This
	// prevents a race on startup where this service starts faster than
	// Loki.
	readyURL := *u
	readyURL.Path = "/ready"
	slog.Debug("Waiting for Loki to be ready", "url", readyURL.String())
	isConnected := false

	httpClient := &http.Client{Timeout: 2 * time.Second}
	for i := 0; i < 30; i++ { // Retry for ~60 seconds
		resp, err := httpClient.Get(readyURL.String())
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			slog.Debug("Loki is ready.")
			isConnected = true
			break
		}

		if err != nil {
			slog.Warn("Loki readiness check failed", "error", err, "retrying", true)
		} else {
			slog.Warn("Loki readiness check failed", "status", resp.Status, "retrying", true)
			resp.Body.Close()
		}
		time.Sleep(2 * time.Second)
	}

	if !isConnected {
		return nil, fmt.Errorf("loki did not become ready in time")
	}

	cfg := loki.Config{
		URL:       urlutil.URLValue(flagext.URLValue{URL: u}),
		Timeout:   5 * time.Second,
		BatchSize: 100,
	}

	client, err := loki.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Loki client: %w", err)
	}

	slog.Info("Loki audit backend enabled, sending records to", "url", lokiURL)

	return &LokiBackend{client: client}, nil
}

func normalizeLokiPushURL(lokiURL string) (*url.URL, error) {
	if lokiURL == "" {
		return nil, fmt.Errorf("loki URL is empty")
	}

	u, err := url.Parse(lokiURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Loki URL: %w", err)
	}

	if u.Path == "" || u.Path == "/" {
		u.Path = defaultLokiPushPath
	}

	return u, nil
}

func (b *LokiBackend) Name() string {
	return "loki"
}

// Send ships one audit record as a labeled log line.
func (b *LokiBackend) Send(record *models.AuditRecord) error {
	labels := model.LabelSet{
		"job":      "geogate",
		"site":     model.LabelValue(record.Site),
		"decision": model.LabelValue(record.Decision),
	}

	line, err := json.Marshal(record)
	if err != nil {
		slog.Error("Failed to marshal audit record to JSON", "error", err)
		return fmt.Errorf("failed to marshal audit record to JSON: %w", err)
	}

	return b.client.Handle(labels, record.Timestamp, string(line))
}

// Shutdown stops the Loki client, which flushes any buffered entries.
func (b *LokiBackend) Shutdown() {
	if b.client != nil {
		b.client.Stop()
		slog.Info("Loki audit backend shut down.")
	}
}
