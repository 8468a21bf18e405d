package audit

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"geogate/internal/models"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord(t *testing.T) {
	decision := models.AccessDecision{
		Allowed: false,
		Reason:  "not within any configured geofence",
		IPGeo: &models.GeoLocation{
			Country:   "US",
			City:      "San Francisco",
			Latitude:  models.Float64(37.7749),
			Longitude: models.Float64(-122.4194),
		},
	}

	record := NewRecord("demo", "203.0.113.7", decision,
		models.Float64(51.5), models.Float64(-0.12), "curl/8.0", "artifacts/abc")

	assert.Equal(t, "blocked", record.Decision)
	assert.Equal(t, "not within any configured geofence", record.Reason)
	assert.Equal(t, "US", record.IPGeoCountry)
	require.NotNil(t, record.IPGeoLat)
	assert.InDelta(t, 37.7749, *record.IPGeoLat, 0.0001)
	require.NotNil(t, record.GPSLat)
	assert.InDelta(t, 51.5, *record.GPSLat, 0.0001)
	assert.Equal(t, "artifacts/abc", record.ArtifactKey)
	assert.False(t, record.Timestamp.IsZero())
}

func TestNewRecord_AllowedWithoutGeo(t *testing.T) {
	decision := models.AccessDecision{Allowed: true, Reason: "filter disabled"}

	record := NewRecord("demo", "10.0.0.1", decision, nil, nil, "", "")

	assert.Equal(t, "allowed", record.Decision)
	assert.Empty(t, record.IPGeoCountry)
	assert.Nil(t, record.IPGeoLat)
	assert.Nil(t, record.GPSLat)
}

func TestFileBackend_AppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	backend := NewFileBackend(path)
	defer backend.Shutdown()

	first := sampleRecord()
	second := sampleRecord()
	second.Decision = "allowed"

	require.NoError(t, backend.Send(&first))
	require.NoError(t, backend.Send(&second))
	backend.Shutdown()

	payload, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	require.Len(t, lines, 2)

	var decoded models.AuditRecord
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &decoded))
	assert.Equal(t, "blocked", decoded.Decision)
	assert.Equal(t, "203.0.113.7", decoded.ClientIP)
}

func TestNewLokiBackend_EmptyURLReturnsError(t *testing.T) {
	backend, err := NewLokiBackend("")
	if err == nil {
		t.Fatal("expected error for empty Loki URL")
	}
	if backend != nil {
		t.Fatal("expected nil backend for empty Loki URL")
	}
	if !strings.Contains(err.Error(), "loki URL is empty") {
		t.Fatalf("unexpected error: %v", err)
	}
}

type recordingBackend struct {
	name string
	sent []models.AuditRecord
	err  error
}

func (b *recordingBackend) Name() string { return b.name }
func (b *recordingBackend) Send(r *models.AuditRecord) error {
	if b.err != nil {
		return b.err
	}
	b.sent = append(b.sent, *r)
	return nil
}
func (b *recordingBackend) Shutdown() {}

func TestManager_BroadcastSurvivesFailingBackend(t *testing.T) {
	failing := &recordingBackend{name: "broken", err: errors.New("down")}
	working := &recordingBackend{name: "ok"}
	m := NewManagerWithBackends(failing, working)

	m.Broadcast(sampleRecord())

	require.Len(t, working.sent, 1)
	assert.Equal(t, "demo", working.sent[0].Site)
}

func TestWriteCSV(t *testing.T) {
	records := []models.AuditRecord{sampleRecord()}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, records))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "timestamp,site,client_ip,decision,reason"))
	assert.Contains(t, lines[1], "demo")
	assert.Contains(t, lines[1], "blocked")
	assert.Contains(t, lines[1], "37.7749")

	// Nil coordinates render as empty cells.
	assert.Contains(t, lines[1], ",,")
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, 1, strings.Count(strings.TrimSpace(buf.String()), "\n")+1)
}
