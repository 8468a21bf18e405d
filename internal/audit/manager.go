package audit

import (
	"context"
	"log"
	"strings"
	"time"

	"geogate/internal/config"
	"geogate/internal/models"
)

// Manager fans audit records out to every enabled backend. A failing
// backend is logged and skipped; it never affects the decision path.
type Manager interface {
	Broadcast(record models.AuditRecord)
	Shutdown()
}

type manager struct {
	backends []Backend
}

// storeBackend adapts the SQLite store to the Backend interface.
type storeBackend struct {
	store *Store
}

func (b *storeBackend) Name() string { return "sqlite" }

func (b *storeBackend) Send(record *models.AuditRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return b.store.Insert(ctx, *record)
}

func (b *storeBackend) Shutdown() {
	if err := b.store.Close(); err != nil {
		log.Printf("Error closing audit store: %v", err)
	}
}

// NewManager initializes backends based on the application configuration.
// The returned Store is non-nil only when the sqlite backend is enabled;
// it backs the audit query endpoints.
func NewManager(cfg *config.Config) (Manager, *Store, error) {
	m := &manager{}
	var enabledBackends []string
	var queryStore *Store

	backendSet := make(map[string]bool)
	for _, b := range cfg.AuditBackends {
		backendSet[strings.TrimSpace(strings.ToLower(b))] = true
	}

	if backendSet["sqlite"] {
		store, err := NewStore(cfg.AuditDBPath)
		if err != nil {
			return nil, nil, err // Propagate critical init errors
		}
		m.backends = append(m.backends, &storeBackend{store: store})
		enabledBackends = append(enabledBackends, "sqlite")
		queryStore = store
	}

	if backendSet["file"] {
		m.backends = append(m.backends, NewFileBackend(cfg.AuditFilePath))
		enabledBackends = append(enabledBackends, "file")
	}

	if backendSet["loki"] {
		lokiBackend, err := NewLokiBackend(cfg.LokiURL)
		if err != nil {
			return nil, nil, err
		}
		m.backends = append(m.backends, lokiBackend)
		enabledBackends = append(enabledBackends, "loki")
	}

	if len(enabledBackends) == 0 {
		log.Println("Warning: No audit backends enabled. Audit records will be discarded.")
	} else {
		log.Printf("Enabled audit backends: %s", strings.Join(enabledBackends, ", "))
	}
	return m, queryStore, nil
}

// NewManagerWithBackends builds a manager over explicit backends. Used by
// tests and by callers that construct backends themselves.
func NewManagerWithBackends(backends ...Backend) Manager {
	return &manager{backends: backends}
}

// Broadcast sends the record to all enabled backends.
func (m *manager) Broadcast(record models.AuditRecord) {
	for _, b := range m.backends {
		if err := b.Send(&record); err != nil {
			log.Printf("Error sending audit record to backend '%s': %v", b.Name(), err)
		}
	}
}

// Shutdown gracefully stops all managed backends.
func (m *manager) Shutdown() {
	log.Println("Shutting down audit backends...")
	for _, b := range m.backends {
		b.Shutdown()
	}
}
