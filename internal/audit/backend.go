package audit

import "geogate/internal/models"

// Backend is the interface for all audit record destinations.
type Backend interface {
	// Send transmits one audit record to the backend.
	Send(record *models.AuditRecord) error
	// Shutdown gracefully closes the backend connection or flushes buffers.
	Shutdown()
	// Name returns the descriptive name of the backend.
	Name() string
}
