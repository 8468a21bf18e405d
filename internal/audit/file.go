package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"geogate/internal/models"

	"github.com/goccy/go-json"
)

// FileBackend appends audit records as JSON lines to a single file.
type FileBackend struct {
	path string

	mu     sync.Mutex // Protects writer
	writer *os.File
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (b *FileBackend) Name() string {
	return "file"
}

// Send marshals the record and appends it as one line. The file is opened
// lazily on the first record.
func (b *FileBackend) Send(record *models.AuditRecord) error {
	line, err := json.Marshal(record)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.writer == nil {
		if err := b.openWriter(); err != nil {
			return err
		}
	}

	_, err = b.writer.Write(line)
	return err
}

func (b *FileBackend) openWriter() error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory for audit file %s: %w", b.path, err)
	}

	f, err := os.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit file %s: %w", b.path, err)
	}
	b.writer = f
	return nil
}

// Shutdown closes the underlying file.
func (b *FileBackend) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writer != nil {
		_ = b.writer.Close()
		b.writer = nil
	}
}
