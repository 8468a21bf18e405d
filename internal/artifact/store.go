package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ObjectStore is where captured artifacts live. A real deployment may back
// this with object storage; the default implementation uses the local
// filesystem.
type ObjectStore interface {
	Put(key string, data []byte) error
	Get(key string) ([]byte, error)
}

// FSStore stores artifacts as files under a root directory, using the
// object key as the relative path.
type FSStore struct {
	root string
}

func NewFSStore(root string) *FSStore {
	return &FSStore{root: root}
}

func (s *FSStore) Put(key string, data []byte) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func (s *FSStore) Get(key string) ([]byte, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// resolve maps a key to a path under root, refusing keys that would
// escape it.
func (s *FSStore) resolve(key string) (string, error) {
	cleanRoot := filepath.Clean(s.root)
	path := filepath.Clean(filepath.Join(cleanRoot, filepath.FromSlash(key)))

	rel, err := filepath.Rel(cleanRoot, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("artifact key %q escapes the store root", key)
	}
	return path, nil
}
