// Package blob abstracts the object store holding uploaded archives,
// unpacked members and serialized trees. Objects are addressed by
// forward-slash names (e.g. backup/<id>/<file>); backends are GCS, S3
// and the local filesystem.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when the named object does not exist.
var ErrNotFound = errors.New("blob: object not found")

// Store is the capability the upload, download and worker paths
// depend on.
type Store interface {
	// Get returns the full contents of the named object.
	Get(ctx context.Context, name string) ([]byte, error)
	// Put creates or replaces the named object.
	Put(ctx context.Context, name string, data []byte) error
}

// FileStore keeps objects under a base directory, mapping the
// forward-slash name to a relative path. Used in development and
// tests.
type FileStore struct {
	baseDir string
}

// NewFileStore creates the base directory if needed.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure blob dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) Get(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", name, err)
	}
	return data, nil
}

func (s *FileStore) Put(_ context.Context, name string, data []byte) error {
	path := s.path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure parent of %s: %w", name, err)
	}

	// Write-then-rename keeps readers from observing partial objects.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return fmt.Errorf("stage object %s: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write object %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close object %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("commit object %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(name))
}

// drainAndClose reads everything from r, preferring the read error
// over the close error.
func drainAndClose(r io.ReadCloser) ([]byte, error) {
	data, err := io.ReadAll(r)
	if cerr := r.Close(); err == nil {
		err = cerr
	}
	return data, err
}
