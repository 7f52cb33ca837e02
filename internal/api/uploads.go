package api

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Uploads stores resume files on disk under a single directory. Stored
// names are random UUIDs keeping the original extension; the original
// filename lives only in the database.
type Uploads struct {
	dir string
}

// NewUploads ensures dir exists and returns the store.
func NewUploads(dir string) (*Uploads, error) {
	if dir == "" {
		return nil, fmt.Errorf("uploads: dir is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating uploads dir: %w", err)
	}
	return &Uploads{dir: dir}, nil
}

// Dir returns the storage directory.
func (u *Uploads) Dir() string { return u.dir }

// Save writes data under a fresh name derived from originalFilename's
// extension and returns the stored path.
func (u *Uploads) Save(data []byte, originalFilename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalFilename))
	path := filepath.Join(u.dir, uuid.New().String()+ext)
	if err := atomicWriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("saving upload: %w", err)
	}
	return path, nil
}

// Read returns a stored file's contents. The path must lie inside the
// uploads directory.
func (u *Uploads) Read(path string) ([]byte, error) {
	if !u.contains(path) {
		return nil, fmt.Errorf("uploads: path %q escapes %q", path, u.dir)
	}
	return os.ReadFile(path)
}

// Remove deletes a stored file. Removing a missing file is a no-op.
func (u *Uploads) Remove(path string) error {
	if !u.contains(path) {
		return fmt.Errorf("uploads: path %q escapes %q", path, u.dir)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// contains reports whether path stays inside the uploads directory.
// Paths are stored verbatim in the database, so a tampered row must not
// reach past the directory.
func (u *Uploads) contains(path string) bool {
	rel, err := filepath.Rel(u.dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
