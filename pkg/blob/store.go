// Package blob is a content-addressable store for attachment binaries.
// Content is keyed by its SHA-256 hex digest, so writing the same bytes
// twice is a no-op and concurrent writers converge on one file.
package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

type Store struct {
	root string
}

func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Put streams r into the store and returns the content hash key and the
// number of bytes written. The write goes through a temp file and an
// atomic rename so a crash never leaves a partial blob under its key.
func (s *Store) Put(r io.Reader) (key string, size int64, err error) {
	tmp, err := os.CreateTemp(s.root, "incoming-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	size, err = io.Copy(io.MultiWriter(tmp, h), r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", 0, fmt.Errorf("failed to write blob: %w", err)
	}

	key = hex.EncodeToString(h.Sum(nil))
	dest := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create blob dir: %w", err)
	}
	if _, err := os.Stat(dest); err == nil {
		// Already stored; identical content by construction.
		return key, size, nil
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", 0, fmt.Errorf("failed to store blob %s: %w", key, err)
	}
	return key, size, nil
}

// Open returns a reader over the blob stored under key.
func (s *Store) Open(key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if err != nil {
		return nil, fmt.Errorf("failed to open blob %s: %w", key, err)
	}
	return f, nil
}

// Fan out by the first two hash bytes to keep directories small.
func (s *Store) path(key string) string {
	if len(key) < 2 {
		return filepath.Join(s.root, key)
	}
	return filepath.Join(s.root, key[:2], key)
}
