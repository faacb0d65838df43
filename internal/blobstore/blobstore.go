// Package blobstore implements content storage for packaged skill
// archives. The registry's blob-first persistence rule requires a blob to
// exist before any index entry references it — orphan blobs are tolerable,
// dangling index entries are not.
package blobstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"fastskill/internal/regerr"
)

// Store is the capability every blob backend implements. The closed
// variant set this registry ships is local-filesystem only; a remote
// object-store backend is a natural extension point but is not
// implemented here (see DESIGN.md).
type Store interface {
	Upload(key string, r io.Reader) error
	Download(key string) (io.ReadCloser, error)
	Exists(key string) (bool, error)
	Delete(key string) error
	BaseURL() string
}

// LocalStore is a filesystem-backed Store rooted at Root.
type LocalStore struct {
	Root string
}

// NewLocalStore returns a LocalStore rooted at root, creating it if
// necessary.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, regerr.New(regerr.KindIO, "blobstore.NewLocalStore", err)
	}
	return &LocalStore{Root: root}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	if filepath.IsAbs(key) {
		return "", regerr.New(regerr.KindValidation, "blobstore.path",
			fmt.Errorf("blob key must be relative: %q", key))
	}
	for _, part := range strings.Split(filepath.ToSlash(key), "/") {
		if part == ".." {
			return "", regerr.New(regerr.KindValidation, "blobstore.path",
				fmt.Errorf("blob key escapes store root: %q", key))
		}
	}
	return filepath.Join(s.Root, filepath.FromSlash(key)), nil
}

// Upload writes r to key, creating parent directories as needed. The
// write is not required to be atomic with respect to concurrent readers
// of the same key — blobs are content-addressed and never mutated once
// written.
func (s *LocalStore) Upload(key string, r io.Reader) error {
	full, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return regerr.New(regerr.KindIO, "blobstore.Upload", err)
	}
	f, err := os.Create(full)
	if err != nil {
		return regerr.New(regerr.KindIO, "blobstore.Upload", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return regerr.New(regerr.KindIO, "blobstore.Upload", err)
	}
	return nil
}

// Download opens key for reading. The caller must close the returned
// reader.
func (s *LocalStore) Download(key string) (io.ReadCloser, error) {
	full, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, regerr.New(regerr.KindIO, "blobstore.Download", fmt.Errorf("blob not found: %s", key))
		}
		return nil, regerr.New(regerr.KindIO, "blobstore.Download", err)
	}
	return f, nil
}

// Exists reports whether key is present.
func (s *LocalStore) Exists(key string) (bool, error) {
	full, err := s.path(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, regerr.New(regerr.KindIO, "blobstore.Exists", err)
	}
	return true, nil
}

// Delete removes key. Deleting a key that does not exist is not an error.
func (s *LocalStore) Delete(key string) error {
	full, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return regerr.New(regerr.KindIO, "blobstore.Delete", err)
	}
	return nil
}

// BaseURL returns a file:// URL locating the store root, for clients that
// resolve blob keys into fetchable URLs.
func (s *LocalStore) BaseURL() string {
	return "file://" + filepath.ToSlash(s.Root)
}
