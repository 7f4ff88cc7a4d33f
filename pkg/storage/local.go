package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/muvahhid/molayeri-sub002/util/log"
)

// LocalStore keeps objects under a root directory. It backs development
// setups and the CLI.
type LocalStore struct {
	rootDir string
	baseURL string
}

// NewLocalStore creates rootDir if needed. URLs are baseURL + "/" + key.
func NewLocalStore(rootDir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory %s: %w", rootDir, err)
	}
	return &LocalStore{rootDir: rootDir, baseURL: baseURL}, nil
}

// Root returns the directory objects are written to.
func (s *LocalStore) Root() string {
	return s.rootDir
}

// Path returns the file path for key.
func (s *LocalStore) Path(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.rootDir, filepath.FromSlash(key)), nil
}

// Put writes body to the file for key through a temp file and rename.
func (s *LocalStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	n, err := io.Copy(tmp, body)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && size >= 0 && n != size {
		err = fmt.Errorf("short write: %d of %d bytes", n, size)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("renaming %s: %w", key, err)
	}

	log.Debugf("LocalStore: stored %s (%d bytes, %s)", key, n, contentType)
	return nil
}

// Delete removes the file for key. Missing files are not an error.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// URL implements ObjectStore.
func (s *LocalStore) URL(key string) string {
	return joinURL(s.baseURL, key)
}
