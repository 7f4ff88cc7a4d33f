package photo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/muvahhid/molayeri-sub002/util/log"
)

// PreviewStore writes photos to a scratch directory so the panel can show them
// before submission. Every Acquire must be paired with a Release; Close
// releases whatever is left.
type PreviewStore struct {
	mu        sync.Mutex
	dir       string
	urlPrefix string
	files     map[string]string // photo ID -> path
}

// NewPreviewStore creates dir if needed. URLs are urlPrefix + "/" + id + ".jpg".
func NewPreviewStore(dir, urlPrefix string) (*PreviewStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create preview directory %s: %w", dir, err)
	}
	return &PreviewStore{
		dir:       dir,
		urlPrefix: strings.TrimSuffix(urlPrefix, "/"),
		files:     make(map[string]string),
	}, nil
}

// Dir returns the scratch directory.
func (s *PreviewStore) Dir() string {
	return s.dir
}

// Acquire writes p to disk and returns its preview URL.
func (s *PreviewStore) Acquire(p *Photo) (string, error) {
	if strings.Contains(p.ID, "..") || strings.ContainsAny(p.ID, `/\`) {
		return "", fmt.Errorf("invalid photo id %q", p.ID)
	}
	name := p.ID + ".jpg"
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, p.Data, 0644); err != nil {
		return "", fmt.Errorf("writing preview: %w", err)
	}

	s.mu.Lock()
	s.files[p.ID] = path
	s.mu.Unlock()

	return s.urlPrefix + "/" + name, nil
}

// Release deletes the preview for id. Unknown IDs are ignored.
func (s *PreviewStore) Release(id string) {
	s.mu.Lock()
	path, ok := s.files[id]
	delete(s.files, id)
	s.mu.Unlock()

	if !ok {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("PreviewStore: failed to delete %s: %v", path, err)
	}
}

// Count returns the number of outstanding previews.
func (s *PreviewStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// Close releases all outstanding previews.
func (s *PreviewStore) Close() error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.files))
	for id := range s.files {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.Release(id)
	}
	return nil
}
