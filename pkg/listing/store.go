// Package listing keeps the business listings photos are published to.
package listing

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/muvahhid/molayeri-sub002/util/log"
)

// PhotoRef is a published photo of a listing.
type PhotoRef struct {
	ID        string `json:"id"`
	Key       string `json:"key"`
	URL       string `json:"url"`
	SizeBytes int    `json:"size_bytes"`
	IsCover   bool   `json:"is_cover"`
}

// Listing is a business record owning a set of photos.
type Listing struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Photos    []PhotoRef `json:"photos"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Cover returns the cover photo, if any.
func (l Listing) Cover() (PhotoRef, bool) {
	for _, p := range l.Photos {
		if p.IsCover {
			return p, true
		}
	}
	return PhotoRef{}, false
}

func (l Listing) clone() Listing {
	out := l
	out.Photos = make([]PhotoRef, len(l.Photos))
	copy(out.Photos, l.Photos)
	return out
}

// Store is a thread-safe listing table persisted as a JSON file.
type Store struct {
	mu       sync.RWMutex
	listings map[string]Listing

	path      string
	asyncSave bool

	saveTimer *time.Timer
	saveMu    sync.Mutex
	fileMu    sync.Mutex

	// Testing hook
	saveFunc func()

	debounceDuration time.Duration
}

// NewStore creates a store persisted to path. An empty path keeps it in memory.
func NewStore(path string) *Store {
	return &Store{
		listings:         make(map[string]Listing),
		path:             path,
		asyncSave:        true,
		debounceDuration: 2 * time.Second,
	}
}

func (s *Store) SetDebounceDuration(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debounceDuration = d
}

func (s *Store) SetAsyncSave(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asyncSave = enabled
}

// Get returns a copy of the listing with id.
func (s *Store) Get(id string) (Listing, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[id]
	if !ok {
		return Listing{}, false
	}
	return l.clone(), true
}

// Put inserts or replaces a listing.
func (s *Store) Put(l Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = time.Now().UTC()
	}
	s.listings[l.ID] = l.clone()
	s.scheduleSaveLocked()
}

// Delete removes a listing and reports whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listings[id]; !ok {
		return false
	}
	delete(s.listings, id)
	s.scheduleSaveLocked()
	return true
}

// List returns every listing ordered by ID.
func (s *Store) List() []Listing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Listing, 0, len(s.listings))
	for _, l := range s.listings {
		out = append(out, l.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listings)
}

// scheduleSaveLocked handles persistence.
// CALLER MUST HOLD s.mu.Lock()
func (s *Store) scheduleSaveLocked() {
	if !s.asyncSave {
		s.saveInternal(s.snapshotLocked())
		return
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.saveTimer = time.AfterFunc(s.debounceDuration, func() {
		s.Save()
	})
}

func (s *Store) snapshotLocked() []Listing {
	snapshot := make([]Listing, 0, len(s.listings))
	for _, l := range s.listings {
		snapshot = append(snapshot, l.clone())
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ID < snapshot[j].ID })
	return snapshot
}

// Load reads the JSON file. A missing file leaves the store empty.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return nil
	}

	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	var listings []Listing
	if err := json.NewDecoder(file).Decode(&listings); err != nil {
		return err
	}

	s.listings = make(map[string]Listing, len(listings))
	for _, l := range listings {
		s.listings[l.ID] = l
	}
	return nil
}

// Save writes the store to disk now.
func (s *Store) Save() {
	s.mu.RLock()
	snapshot := s.snapshotLocked()
	s.mu.RUnlock()

	s.saveInternal(snapshot)
}

// Close flushes a pending debounced save.
func (s *Store) Close() {
	s.saveMu.Lock()
	pending := s.saveTimer != nil && s.saveTimer.Stop()
	s.saveTimer = nil
	s.saveMu.Unlock()

	if pending {
		s.Save()
	}
}

func (s *Store) saveInternal(listings []Listing) {
	if s.saveFunc != nil {
		s.saveFunc()
	}

	if s.path == "" {
		return
	}

	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		log.Printf("Store: Failed to create directory: %v", err)
		return
	}

	tmp := s.path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		log.Printf("Store: Failed to save listings: %v", err)
		return
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(listings); err != nil {
		file.Close()
		log.Printf("Store: Failed to encode listings: %v", err)
		return
	}
	file.Close()

	if err := os.Rename(tmp, s.path); err != nil {
		log.Printf("Store: Failed to rename listings file: %v", err)
	}
}
