package photo

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/muvahhid/molayeri-sub002/util/log"
)

// Batch limits used for listing photos.
const (
	DefaultMaxCount = 6
	DefaultMinCount = 3
)

// Photo is a normalized photo held in a batch.
type Photo struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	ContentType string  `json:"content_type"`
	Data        []byte  `json:"-"`
	SizeBytes   int     `json:"size_bytes"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Quality     float64 `json:"quality"`
	BudgetMet   bool    `json:"budget_met"`
	IsCover     bool    `json:"is_cover"`
	PreviewURL  string  `json:"preview_url,omitempty"`
}

// NewPhoto wraps a normalizer result in a Photo with a fresh ID.
func NewPhoto(name string, res Result) *Photo {
	return &Photo{
		ID:          uuid.NewString(),
		Name:        name,
		ContentType: res.ContentType,
		Data:        res.Data,
		SizeBytes:   res.SizeBytes,
		Width:       res.Width,
		Height:      res.Height,
		Quality:     res.Quality,
		BudgetMet:   res.BudgetMet,
	}
}

// PreviewReleaser hands out temporary preview references and takes them back.
type PreviewReleaser interface {
	Acquire(p *Photo) (string, error)
	Release(id string)
}

// Batch is an ordered, bounded set of photos with a single cover.
// Once non-empty, exactly one photo is the cover.
type Batch struct {
	mu       sync.RWMutex
	photos   []*Photo
	maxCount int
	minCount int
	previews PreviewReleaser
}

// NewBatch creates an empty batch. previews may be nil.
func NewBatch(maxCount, minCount int, previews PreviewReleaser) *Batch {
	if maxCount <= 0 {
		maxCount = DefaultMaxCount
	}
	if minCount < 0 || minCount > maxCount {
		minCount = maxCount
	}
	return &Batch{
		photos:   make([]*Photo, 0, maxCount),
		maxCount: maxCount,
		minCount: minCount,
		previews: previews,
	}
}

// MaxCount returns the batch capacity.
func (b *Batch) MaxCount() int { return b.maxCount }

// MinCount returns the number of photos required to submit.
func (b *Batch) MinCount() int { return b.minCount }

// Len returns the number of photos.
func (b *Batch) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.photos)
}

// Room returns how many more photos fit.
func (b *Batch) Room() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.maxCount - len(b.photos)
}

// Photos returns a snapshot of the photos in order.
func (b *Batch) Photos() []Photo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Photo, len(b.photos))
	for i, p := range b.photos {
		out[i] = *p
	}
	return out
}

// Cover returns the cover photo, if any.
func (b *Batch) Cover() (Photo, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, p := range b.photos {
		if p.IsCover {
			return *p, true
		}
	}
	return Photo{}, false
}

// Append adds photos while there is room and returns how many were dropped.
// Dropped photos never get a preview.
func (b *Batch) Append(photos ...*Photo) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	dropped := 0
	for _, p := range photos {
		if len(b.photos) >= b.maxCount {
			dropped++
			continue
		}
		p.IsCover = p.IsCover && !b.hasCoverLocked()
		if b.previews != nil && p.PreviewURL == "" {
			url, err := b.previews.Acquire(p)
			if err != nil {
				log.Printf("Batch: preview for %s failed: %v", p.ID, err)
			}
			p.PreviewURL = url
		}
		b.photos = append(b.photos, p)
	}
	b.ensureCoverLocked()
	return dropped
}

// Remove deletes a photo and releases its preview. If it was the cover, the
// new first photo becomes the cover.
func (b *Batch) Remove(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := b.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrPhotoNotFound, id)
	}
	removed := b.photos[idx]
	last := len(b.photos) - 1
	copy(b.photos[idx:], b.photos[idx+1:])
	b.photos[last] = nil
	b.photos = b.photos[:last]

	if b.previews != nil && removed.PreviewURL != "" {
		b.previews.Release(removed.ID)
		removed.PreviewURL = ""
	}
	b.ensureCoverLocked()
	return nil
}

// SetCover makes id the only cover.
func (b *Batch) SetCover(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := b.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrPhotoNotFound, id)
	}
	for i, p := range b.photos {
		p.IsCover = i == idx
	}
	return nil
}

// Ready reports whether the batch has at least MinCount photos.
func (b *Batch) Ready() bool {
	return b.Shortfall() == 0
}

// Shortfall returns how many photos are still missing before the batch can be submitted.
func (b *Batch) Shortfall() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n := b.minCount - len(b.photos); n > 0 {
		return n
	}
	return 0
}

// Close releases every preview still held by the batch. The photos stay.
func (b *Batch) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.previews == nil {
		return
	}
	for _, p := range b.photos {
		if p.PreviewURL != "" {
			b.previews.Release(p.ID)
			p.PreviewURL = ""
		}
	}
}

func (b *Batch) indexLocked(id string) int {
	for i, p := range b.photos {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (b *Batch) hasCoverLocked() bool {
	for _, p := range b.photos {
		if p.IsCover {
			return true
		}
	}
	return false
}

// ensureCoverLocked makes the first photo the cover when none is marked.
// CALLER MUST HOLD b.mu.Lock()
func (b *Batch) ensureCoverLocked() {
	if len(b.photos) == 0 || b.hasCoverLocked() {
		return
	}
	b.photos[0].IsCover = true
}
