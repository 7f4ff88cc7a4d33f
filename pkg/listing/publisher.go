package listing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/muvahhid/molayeri-sub002/pkg/photo"
	"github.com/muvahhid/molayeri-sub002/pkg/storage"
	"github.com/muvahhid/molayeri-sub002/util/log"
)

var (
	// ErrNotReady is returned when a batch has fewer photos than its minimum.
	ErrNotReady = errors.New("not enough photos to submit")
	// ErrListingNotFound is returned for unknown listing IDs.
	ErrListingNotFound = errors.New("listing not found")
)

// Publisher uploads draft batches and keeps listing records in step with the
// object store.
type Publisher struct {
	store   *Store
	objects storage.ObjectStore
}

// NewPublisher creates a Publisher.
func NewPublisher(store *Store, objects storage.ObjectStore) *Publisher {
	return &Publisher{store: store, objects: objects}
}

// Store returns the listing store.
func (p *Publisher) Store() *Store {
	return p.store
}

// Submit uploads every photo of b and makes them the listing's photos. A
// batch below its minimum is refused before anything is uploaded. If an
// upload fails, objects uploaded by this call are removed and the listing is
// left unchanged. Objects of replaced photos are deleted after the record is
// updated.
func (p *Publisher) Submit(ctx context.Context, listingID string, b *photo.Batch) (Listing, error) {
	if n := b.Shortfall(); n > 0 {
		return Listing{}, fmt.Errorf("%w: %d more needed (minimum %d)", ErrNotReady, n, b.MinCount())
	}

	l, ok := p.store.Get(listingID)
	if !ok {
		l = Listing{ID: listingID}
	}

	photos := b.Photos()
	refs := make([]PhotoRef, 0, len(photos))
	for _, ph := range photos {
		key := storage.PhotoKey(listingID, ph.ID)
		if err := p.objects.Put(ctx, key, bytes.NewReader(ph.Data), int64(len(ph.Data)), ph.ContentType); err != nil {
			p.rollback(refs)
			return Listing{}, fmt.Errorf("uploading photo %s: %w", ph.ID, err)
		}
		refs = append(refs, PhotoRef{
			ID:        ph.ID,
			Key:       key,
			URL:       p.objects.URL(key),
			SizeBytes: ph.SizeBytes,
			IsCover:   ph.IsCover,
		})
	}

	keep := make(map[string]bool, len(refs))
	for _, r := range refs {
		keep[r.Key] = true
	}
	replaced := l.Photos

	l.Photos = refs
	l.UpdatedAt = time.Now().UTC()
	p.store.Put(l)

	for _, r := range replaced {
		if keep[r.Key] {
			continue
		}
		if err := p.objects.Delete(ctx, r.Key); err != nil {
			log.Printf("Publisher: failed to delete replaced object %s: %v", r.Key, err)
		}
	}

	log.Printf("Publisher: listing %s now has %d photos", listingID, len(refs))
	return l, nil
}

// rollback removes objects uploaded by a failed Submit.
func (p *Publisher) rollback(refs []PhotoRef) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, r := range refs {
		if err := p.objects.Delete(ctx, r.Key); err != nil {
			log.Printf("Publisher: rollback of %s failed: %v", r.Key, err)
		}
	}
}

// RemovePhoto deletes a published photo. When it was the cover, the first
// remaining photo becomes the cover.
func (p *Publisher) RemovePhoto(ctx context.Context, listingID, photoID string) (Listing, error) {
	l, ok := p.store.Get(listingID)
	if !ok {
		return Listing{}, fmt.Errorf("%w: %s", ErrListingNotFound, listingID)
	}

	idx := indexOf(l.Photos, photoID)
	if idx < 0 {
		return Listing{}, fmt.Errorf("%w: %s", photo.ErrPhotoNotFound, photoID)
	}
	removed := l.Photos[idx]
	l.Photos = append(l.Photos[:idx], l.Photos[idx+1:]...)
	if removed.IsCover && len(l.Photos) > 0 {
		l.Photos[0].IsCover = true
	}
	l.UpdatedAt = time.Now().UTC()
	p.store.Put(l)

	if err := p.objects.Delete(ctx, removed.Key); err != nil {
		log.Printf("Publisher: failed to delete object %s: %v", removed.Key, err)
	}
	return l, nil
}

// SetCover makes photoID the only cover of a published listing.
func (p *Publisher) SetCover(listingID, photoID string) (Listing, error) {
	l, ok := p.store.Get(listingID)
	if !ok {
		return Listing{}, fmt.Errorf("%w: %s", ErrListingNotFound, listingID)
	}
	idx := indexOf(l.Photos, photoID)
	if idx < 0 {
		return Listing{}, fmt.Errorf("%w: %s", photo.ErrPhotoNotFound, photoID)
	}
	for i := range l.Photos {
		l.Photos[i].IsCover = i == idx
	}
	l.UpdatedAt = time.Now().UTC()
	p.store.Put(l)
	return l, nil
}

// DeleteListing removes every object of a published listing and then its
// record. When an object delete fails the record is kept so the call can be
// retried.
func (p *Publisher) DeleteListing(ctx context.Context, listingID string) error {
	l, ok := p.store.Get(listingID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrListingNotFound, listingID)
	}

	var errs []error
	for _, r := range l.Photos {
		if err := p.objects.Delete(ctx, r.Key); err != nil {
			errs = append(errs, fmt.Errorf("deleting object %s: %w", r.Key, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	p.store.Delete(listingID)
	log.Printf("Publisher: listing %s deleted with %d photos", listingID, len(l.Photos))
	return nil
}

func indexOf(refs []PhotoRef, id string) int {
	for i, r := range refs {
		if r.ID == id {
			return i
		}
	}
	return -1
}
