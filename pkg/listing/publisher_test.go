package listing

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/muvahhid/molayeri-sub002/pkg/photo"
)

// MockObjectStore is a mock of storage.ObjectStore.
type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	args := m.Called(ctx, key, body, size, contentType)
	return args.Error(0)
}

func (m *MockObjectStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockObjectStore) URL(key string) string {
	return "https://cdn.test/" + key
}

func newBatch(ids ...string) *photo.Batch {
	b := photo.NewBatch(photo.DefaultMaxCount, photo.DefaultMinCount, nil)
	for _, id := range ids {
		b.Append(&photo.Photo{ID: id, ContentType: photo.ContentTypeJPEG, Data: []byte(id), SizeBytes: len(id)})
	}
	return b
}

func newPublisher() (*Publisher, *MockObjectStore) {
	store := NewStore("")
	store.SetAsyncSave(false)
	objects := new(MockObjectStore)
	return NewPublisher(store, objects), objects
}

func TestSubmit_NotReady(t *testing.T) {
	pub, objects := newPublisher()

	_, err := pub.Submit(context.Background(), "l1", newBatch("a", "b"))
	require.ErrorIs(t, err, ErrNotReady)
	assert.Contains(t, err.Error(), "1 more needed")

	objects.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 0, pub.Store().Count())
}

func TestSubmit_UploadsBatch(t *testing.T) {
	pub, objects := newPublisher()
	objects.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, "image/jpeg").Return(nil)

	l, err := pub.Submit(context.Background(), "l1", newBatch("a", "b", "c"))
	require.NoError(t, err)

	require.Len(t, l.Photos, 3)
	assert.Equal(t, "listings/l1/a.jpg", l.Photos[0].Key)
	assert.Equal(t, "https://cdn.test/listings/l1/a.jpg", l.Photos[0].URL)
	assert.True(t, l.Photos[0].IsCover)
	assert.False(t, l.Photos[1].IsCover)

	objects.AssertNumberOfCalls(t, "Put", 3)
	objects.AssertCalled(t, "Put", mock.Anything, "listings/l1/c.jpg", mock.Anything, int64(1), "image/jpeg")

	stored, ok := pub.Store().Get("l1")
	require.True(t, ok)
	assert.Equal(t, l.Photos, stored.Photos)
}

func TestSubmit_DeletesReplacedObjects(t *testing.T) {
	pub, objects := newPublisher()
	pub.Store().Put(Listing{ID: "l1", Name: "Cafe", Photos: []PhotoRef{
		{ID: "old1", Key: "listings/l1/old1.jpg", IsCover: true},
		{ID: "a", Key: "listings/l1/a.jpg"},
	}})

	objects.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	objects.On("Delete", mock.Anything, "listings/l1/old1.jpg").Return(nil)

	l, err := pub.Submit(context.Background(), "l1", newBatch("a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, "Cafe", l.Name)

	objects.AssertCalled(t, "Delete", mock.Anything, "listings/l1/old1.jpg")
	objects.AssertNotCalled(t, "Delete", mock.Anything, "listings/l1/a.jpg")
}

func TestSubmit_UploadFailureRollsBack(t *testing.T) {
	pub, objects := newPublisher()
	pub.Store().Put(Listing{ID: "l1", Photos: []PhotoRef{{ID: "old", Key: "listings/l1/old.jpg", IsCover: true}}})

	objects.On("Put", mock.Anything, "listings/l1/a.jpg", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	objects.On("Put", mock.Anything, "listings/l1/b.jpg", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("boom"))
	objects.On("Delete", mock.Anything, "listings/l1/a.jpg").Return(nil)

	_, err := pub.Submit(context.Background(), "l1", newBatch("a", "b", "c"))
	require.Error(t, err)

	objects.AssertCalled(t, "Delete", mock.Anything, "listings/l1/a.jpg")
	objects.AssertNotCalled(t, "Delete", mock.Anything, "listings/l1/old.jpg")

	l, _ := pub.Store().Get("l1")
	require.Len(t, l.Photos, 1)
	assert.Equal(t, "old", l.Photos[0].ID)
}

func TestRemovePhoto_PromotesCover(t *testing.T) {
	pub, objects := newPublisher()
	pub.Store().Put(Listing{ID: "l1", Photos: []PhotoRef{
		{ID: "a", Key: "listings/l1/a.jpg", IsCover: true},
		{ID: "b", Key: "listings/l1/b.jpg"},
	}})
	objects.On("Delete", mock.Anything, "listings/l1/a.jpg").Return(nil)

	l, err := pub.RemovePhoto(context.Background(), "l1", "a")
	require.NoError(t, err)
	require.Len(t, l.Photos, 1)
	assert.Equal(t, "b", l.Photos[0].ID)
	assert.True(t, l.Photos[0].IsCover)
	objects.AssertExpectations(t)
}

func TestRemovePhoto_Errors(t *testing.T) {
	pub, _ := newPublisher()
	_, err := pub.RemovePhoto(context.Background(), "missing", "a")
	assert.ErrorIs(t, err, ErrListingNotFound)

	pub.Store().Put(Listing{ID: "l1"})
	_, err = pub.RemovePhoto(context.Background(), "l1", "a")
	assert.ErrorIs(t, err, photo.ErrPhotoNotFound)
}

func TestSetCover(t *testing.T) {
	pub, _ := newPublisher()
	pub.Store().Put(Listing{ID: "l1", Photos: []PhotoRef{{ID: "a", IsCover: true}, {ID: "b"}}})

	l, err := pub.SetCover("l1", "b")
	require.NoError(t, err)
	assert.False(t, l.Photos[0].IsCover)
	assert.True(t, l.Photos[1].IsCover)

	_, err = pub.SetCover("l1", "zzz")
	assert.ErrorIs(t, err, photo.ErrPhotoNotFound)
}

func TestDeleteListing(t *testing.T) {
	pub, objects := newPublisher()
	pub.Store().Put(Listing{ID: "l1", Photos: []PhotoRef{
		{ID: "a", Key: "listings/l1/a.jpg", IsCover: true},
		{ID: "b", Key: "listings/l1/b.jpg"},
	}})
	objects.On("Delete", mock.Anything, "listings/l1/a.jpg").Return(nil)
	objects.On("Delete", mock.Anything, "listings/l1/b.jpg").Return(nil)

	require.NoError(t, pub.DeleteListing(context.Background(), "l1"))
	objects.AssertExpectations(t)

	_, ok := pub.Store().Get("l1")
	assert.False(t, ok)

	err := pub.DeleteListing(context.Background(), "l1")
	assert.ErrorIs(t, err, ErrListingNotFound)
}

func TestDeleteListing_ObjectFailureKeepsRecord(t *testing.T) {
	pub, objects := newPublisher()
	pub.Store().Put(Listing{ID: "l1", Photos: []PhotoRef{
		{ID: "a", Key: "listings/l1/a.jpg", IsCover: true},
		{ID: "b", Key: "listings/l1/b.jpg"},
	}})
	objects.On("Delete", mock.Anything, "listings/l1/a.jpg").Return(errors.New("boom"))
	objects.On("Delete", mock.Anything, "listings/l1/b.jpg").Return(nil)

	err := pub.DeleteListing(context.Background(), "l1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listings/l1/a.jpg")
	objects.AssertNumberOfCalls(t, "Delete", 2)

	l, ok := pub.Store().Get("l1")
	require.True(t, ok)
	assert.Len(t, l.Photos, 2)
}
