// Package storage holds the object stores normalized photos are uploaded to.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ObjectStore is the upload collaborator for normalized photos.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// ErrInvalidKey is returned for keys that could escape the store root.
var ErrInvalidKey = errors.New("invalid object key")

// PhotoKey returns the object key for a listing photo.
func PhotoKey(listingID, photoID string) string {
	return path.Join("listings", listingID, photoID+".jpg")
}

// validateKey ensures the key is a clean relative path.
func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

func joinURL(base, key string) string {
	return strings.TrimSuffix(base, "/") + "/" + key
}
