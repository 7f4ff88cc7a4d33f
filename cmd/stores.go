package cmd

import (
	"context"
	"fmt"

	"github.com/muvahhid/molayeri-sub002/config"
	"github.com/muvahhid/molayeri-sub002/pkg/listing"
	"github.com/muvahhid/molayeri-sub002/pkg/storage"
)

// openObjectStore builds the object store selected by storage.driver.
func openObjectStore(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStore, error) {
	switch cfg.Driver {
	case "s3":
		return storage.NewS3Store(ctx, cfg.S3, cfg.PublicBaseURL)
	case "local", "":
		return storage.NewLocalStore(cfg.LocalDir, cfg.PublicBaseURL)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// openPublisher loads the listing records and wires them to the object store.
func openPublisher(ctx context.Context, cfg config.StorageConfig) (*listing.Publisher, storage.ObjectStore, error) {
	objects, err := openObjectStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	store := listing.NewStore(cfg.RecordsFile)
	if err := store.Load(); err != nil {
		return nil, nil, fmt.Errorf("loading listings from %s: %w", cfg.RecordsFile, err)
	}
	return listing.NewPublisher(store, objects), objects, nil
}
