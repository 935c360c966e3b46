package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
)

var (
	ErrUnknownBackend = errors.New("unknown storage backend")
	ErrNotFound       = errors.New("object not found")
)

type Storage interface {
	// Put stores data with the given key and returns the storage URL
	Put(ctx context.Context, key string, data []byte) (string, error)
	// Get retrieves data from the given storage URL
	Get(ctx context.Context, url string) ([]byte, error)
	// List returns the storage URLs of the objects directly under prefix
	List(ctx context.Context, prefix string) ([]string, error)
	// Delete removes the object at the given storage URL
	Delete(ctx context.Context, url string) error
}

// New builds the backend named by backend ("file" or "s3"). The file backend
// is rooted at $DIRECTORY and the S3 backend uses $S3_BUCKET.
func New(ctx context.Context, backend string) (Storage, error) {
	switch backend {
	case "file":
		return NewFileStorage(ctx, FileConfig{
			Directory: os.Getenv("DIRECTORY"),
		})
	case "s3":
		return NewS3Storage(ctx, S3Config{
			Bucket: os.Getenv("S3_BUCKET"),
		})
	default:
		return nil, fmt.Errorf("%s: %w", backend, ErrUnknownBackend)
	}
}
