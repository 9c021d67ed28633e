package repository

import (
	"context"
	"io"
)

// ObjectStorage mirrors finished packages to a bucket.
// Implementations should be provided by the infrastructure layer (e.g., MinIO, S3).
type ObjectStorage interface {
	// Upload stores an object under key.
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) error

	// DeletePrefix removes every object whose key starts with prefix.
	// A prefix with no objects is not an error.
	DeletePrefix(ctx context.Context, prefix string) error

	// Exists checks if an object exists in the storage.
	Exists(ctx context.Context, key string) (bool, error)
}
