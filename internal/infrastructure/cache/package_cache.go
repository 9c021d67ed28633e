package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hszk-dev/abrpack/internal/domain/model"
)

// PackageCache defines the interface for caching catalog entries.
// Implementations should handle serialization/deserialization transparently.
type PackageCache interface {
	// Get retrieves a package from cache by ID.
	// Returns nil, nil on a cache miss.
	Get(ctx context.Context, id uuid.UUID) (*model.Package, error)

	// Set stores a package in cache with the specified TTL.
	Set(ctx context.Context, pkg *model.Package, ttl time.Duration) error

	// Delete removes a package from cache by ID.
	// Returns nil if the package was not in cache.
	Delete(ctx context.Context, id uuid.UUID) error
}
