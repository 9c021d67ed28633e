package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hszk-dev/abrpack/internal/domain/model"
	"github.com/hszk-dev/abrpack/internal/infrastructure/cache"
	"github.com/hszk-dev/abrpack/internal/infrastructure/metrics"
	"golang.org/x/sync/singleflight"
)

// CachedPackageServiceConfig holds configuration for CachedPackageService.
type CachedPackageServiceConfig struct {
	// CacheTTL is the TTL for cached catalog entries.
	CacheTTL time.Duration
}

// DefaultCachedPackageServiceConfig returns the default configuration.
func DefaultCachedPackageServiceConfig() CachedPackageServiceConfig {
	return CachedPackageServiceConfig{
		CacheTTL: 5 * time.Minute,
	}
}

// cachedPackageService wraps PackageService with a read-through cache for GetPackage.
type cachedPackageService struct {
	delegate PackageService
	cache    cache.PackageCache
	sfGroup  singleflight.Group

	cacheTTL time.Duration
}

// NewCachedPackageService creates a new CachedPackageService wrapping the provided PackageService.
func NewCachedPackageService(
	delegate PackageService,
	packageCache cache.PackageCache,
	cfg CachedPackageServiceConfig,
) PackageService {
	return &cachedPackageService{
		delegate: delegate,
		cache:    packageCache,
		cacheTTL: cfg.CacheTTL,
	}
}

func (s *cachedPackageService) IngestAndPackage(ctx context.Context, input IngestInput) (*model.Package, error) {
	return s.delegate.IngestAndPackage(ctx, input)
}

func (s *cachedPackageService) Enqueue(ctx context.Context, input IngestInput) (uuid.UUID, error) {
	return s.delegate.Enqueue(ctx, input)
}

func (s *cachedPackageService) ListPackages(ctx context.Context, filter model.PackageFilter) ([]*model.Package, error) {
	return s.delegate.ListPackages(ctx, filter)
}

// UpdatePackage invalidates the entry after the catalog accepted the change.
func (s *cachedPackageService) UpdatePackage(ctx context.Context, id uuid.UUID, upd model.PackageUpdate) error {
	if err := s.delegate.UpdatePackage(ctx, id, upd); err != nil {
		return err
	}
	s.invalidate(ctx, id, "update")
	return nil
}

// DeletePackage invalidates the entry whenever the record may be gone,
// including when artifact cleanup failed.
func (s *cachedPackageService) DeletePackage(ctx context.Context, id uuid.UUID) (bool, error) {
	removed, err := s.delegate.DeletePackage(ctx, id)
	if removed {
		s.invalidate(ctx, id, "delete")
	}
	return removed, err
}

// GetPackage retrieves a package with caching.
// Uses singleflight to prevent cache stampede on concurrent requests for the same package.
func (s *cachedPackageService) GetPackage(ctx context.Context, id uuid.UUID) (*model.Package, error) {
	result, err, shared := s.sfGroup.Do(id.String(), func() (any, error) {
		return s.getPackageWithCache(ctx, id)
	})

	if shared {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightShared).Inc()
	} else {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightInitiated).Inc()
	}

	if err != nil {
		return nil, err
	}

	// Copy so callers cannot mutate a result shared with other waiters.
	pkg := *result.(*model.Package)
	return &pkg, nil
}

// getPackageWithCache implements the cache-aside pattern.
func (s *cachedPackageService) getPackageWithCache(ctx context.Context, id uuid.UUID) (*model.Package, error) {
	pkg, err := s.cache.Get(ctx, id)
	if err != nil {
		slog.Warn("cache get failed, falling back to catalog",
			"package_id", id,
			"error", err,
		)
	}

	if pkg != nil {
		return pkg, nil
	}

	pkg, err = s.delegate.GetPackage(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, pkg, s.cacheTTL); err != nil {
		slog.Warn("failed to cache package",
			"package_id", id,
			"error", err,
		)
	}

	return pkg, nil
}

func (s *cachedPackageService) invalidate(ctx context.Context, id uuid.UUID, op string) {
	if err := s.cache.Delete(ctx, id); err != nil {
		// Non-critical: the entry expires after CacheTTL.
		slog.Warn("failed to invalidate cache",
			"package_id", id,
			"operation", op,
			"error", err,
		)
	}
}
