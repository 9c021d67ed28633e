package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hszk-dev/abrpack/internal/domain/model"
	"github.com/hszk-dev/abrpack/internal/infrastructure/metrics"
	"github.com/redis/go-redis/v9"
)

const (
	// packageCacheKeyPrefix is the prefix for package cache keys in Redis.
	packageCacheKeyPrefix = "package:"
)

// packageJSON is the cached representation of a Package.
// Using explicit struct avoids coupling to domain model's JSON tags.
type packageJSON struct {
	ID           string `json:"id"`
	OriginalName string `json:"original_name"`
	ManifestURL  string `json:"manifest_url"`
	SegmentType  string `json:"segment_type"`
	CreatedAt    string `json:"created_at"`
}

// RedisPackageCache implements PackageCache using Redis as the backing store.
type RedisPackageCache struct {
	client *redis.Client
}

// NewRedisPackageCache creates a new Redis-backed package cache.
func NewRedisPackageCache(client *redis.Client) *RedisPackageCache {
	return &RedisPackageCache{
		client: client,
	}
}

// Get retrieves a package from Redis cache.
// Returns nil, nil on cache miss.
func (c *RedisPackageCache) Get(ctx context.Context, id uuid.UUID) (*model.Package, error) {
	data, err := c.client.Get(ctx, c.buildKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			record(metrics.CacheOpGet, metrics.CacheStatusMiss)
			return nil, nil // Cache miss
		}
		record(metrics.CacheOpGet, metrics.CacheStatusError)
		return nil, fmt.Errorf("redis get: %w", err)
	}

	pkg, err := c.deserialize(data)
	if err != nil {
		record(metrics.CacheOpGet, metrics.CacheStatusError)
		return nil, fmt.Errorf("deserialize package: %w", err)
	}

	record(metrics.CacheOpGet, metrics.CacheStatusHit)
	return pkg, nil
}

// Set stores a package in Redis cache with the specified TTL.
func (c *RedisPackageCache) Set(ctx context.Context, pkg *model.Package, ttl time.Duration) error {
	data, err := json.Marshal(packageJSON{
		ID:           pkg.ID.String(),
		OriginalName: pkg.OriginalName,
		ManifestURL:  pkg.ManifestURL,
		SegmentType:  pkg.SegmentType.String(),
		CreatedAt:    pkg.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("serialize package: %w", err)
	}

	if err := c.client.Set(ctx, c.buildKey(pkg.ID), data, ttl).Err(); err != nil {
		record(metrics.CacheOpSet, metrics.CacheStatusError)
		return fmt.Errorf("redis set: %w", err)
	}

	record(metrics.CacheOpSet, metrics.CacheStatusSuccess)
	return nil
}

// Delete removes a package from Redis cache.
func (c *RedisPackageCache) Delete(ctx context.Context, id uuid.UUID) error {
	if err := c.client.Del(ctx, c.buildKey(id)).Err(); err != nil {
		record(metrics.CacheOpDelete, metrics.CacheStatusError)
		return fmt.Errorf("redis del: %w", err)
	}

	record(metrics.CacheOpDelete, metrics.CacheStatusSuccess)
	return nil
}

func record(op, status string) {
	metrics.CacheOperationsTotal.WithLabelValues(op, status, metrics.CacheTypeRedis).Inc()
}

// buildKey constructs the Redis key for a package.
func (c *RedisPackageCache) buildKey(id uuid.UUID) string {
	return packageCacheKeyPrefix + id.String()
}

func (c *RedisPackageCache) deserialize(data []byte) (*model.Package, error) {
	var v packageJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(v.ID)
	if err != nil {
		return nil, fmt.Errorf("parse package ID: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, v.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &model.Package{
		ID:           id,
		OriginalName: v.OriginalName,
		ManifestURL:  v.ManifestURL,
		SegmentType:  model.SegmentType(v.SegmentType),
		CreatedAt:    createdAt,
	}, nil
}

// Compile-time verification that RedisPackageCache implements PackageCache.
var _ PackageCache = (*RedisPackageCache)(nil)
