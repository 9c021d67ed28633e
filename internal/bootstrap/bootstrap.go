// Package bootstrap builds the dependencies shared by the api and worker
// binaries from the loaded configuration.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hszk-dev/abrpack/internal/config"
	"github.com/hszk-dev/abrpack/internal/domain/repository"
	"github.com/hszk-dev/abrpack/internal/infrastructure/jsonstore"
	"github.com/hszk-dev/abrpack/internal/infrastructure/postgres"
	"github.com/hszk-dev/abrpack/internal/infrastructure/storage"
	"github.com/hszk-dev/abrpack/internal/transcoder"
)

// Pinger matches the health handler's dependency check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Catalog is an opened package catalog together with its health check.
type Catalog struct {
	Repo   repository.PackageRepository
	Health Pinger
	close  func()
}

// Close releases the catalog's connections, if any.
func (c *Catalog) Close() {
	if c.close != nil {
		c.close()
	}
}

// OpenCatalog opens the backend selected by CATALOG_DRIVER.
func OpenCatalog(ctx context.Context, cfg *config.Config) (*Catalog, error) {
	if cfg.Catalog.Driver == config.CatalogDriverPostgres {
		pgClient, err := postgres.NewClient(ctx, postgres.ClientConfig{
			DSN:             cfg.Database.DSN(),
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		repo := postgres.NewPackageRepository(pgClient.Pool())
		if err := repo.EnsureSchema(ctx); err != nil {
			pgClient.Close()
			return nil, fmt.Errorf("failed to prepare catalog schema: %w", err)
		}
		return &Catalog{Repo: repo, Health: pgClient, close: pgClient.Close}, nil
	}

	store, err := jsonstore.NewPackageStore(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	return &Catalog{Repo: store, Health: store}, nil
}

// NewStorage connects to the MinIO mirror bucket. It returns nil when
// mirroring is disabled.
func NewStorage(ctx context.Context, cfg *config.Config) (*storage.Client, error) {
	if !cfg.MinIO.Enabled {
		return nil, nil
	}
	client, err := storage.NewClient(ctx, storage.ClientConfig{
		Endpoint:  cfg.MinIO.Endpoint,
		AccessKey: cfg.MinIO.AccessKey,
		SecretKey: cfg.MinIO.SecretKey,
		Bucket:    cfg.MinIO.Bucket,
		UseSSL:    cfg.MinIO.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MinIO: %w", err)
	}
	return client, nil
}

// NewOrchestrator builds the rendition runner used by the worker.
func NewOrchestrator(cfg *config.Config, logger *slog.Logger) *transcoder.Orchestrator {
	ffmpegCfg := transcoder.DefaultFFmpegConfig()
	ffmpegCfg.FFmpegPath = cfg.Pipeline.FFmpegPath
	ffmpegCfg.KillGrace = cfg.Pipeline.KillGrace

	return transcoder.NewOrchestrator(
		transcoder.NewFFmpegEncoder(ffmpegCfg, logger),
		transcoder.OrchestratorConfig{
			PoolSize:      cfg.Pipeline.PoolSize,
			EncodeTimeout: cfg.Pipeline.EncodeTimeout,
		},
		logger,
	)
}

// NewProber returns the ffprobe-backed source inspector.
func NewProber(cfg *config.Config) *transcoder.FFprobe {
	return transcoder.NewFFprobe(cfg.Pipeline.FFprobePath)
}
