package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/abrpack/internal/api/handler"
	"github.com/hszk-dev/abrpack/internal/api/middleware"
	"github.com/hszk-dev/abrpack/internal/bootstrap"
	"github.com/hszk-dev/abrpack/internal/config"
	"github.com/hszk-dev/abrpack/internal/infrastructure/cache"
	"github.com/hszk-dev/abrpack/internal/infrastructure/queue"
	"github.com/hszk-dev/abrpack/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	checks := make(map[string]handler.Pinger)

	catalog, err := bootstrap.OpenCatalog(ctx, cfg)
	if err != nil {
		return err
	}
	defer catalog.Close()
	checks["catalog"] = catalog.Health
	logger.Info("catalog ready", slog.String("driver", cfg.Catalog.Driver))

	// HLS ingests are always handed to the worker, so the API carries no encoder.
	deps := usecase.PackageServiceDeps{
		Repo:   catalog.Repo,
		Logger: logger,
	}

	storageClient, err := bootstrap.NewStorage(ctx, cfg)
	if err != nil {
		return err
	}
	if storageClient != nil {
		deps.Storage = storageClient
		checks["minio"] = storageClient
		logger.Info("connected to MinIO")
	}

	if cfg.RabbitMQ.Enabled {
		queueClient, err := queue.NewClient(queue.DefaultClientConfig(cfg.RabbitMQ.URL()), logger)
		if err != nil {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		defer queueClient.Close()
		deps.Queue = queueClient
		checks["rabbitmq"] = queueClient
		logger.Info("connected to RabbitMQ")
	}

	svc := usecase.NewPackageService(deps, usecase.PackageServiceConfig{
		OutputRoot:       cfg.Pipeline.OutputRoot,
		KeepFailedOutput: cfg.Pipeline.KeepFailedOutput,
	})

	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		checks["redis"] = pingerFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
		logger.Info("connected to Redis")

		svc = usecase.NewCachedPackageService(svc, cache.NewRedisPackageCache(redisClient), usecase.CachedPackageServiceConfig{
			CacheTTL: cfg.Redis.CacheTTL,
		})
	}

	r := setupRouter(logger, handler.NewPackageHandler(svc), handler.NewHealthHandler(checks))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down server", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func setupRouter(logger *slog.Logger, packages *handler.PackageHandler, health *handler.HealthHandler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Metrics)

	r.Method(http.MethodGet, "/health", health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", packages.Routes)

	return r
}
