package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hszk-dev/abrpack/internal/api/handler"
	"github.com/hszk-dev/abrpack/internal/bootstrap"
	"github.com/hszk-dev/abrpack/internal/config"
	"github.com/hszk-dev/abrpack/internal/domain/repository"
	"github.com/hszk-dev/abrpack/internal/infrastructure/queue"
	"github.com/hszk-dev/abrpack/internal/transcoder"
	"github.com/hszk-dev/abrpack/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// consumeCtx stops intake on shutdown; runCtx is cancelled only after the
	// grace period so in-flight encodes can finish.
	consumeCtx, stopConsuming := context.WithCancel(context.Background())
	defer stopConsuming()
	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	if !cfg.RabbitMQ.Enabled {
		return errors.New("worker requires RABBITMQ_ENABLED=true")
	}

	checks := make(map[string]handler.Pinger)

	catalog, err := bootstrap.OpenCatalog(runCtx, cfg)
	if err != nil {
		return err
	}
	defer catalog.Close()
	checks["catalog"] = catalog.Health
	logger.Info("catalog ready", slog.String("driver", cfg.Catalog.Driver))

	deps := usecase.PackageServiceDeps{
		Repo:   catalog.Repo,
		Prober: bootstrap.NewProber(cfg),
		Runner: bootstrap.NewOrchestrator(cfg, logger),
		Logger: logger,
	}

	storageClient, err := bootstrap.NewStorage(runCtx, cfg)
	if err != nil {
		return err
	}
	if storageClient != nil {
		deps.Storage = storageClient
		checks["minio"] = storageClient
		logger.Info("connected to MinIO")
	}

	queueClient, err := queue.NewClient(queue.DefaultClientConfig(cfg.RabbitMQ.URL()), logger)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer queueClient.Close()
	checks["rabbitmq"] = queueClient
	logger.Info("connected to RabbitMQ")

	svc := usecase.NewPackageService(deps, usecase.PackageServiceConfig{
		OutputRoot:       cfg.Pipeline.OutputRoot,
		KeepFailedOutput: cfg.Pipeline.KeepFailedOutput,
	})

	if cfg.Worker.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.Handler())
		mux.Handle("GET /health", handler.NewHealthHandler(checks))
		metricsSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
		defer metricsSrv.Close()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// WaitGroup to track in-flight tasks
	var wg sync.WaitGroup

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting worker, consuming ingest tasks")
		err := queueClient.ConsumeIngestTasks(consumeCtx, func(task repository.IngestTask) error {
			wg.Add(1)
			defer wg.Done()
			return processTask(runCtx, svc, task, logger)
		})
		if err != nil && consumeCtx.Err() == nil {
			errCh <- fmt.Errorf("consumer error: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down worker", slog.String("signal", sig.String()))
	}

	stopConsuming()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("all in-flight tasks completed")
	case <-time.After(cfg.Worker.ShutdownTimeout):
		logger.Warn("shutdown timeout exceeded, cancelling in-flight encodes")
		cancelRuns()
		<-done
	}

	logger.Info("worker stopped")
	return nil
}

func processTask(ctx context.Context, svc usecase.PackageService, task repository.IngestTask, logger *slog.Logger) error {
	taskLogger := logger.With(
		slog.String("package_id", task.PackageID.String()),
		slog.String("segment_type", task.SegmentType.String()),
	)
	taskLogger.Info("processing task", slog.String("input_path", task.InputPath))

	pkg, err := svc.IngestAndPackage(ctx, usecase.IngestInput{
		ID:           task.PackageID,
		InputPath:    task.InputPath,
		OriginalName: task.OriginalName,
		Mode:         task.SegmentType,
		OnEvent: func(ev transcoder.Event) {
			switch ev.Type {
			case transcoder.EventProgress:
				taskLogger.Debug("encode progress",
					slog.String("rendition", ev.Label),
					slog.Float64("percent", ev.Percent),
					slog.Float64("speed", ev.Speed),
				)
			case transcoder.EventError:
				taskLogger.Warn("rendition failed",
					slog.String("rendition", ev.Label),
					slog.Any("error", ev.Err),
				)
			default:
				taskLogger.Debug("encode "+string(ev.Type), slog.String("rendition", ev.Label))
			}
		},
	})
	if err != nil {
		return err
	}

	taskLogger.Info("task completed successfully", slog.String("manifest_url", pkg.ManifestURL))
	return nil
}
