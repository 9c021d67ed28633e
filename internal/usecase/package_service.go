package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hszk-dev/abrpack/internal/domain/model"
	"github.com/hszk-dev/abrpack/internal/domain/repository"
	"github.com/hszk-dev/abrpack/internal/infrastructure/metrics"
	"github.com/hszk-dev/abrpack/internal/transcoder"
)

// IngestInput describes a source file to package.
type IngestInput struct {
	// ID is honoured when set, so that an id handed out by Enqueue is kept.
	ID           uuid.UUID
	InputPath    string
	OriginalName string
	Mode         model.SegmentType
	// OnEvent receives encoder lifecycle events. Optional.
	OnEvent transcoder.EventSink
}

// PackageService defines the interface for packaging and catalog operations.
type PackageService interface {
	// IngestAndPackage turns the input into a catalog entry, either by storing
	// the source as-is or by producing an HLS ladder and master playlist.
	// The input file is released only after the catalog entry is committed.
	IngestAndPackage(ctx context.Context, input IngestInput) (*model.Package, error)

	// Enqueue hands an HLS ingest to the worker and returns the allocated id.
	Enqueue(ctx context.Context, input IngestInput) (uuid.UUID, error)

	// GetPackage returns repository.ErrPackageNotFound if the package does not exist.
	GetPackage(ctx context.Context, id uuid.UUID) (*model.Package, error)

	ListPackages(ctx context.Context, filter model.PackageFilter) ([]*model.Package, error)

	// UpdatePackage merges the set fields. A missing id is a no-op.
	UpdatePackage(ctx context.Context, id uuid.UUID, upd model.PackageUpdate) error

	// DeletePackage removes the record and its artifacts. It reports false for
	// an unknown id. When the record was removed but its files were not, it
	// returns true together with an *ArtifactCleanupError.
	DeletePackage(ctx context.Context, id uuid.UUID) (bool, error)
}

// Runner runs a rendition plan. *transcoder.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, in transcoder.RunInput, sink transcoder.EventSink) ([]transcoder.Outcome, error)
}

// PackageServiceConfig holds configuration for PackageService.
type PackageServiceConfig struct {
	// OutputRoot holds uploads/ and hls/.
	OutputRoot string
	// Ladder is the rendition ladder; nil means transcoder.DefaultLadder.
	Ladder []transcoder.Rendition
	// KeepFailedOutput leaves a failed run's output directory on disk.
	KeepFailedOutput bool
}

// DefaultPackageServiceConfig returns the default configuration.
func DefaultPackageServiceConfig() PackageServiceConfig {
	return PackageServiceConfig{
		OutputRoot: "data",
		Ladder:     transcoder.DefaultLadder(),
	}
}

type packageService struct {
	repo    repository.PackageRepository
	prober  transcoder.Prober
	runner  Runner
	storage repository.ObjectStorage
	queue   repository.MessageQueue
	logger  *slog.Logger
	locks   *keyedMutex
	// removeAll deletes artifacts; swapped in tests.
	removeAll func(path string) error

	outputRoot       string
	ladder           []transcoder.Rendition
	keepFailedOutput bool
}

// PackageServiceDeps groups the collaborators of PackageService.
// Storage and Queue are optional. Prober and Runner are only needed by a
// process that packages HLS itself; without them HLS ingests fail with
// ErrEncoderUnavailable.
type PackageServiceDeps struct {
	Repo    repository.PackageRepository
	Prober  transcoder.Prober
	Runner  Runner
	Storage repository.ObjectStorage
	Queue   repository.MessageQueue
	Logger  *slog.Logger
}

// NewPackageService creates a new PackageService instance.
func NewPackageService(deps PackageServiceDeps, cfg PackageServiceConfig) PackageService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ladder := cfg.Ladder
	if len(ladder) == 0 {
		ladder = transcoder.DefaultLadder()
	}
	return &packageService{
		repo:             deps.Repo,
		prober:           deps.Prober,
		runner:           deps.Runner,
		storage:          deps.Storage,
		queue:            deps.Queue,
		logger:           logger,
		locks:            newKeyedMutex(),
		removeAll:        os.RemoveAll,
		outputRoot:       cfg.OutputRoot,
		ladder:           ladder,
		keepFailedOutput: cfg.KeepFailedOutput,
	}
}

func validateIngest(input IngestInput) error {
	if !input.Mode.IsValid() {
		return fmt.Errorf("%w: %q", model.ErrInvalidSegmentType, input.Mode)
	}
	if err := model.ValidateOriginalName(input.OriginalName); err != nil {
		return err
	}
	return checkInput(input.InputPath)
}

// IngestAndPackage runs the packaging pipeline for one source file.
func (s *packageService) IngestAndPackage(ctx context.Context, input IngestInput) (*model.Package, error) {
	if err := validateIngest(input); err != nil {
		return nil, err
	}

	id := input.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	logger := s.logger.With("package_id", id, "segment_type", input.Mode)
	start := time.Now()

	pkg, err := s.ingest(ctx, id, input, logger)

	metrics.PipelineRunsTotal.WithLabelValues(input.Mode.String(), pipelineResult(err)).Inc()

	if err != nil {
		logger.Error("packaging failed",
			"input_path", input.InputPath,
			"elapsed", time.Since(start),
			"error", err,
		)
		return nil, err
	}

	logger.Info("package ready",
		"manifest_url", pkg.ManifestURL,
		"elapsed", time.Since(start),
	)
	return pkg, nil
}

// ingest runs with the id lock held. An id that is already catalogued is
// rejected before anything on disk is touched, so a redelivered task cannot
// overwrite or remove a live package.
func (s *packageService) ingest(ctx context.Context, id uuid.UUID, input IngestInput, logger *slog.Logger) (*model.Package, error) {
	if input.Mode.IsHLS() && (s.prober == nil || s.runner == nil) {
		return nil, ErrEncoderUnavailable
	}
	if err := s.ensureAbsent(ctx, id); err != nil {
		return nil, err
	}
	if input.Mode == model.SegmentOriginal {
		return s.storeOriginal(ctx, id, input)
	}
	return s.packageHLS(ctx, id, input, logger)
}

func (s *packageService) ensureAbsent(ctx context.Context, id uuid.UUID) error {
	_, err := s.repo.FindByID(ctx, id)
	metrics.CatalogOperationsTotal.WithLabelValues(metrics.CatalogOpFind, metrics.CatalogStatus(err)).Inc()
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", repository.ErrDuplicatePackage, id)
	case errors.Is(err, repository.ErrPackageNotFound):
		return nil
	default:
		return catalogError("find package", err)
	}
}

func pipelineResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case errors.Is(err, transcoder.ErrEncode):
		return metrics.ResultFailure
	case errors.Is(err, transcoder.ErrCancelled):
		return metrics.ResultCancelled
	default:
		return metrics.ResultFailure
	}
}

// storeOriginal moves the source to <root>/uploads/<id><ext> and records it.
func (s *packageService) storeOriginal(ctx context.Context, id uuid.UUID, input IngestInput) (*model.Package, error) {
	ext := strings.ToLower(filepath.Ext(input.InputPath))
	name := id.String() + ext
	dest := filepath.Join(s.outputRoot, uploadsDir, name)

	if err := moveFile(input.InputPath, dest); err != nil {
		return nil, fmt.Errorf("store original: %w", err)
	}

	pkg := &model.Package{
		ID:           id,
		OriginalName: input.OriginalName,
		ManifestURL:  "/" + path.Join(uploadsDir, name),
		SegmentType:  model.SegmentOriginal,
	}

	if err := s.insert(ctx, pkg); err != nil {
		if mvErr := moveFile(dest, input.InputPath); mvErr != nil {
			s.logger.Warn("failed to restore input after catalog failure",
				"package_id", id,
				"input_path", input.InputPath,
				"error", mvErr,
			)
		}
		return nil, err
	}
	return pkg, nil
}

// packageHLS probes, plans, encodes and writes the master playlist, then
// commits the catalog entry and releases the input.
func (s *packageService) packageHLS(ctx context.Context, id uuid.UUID, input IngestInput, logger *slog.Logger) (_ *model.Package, err error) {
	probe, err := s.prober.Probe(ctx, input.InputPath)
	if err != nil {
		return nil, err
	}

	plan, err := transcoder.Plan(probe.Width, probe.Height, s.ladder)
	if err != nil {
		return nil, fmt.Errorf("plan %dx%d source: %w", probe.Width, probe.Height, err)
	}

	outputDir := hlsOutputDir(s.outputRoot, id)
	if _, statErr := os.Stat(outputDir); statErr == nil {
		// Left behind by an earlier run; never removed on failure here.
		logger.Warn("output directory already exists", "output_dir", outputDir)
	} else {
		defer func() {
			if err != nil {
				s.cleanupFailedOutput(outputDir, logger)
			}
		}()
	}

	mode := transcoder.ContainerMode(input.Mode)
	logger.Info("encoding renditions",
		"renditions", len(plan),
		"source", fmt.Sprintf("%dx%d", probe.Width, probe.Height),
		"duration", probe.Duration,
	)

	outcomes, err := s.runner.Run(ctx, transcoder.RunInput{
		InputPath:  input.InputPath,
		OutputDir:  outputDir,
		Renditions: plan,
		Mode:       mode,
		Duration:   probe.Duration,
	}, input.OnEvent)
	recordOutcomes(outcomes)
	if err != nil {
		return nil, err
	}

	if _, err := transcoder.WriteMasterPlaylist(outputDir, outcomes, mode); err != nil {
		return nil, err
	}

	if s.storage != nil {
		if err := s.mirrorDir(ctx, outputDir, storagePrefix(id)); err != nil {
			logger.Warn("failed to mirror package to object storage", "error", err)
		}
	}

	pkg := &model.Package{
		ID:           id,
		OriginalName: input.OriginalName,
		ManifestURL:  hlsManifestURL(id),
		SegmentType:  input.Mode,
	}
	if err := s.insert(ctx, pkg); err != nil {
		return nil, err
	}

	if err := os.Remove(input.InputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to release input file",
			"input_path", input.InputPath,
			"error", err,
		)
	}
	return pkg, nil
}

func recordOutcomes(outcomes []transcoder.Outcome) {
	for _, oc := range outcomes {
		metrics.RenditionEncodesTotal.WithLabelValues(oc.Rendition.Label, string(oc.Status)).Inc()
		if oc.Elapsed > 0 {
			metrics.RenditionEncodeDuration.WithLabelValues(oc.Rendition.Label).Observe(oc.Elapsed.Seconds())
		}
	}
}

func (s *packageService) cleanupFailedOutput(outputDir string, logger *slog.Logger) {
	if s.keepFailedOutput {
		logger.Info("keeping failed output", "output_dir", outputDir)
		return
	}
	if err := os.RemoveAll(outputDir); err != nil {
		logger.Warn("failed to remove failed output",
			"output_dir", outputDir,
			"error", err,
		)
	}
}

func (s *packageService) insert(ctx context.Context, pkg *model.Package) error {
	err := s.repo.Insert(ctx, pkg)
	metrics.CatalogOperationsTotal.WithLabelValues(metrics.CatalogOpInsert, metrics.CatalogStatus(err)).Inc()
	if err != nil {
		return catalogError("insert package", err)
	}
	return nil
}

// Enqueue validates the input, allocates an id and publishes an ingest task.
func (s *packageService) Enqueue(ctx context.Context, input IngestInput) (uuid.UUID, error) {
	if s.queue == nil {
		return uuid.Nil, ErrQueueUnavailable
	}
	if err := validateIngest(input); err != nil {
		return uuid.Nil, err
	}

	id := input.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	task := repository.IngestTask{
		PackageID:    id,
		InputPath:    input.InputPath,
		OriginalName: input.OriginalName,
		SegmentType:  input.Mode,
	}
	if err := s.queue.PublishIngestTask(ctx, task); err != nil {
		return uuid.Nil, fmt.Errorf("publish ingest task: %w", err)
	}

	s.logger.Info("ingest task enqueued",
		"package_id", id,
		"segment_type", input.Mode,
	)
	return id, nil
}

// GetPackage retrieves a catalog entry by ID.
func (s *packageService) GetPackage(ctx context.Context, id uuid.UUID) (*model.Package, error) {
	pkg, err := s.repo.FindByID(ctx, id)
	metrics.CatalogOperationsTotal.WithLabelValues(metrics.CatalogOpFind, metrics.CatalogStatus(err)).Inc()
	if err != nil {
		if errors.Is(err, repository.ErrPackageNotFound) {
			return nil, err
		}
		return nil, catalogError("find package", err)
	}
	return pkg, nil
}

// ListPackages returns the entries matching filter, oldest first.
func (s *packageService) ListPackages(ctx context.Context, filter model.PackageFilter) ([]*model.Package, error) {
	pkgs, err := s.repo.Select(ctx, filter)
	metrics.CatalogOperationsTotal.WithLabelValues(metrics.CatalogOpSelect, metrics.CatalogStatus(err)).Inc()
	if err != nil {
		return nil, catalogError("select packages", err)
	}
	return pkgs, nil
}

// UpdatePackage merges upd into the stored entry.
func (s *packageService) UpdatePackage(ctx context.Context, id uuid.UUID, upd model.PackageUpdate) error {
	if err := upd.Validate(); err != nil {
		return err
	}
	if upd.IsEmpty() {
		return nil
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	err := s.repo.Update(ctx, id, upd)
	metrics.CatalogOperationsTotal.WithLabelValues(metrics.CatalogOpUpdate, metrics.CatalogStatus(err)).Inc()
	if err != nil {
		return catalogError("update package", err)
	}
	return nil
}

// DeletePackage removes a package's artifacts and its catalog entry.
// It waits for a pipeline running under the same id to finish.
func (s *packageService) DeletePackage(ctx context.Context, id uuid.UUID) (bool, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	pkg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrPackageNotFound) {
			return false, nil
		}
		return false, catalogError("find package", err)
	}

	logger := s.logger.With("package_id", id, "segment_type", pkg.SegmentType)

	cleanupErr := s.removeArtifacts(pkg)

	removed, err := s.repo.Delete(ctx, id)
	metrics.CatalogOperationsTotal.WithLabelValues(metrics.CatalogOpDelete, metrics.CatalogStatus(err)).Inc()
	if err != nil {
		return false, catalogError("delete package", err)
	}

	if s.storage != nil && pkg.SegmentType.IsHLS() {
		if err := s.storage.DeletePrefix(ctx, storagePrefix(id)); err != nil {
			logger.Warn("failed to delete mirrored package", "error", err)
		}
	}

	if cleanupErr != nil {
		logger.Error("package deleted but artifacts remain", "error", cleanupErr)
		return removed, cleanupErr
	}

	logger.Info("package deleted")
	return removed, nil
}

// removeArtifacts deletes the files of pkg, located from its id and segment
// type alone. Missing files are not an error.
func (s *packageService) removeArtifacts(pkg *model.Package) error {
	if pkg.SegmentType.IsHLS() {
		dir := hlsOutputDir(s.outputRoot, pkg.ID)
		if err := s.removeAll(dir); err != nil {
			return &ArtifactCleanupError{ID: pkg.ID, Path: dir, Err: err}
		}
		return nil
	}

	paths, err := originalArtifacts(s.outputRoot, pkg.ID)
	if err != nil {
		return &ArtifactCleanupError{ID: pkg.ID, Path: filepath.Join(s.outputRoot, uploadsDir), Err: err}
	}
	var errs []error
	for _, p := range paths {
		if err := s.removeAll(p); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &ArtifactCleanupError{
			ID:   pkg.ID,
			Path: filepath.Join(s.outputRoot, uploadsDir, pkg.ID.String()),
			Err:  errors.Join(errs...),
		}
	}
	return nil
}
