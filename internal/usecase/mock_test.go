package usecase

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hszk-dev/abrpack/internal/domain/model"
	"github.com/hszk-dev/abrpack/internal/domain/repository"
	"github.com/hszk-dev/abrpack/internal/transcoder"
)

// mockPackageRepository provides a configurable mock for PackageRepository.
// Without overrides it behaves as an in-memory catalog.
type mockPackageRepository struct {
	mu       sync.Mutex
	data     map[uuid.UUID]*model.Package
	order    []uuid.UUID
	insertFn func(ctx context.Context, pkg *model.Package) error
	selectFn func(ctx context.Context, filter model.PackageFilter) ([]*model.Package, error)
	findFn   func(ctx context.Context, id uuid.UUID) (*model.Package, error)
	updateFn func(ctx context.Context, id uuid.UUID, upd model.PackageUpdate) error
	deleteFn func(ctx context.Context, id uuid.UUID) (bool, error)
}

func newMockPackageRepository() *mockPackageRepository {
	return &mockPackageRepository{data: make(map[uuid.UUID]*model.Package)}
}

func (m *mockPackageRepository) Insert(ctx context.Context, pkg *model.Package) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, pkg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if pkg.ID == uuid.Nil {
		pkg.ID = uuid.New()
	}
	if _, ok := m.data[pkg.ID]; ok {
		return repository.ErrDuplicatePackage
	}
	if pkg.CreatedAt.IsZero() {
		pkg.CreatedAt = time.Now().UTC()
	}
	cp := *pkg
	m.data[pkg.ID] = &cp
	m.order = append(m.order, pkg.ID)
	return nil
}

func (m *mockPackageRepository) Select(ctx context.Context, filter model.PackageFilter) ([]*model.Package, error) {
	if m.selectFn != nil {
		return m.selectFn(ctx, filter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.Package{}
	for _, id := range m.order {
		if p, ok := m.data[id]; ok && filter.Matches(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockPackageRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Package, error) {
	if m.findFn != nil {
		return m.findFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data[id]
	if !ok {
		return nil, repository.ErrPackageNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockPackageRepository) Update(ctx context.Context, id uuid.UUID, upd model.PackageUpdate) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, upd)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.data[id]; ok {
		upd.Apply(p)
	}
	return nil
}

func (m *mockPackageRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[id]
	delete(m.data, id)
	return ok, nil
}

func (m *mockPackageRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// mockProber returns a fixed probe result unless probeFn is set.
type mockProber struct {
	probeFn func(ctx context.Context, path string) (*transcoder.ProbeResult, error)
}

func (m *mockProber) Probe(ctx context.Context, path string) (*transcoder.ProbeResult, error) {
	if m.probeFn != nil {
		return m.probeFn(ctx, path)
	}
	return &transcoder.ProbeResult{Width: 1280, Height: 720, Duration: 10 * time.Second}, nil
}

// mockRunner provides a configurable mock for Runner.
type mockRunner struct {
	runFn func(ctx context.Context, in transcoder.RunInput, sink transcoder.EventSink) ([]transcoder.Outcome, error)
	calls atomic.Int32
}

func (m *mockRunner) Run(ctx context.Context, in transcoder.RunInput, sink transcoder.EventSink) ([]transcoder.Outcome, error) {
	m.calls.Add(1)
	if m.runFn != nil {
		return m.runFn(ctx, in, sink)
	}
	return nil, nil
}

// mockObjectStorage provides a configurable mock for ObjectStorage.
// Without overrides Exists reports the keys it has received.
type mockObjectStorage struct {
	mu             sync.Mutex
	uploaded       map[string]string
	order          []string
	uploadFn       func(ctx context.Context, key string, reader io.Reader, contentType string) error
	deletePrefixFn func(ctx context.Context, prefix string) error
	existsFn       func(ctx context.Context, key string) (bool, error)
}

func newMockObjectStorage() *mockObjectStorage {
	return &mockObjectStorage{uploaded: make(map[string]string)}
}

func (m *mockObjectStorage) Upload(ctx context.Context, key string, reader io.Reader, contentType string) error {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, key, reader, contentType)
	}
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploaded[key] = contentType
	m.order = append(m.order, key)
	return nil
}

func (m *mockObjectStorage) DeletePrefix(ctx context.Context, prefix string) error {
	if m.deletePrefixFn != nil {
		return m.deletePrefixFn(ctx, prefix)
	}
	return nil
}

func (m *mockObjectStorage) Exists(ctx context.Context, key string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.uploaded[key]
	return ok, nil
}

// mockMessageQueue provides a configurable mock for MessageQueue.
type mockMessageQueue struct {
	publishFn func(ctx context.Context, task repository.IngestTask) error
	consumeFn func(ctx context.Context, handler func(task repository.IngestTask) error) error
	closeFn   func() error
}

func (m *mockMessageQueue) PublishIngestTask(ctx context.Context, task repository.IngestTask) error {
	if m.publishFn != nil {
		return m.publishFn(ctx, task)
	}
	return nil
}

func (m *mockMessageQueue) ConsumeIngestTasks(ctx context.Context, handler func(task repository.IngestTask) error) error {
	if m.consumeFn != nil {
		return m.consumeFn(ctx, handler)
	}
	return nil
}

func (m *mockMessageQueue) Close() error {
	if m.closeFn != nil {
		return m.closeFn()
	}
	return nil
}
