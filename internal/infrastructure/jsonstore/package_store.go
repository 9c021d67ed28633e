// Package jsonstore is a single-file catalog for deployments without PostgreSQL.
package jsonstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/hszk-dev/abrpack/internal/domain/model"
	"github.com/hszk-dev/abrpack/internal/domain/repository"
)

const lockRetryDelay = 50 * time.Millisecond

type record struct {
	ID           uuid.UUID `json:"id"`
	OriginalName string    `json:"originalName"`
	ManifestURL  string    `json:"manifestUrl"`
	SegmentType  string    `json:"segmentType"`
	CreatedAt    time.Time `json:"createdAt"`
}

type document struct {
	Packages []record `json:"packages"`
}

// PackageStore implements repository.PackageRepository on top of one JSON file.
// The mutex serialises callers in this process and the file lock serialises processes
// sharing the file, so the API and worker may point at the same catalog.
type PackageStore struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

// NewPackageStore opens the catalog at path, creating its directory if needed.
// The file itself is created on the first write.
func NewPackageStore(path string) (*PackageStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create catalog directory: %w", err)
	}
	return &PackageStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}, nil
}

// Insert appends a package, assigning an ID and creation time when unset.
// pkg is only updated once the record has been persisted.
func (s *PackageStore) Insert(ctx context.Context, pkg *model.Package) error {
	stored := *pkg
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	err := s.mutate(ctx, func(doc *document) (bool, error) {
		if doc.index(stored.ID) >= 0 {
			return false, repository.ErrDuplicatePackage
		}
		doc.Packages = append(doc.Packages, toRecord(&stored))
		return true, nil
	})
	if err != nil {
		return err
	}

	pkg.ID = stored.ID
	pkg.CreatedAt = stored.CreatedAt
	return nil
}

// Select returns the packages matching filter in insertion order.
func (s *PackageStore) Select(ctx context.Context, filter model.PackageFilter) ([]*model.Package, error) {
	var out []*model.Package
	err := s.read(ctx, func(doc *document) {
		out = make([]*model.Package, 0, len(doc.Packages))
		for _, r := range doc.Packages {
			pkg := r.toModel()
			if filter.Matches(pkg) {
				out = append(out, pkg)
			}
		}
	})
	return out, err
}

// FindByID returns repository.ErrPackageNotFound if the package does not exist.
func (s *PackageStore) FindByID(ctx context.Context, id uuid.UUID) (*model.Package, error) {
	var pkg *model.Package
	err := s.read(ctx, func(doc *document) {
		if i := doc.index(id); i >= 0 {
			pkg = doc.Packages[i].toModel()
		}
	})
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, repository.ErrPackageNotFound
	}
	return pkg, nil
}

// Update merges the set fields of upd. A missing ID is a no-op.
func (s *PackageStore) Update(ctx context.Context, id uuid.UUID, upd model.PackageUpdate) error {
	return s.mutate(ctx, func(doc *document) (bool, error) {
		i := doc.index(id)
		if i < 0 || upd.IsEmpty() {
			return false, nil
		}
		pkg := doc.Packages[i].toModel()
		upd.Apply(pkg)
		doc.Packages[i] = toRecord(pkg)
		return true, nil
	})
}

// Delete removes a package and reports whether it existed.
func (s *PackageStore) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	var removed bool
	err := s.mutate(ctx, func(doc *document) (bool, error) {
		i := doc.index(id)
		if i < 0 {
			return false, nil
		}
		doc.Packages = slices.Delete(doc.Packages, i, i+1)
		removed = true
		return true, nil
	})
	return removed, err
}

// Ping reports whether the catalog file is readable.
func (s *PackageStore) Ping(ctx context.Context) error {
	return s.read(ctx, func(*document) {})
}

func (s *PackageStore) read(ctx context.Context, fn func(doc *document)) error {
	return s.withLock(ctx, func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		fn(doc)
		return nil
	})
}

// mutate loads the document, applies fn and persists it when fn reports a change.
func (s *PackageStore) mutate(ctx context.Context, fn func(doc *document) (bool, error)) error {
	return s.withLock(ctx, func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		changed, err := fn(doc)
		if err != nil || !changed {
			return err
		}
		return s.persist(doc)
	})
}

func (s *PackageStore) withLock(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquire catalog lock: %w", err)
	}
	if !locked {
		return errors.New("acquire catalog lock: not acquired")
	}
	defer s.lock.Unlock()

	return fn()
}

func (s *PackageStore) load() (*document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var doc document
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode catalog: %w", err)
		}
	}
	return &doc, nil
}

// persist writes the document to a temporary file and renames it over the catalog.
func (s *PackageStore) persist(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write catalog: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace catalog: %w", err)
	}
	return nil
}

func (d *document) index(id uuid.UUID) int {
	return slices.IndexFunc(d.Packages, func(r record) bool { return r.ID == id })
}

func toRecord(p *model.Package) record {
	return record{
		ID:           p.ID,
		OriginalName: p.OriginalName,
		ManifestURL:  p.ManifestURL,
		SegmentType:  p.SegmentType.String(),
		CreatedAt:    p.CreatedAt,
	}
}

func (r record) toModel() *model.Package {
	return &model.Package{
		ID:           r.ID,
		OriginalName: r.OriginalName,
		ManifestURL:  r.ManifestURL,
		SegmentType:  model.SegmentType(r.SegmentType),
		CreatedAt:    r.CreatedAt,
	}
}

// Compile-time verification that PackageStore implements repository.PackageRepository.
var _ repository.PackageRepository = (*PackageStore)(nil)
