package jsonstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/hszk-dev/abrpack/internal/domain/model"
	"github.com/hszk-dev/abrpack/internal/domain/repository"
)

func newTestStore(t *testing.T) (*PackageStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "packages.json")
	store, err := NewPackageStore(path)
	if err != nil {
		t.Fatalf("NewPackageStore() error = %v", err)
	}
	return store, path
}

func TestPackageStore_InsertAndFind(t *testing.T) {
	ctx := context.Background()
	store, path := newTestStore(t)

	pkg := &model.Package{OriginalName: "clip.mp4", ManifestURL: "/hls/a/master.m3u8", SegmentType: model.SegmentTS}
	if err := store.Insert(ctx, pkg); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if pkg.ID == uuid.Nil {
		t.Fatal("Insert() did not assign an ID")
	}
	if pkg.CreatedAt.IsZero() {
		t.Fatal("Insert() did not set CreatedAt")
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("catalog file not created: %v", err)
	}

	got, err := store.FindByID(ctx, pkg.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if got.OriginalName != "clip.mp4" || got.SegmentType != model.SegmentTS || got.ManifestURL != pkg.ManifestURL {
		t.Errorf("FindByID() = %+v, want %+v", got, pkg)
	}
}

func TestPackageStore_InsertKeepsProvidedID(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	id := uuid.New()
	if err := store.Insert(ctx, &model.Package{ID: id, OriginalName: "a.mp4", SegmentType: model.SegmentOriginal}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	dup := &model.Package{ID: id, OriginalName: "b.mp4", SegmentType: model.SegmentOriginal}
	err := store.Insert(ctx, dup)
	if !errors.Is(err, repository.ErrDuplicatePackage) {
		t.Errorf("Insert() duplicate error = %v, want ErrDuplicatePackage", err)
	}
	if !dup.CreatedAt.IsZero() {
		t.Errorf("Insert() set CreatedAt = %v on a rejected package", dup.CreatedAt)
	}

	if _, err := store.FindByID(ctx, id); err != nil {
		t.Errorf("FindByID() error = %v", err)
	}
}

func TestPackageStore_FindByID_NotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.FindByID(context.Background(), uuid.New())
	if !errors.Is(err, repository.ErrPackageNotFound) {
		t.Errorf("FindByID() error = %v, want ErrPackageNotFound", err)
	}
}

func TestPackageStore_Select(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	seed := []*model.Package{
		{OriginalName: "Holiday.MP4", ManifestURL: "/hls/1/master.m3u8", SegmentType: model.SegmentTS},
		{OriginalName: "birthday.mov", ManifestURL: "/hls/2/master.m3u8", SegmentType: model.SegmentFMP4},
		{OriginalName: "raw.mkv", ManifestURL: "/uploads/3.mkv", SegmentType: model.SegmentOriginal},
	}
	for _, p := range seed {
		if err := store.Insert(ctx, p); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	tests := []struct {
		name   string
		filter model.PackageFilter
		want   []string
	}{
		{"empty filter returns all in order", model.PackageFilter{}, []string{"Holiday.MP4", "birthday.mov", "raw.mkv"}},
		{"case-insensitive substring", model.PackageFilter{OriginalName: "holiday"}, []string{"Holiday.MP4"}},
		{"any field may match", model.PackageFilter{OriginalName: "raw", SegmentType: "fmp4"}, []string{"birthday.mov", "raw.mkv"}},
		{"manifest prefix", model.PackageFilter{ManifestURL: "/hls/"}, []string{"Holiday.MP4", "birthday.mov"}},
		{"no match", model.PackageFilter{OriginalName: "nothing"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.Select(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Select() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Select() returned %d packages, want %d", len(got), len(tt.want))
			}
			for i, name := range tt.want {
				if got[i].OriginalName != name {
					t.Errorf("Select()[%d] = %q, want %q", i, got[i].OriginalName, name)
				}
			}
		})
	}
}

func TestPackageStore_Update(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	pkg := &model.Package{OriginalName: "a.mp4", ManifestURL: "/hls/a/master.m3u8", SegmentType: model.SegmentTS}
	if err := store.Insert(ctx, pkg); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	name := "renamed.mp4"
	if err := store.Update(ctx, pkg.ID, model.PackageUpdate{OriginalName: &name}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := store.FindByID(ctx, pkg.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if got.OriginalName != name {
		t.Errorf("OriginalName = %q, want %q", got.OriginalName, name)
	}
	if got.ManifestURL != pkg.ManifestURL {
		t.Errorf("ManifestURL changed to %q", got.ManifestURL)
	}

	if err := store.Update(ctx, uuid.New(), model.PackageUpdate{OriginalName: &name}); err != nil {
		t.Errorf("Update() of missing id error = %v, want nil", err)
	}
}

func TestPackageStore_Delete(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	pkg := &model.Package{OriginalName: "a.mp4", SegmentType: model.SegmentTS}
	if err := store.Insert(ctx, pkg); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	removed, err := store.Delete(ctx, pkg.ID)
	if err != nil || !removed {
		t.Fatalf("Delete() = %v, %v; want true, nil", removed, err)
	}

	removed, err = store.Delete(ctx, pkg.ID)
	if err != nil || removed {
		t.Errorf("second Delete() = %v, %v; want false, nil", removed, err)
	}

	if _, err := store.FindByID(ctx, pkg.ID); !errors.Is(err, repository.ErrPackageNotFound) {
		t.Errorf("FindByID() after delete error = %v", err)
	}
}

func TestPackageStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	store, path := newTestStore(t)

	pkg := &model.Package{OriginalName: "a.mp4", SegmentType: model.SegmentFMP4, ManifestURL: "/hls/a/master.m3u8"}
	if err := store.Insert(ctx, pkg); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	reopened, err := NewPackageStore(path)
	if err != nil {
		t.Fatalf("NewPackageStore() error = %v", err)
	}
	got, err := reopened.FindByID(ctx, pkg.ID)
	if err != nil {
		t.Fatalf("FindByID() after reopen error = %v", err)
	}
	if !got.CreatedAt.Equal(pkg.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, pkg.CreatedAt)
	}
}

func TestPackageStore_ConcurrentInserts(t *testing.T) {
	ctx := context.Background()
	store, path := newTestStore(t)
	other, err := NewPackageStore(path)
	if err != nil {
		t.Fatalf("NewPackageStore() error = %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	for i := range n {
		s := store
		if i%2 == 1 {
			s = other
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Insert(ctx, &model.Package{OriginalName: "clip.mp4", SegmentType: model.SegmentTS}); err != nil {
				t.Errorf("Insert() error = %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := store.Select(ctx, model.PackageFilter{})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(got) != n {
		t.Errorf("Select() returned %d packages, want %d", len(got), n)
	}
}

func TestPackageStore_CorruptFile(t *testing.T) {
	store, path := newTestStore(t)
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := store.Select(context.Background(), model.PackageFilter{}); err == nil {
		t.Error("Select() expected decode error")
	}
	if err := store.Ping(context.Background()); err == nil {
		t.Error("Ping() expected decode error")
	}
}
