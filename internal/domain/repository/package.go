package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/hszk-dev/abrpack/internal/domain/model"
)

// PackageRepository is the catalog of produced packages.
// Every mutation is durable by the time the call returns.
type PackageRepository interface {
	// Insert persists a new package. A nil ID is replaced with a fresh one and a
	// zero CreatedAt with the current time; both are written back into pkg.
	// Returns ErrDuplicatePackage if the ID is already present.
	Insert(ctx context.Context, pkg *model.Package) error

	// Select returns the packages matching filter, oldest first.
	Select(ctx context.Context, filter model.PackageFilter) ([]*model.Package, error)

	// FindByID returns ErrPackageNotFound if the package does not exist.
	FindByID(ctx context.Context, id uuid.UUID) (*model.Package, error)

	// Update merges the set fields of upd into the stored package.
	// Updating a missing ID is a no-op and not an error.
	Update(ctx context.Context, id uuid.UUID, upd model.PackageUpdate) error

	// Delete removes the package and reports whether it existed.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}
