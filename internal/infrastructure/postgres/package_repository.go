package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hszk-dev/abrpack/internal/domain/model"
	"github.com/hszk-dev/abrpack/internal/domain/repository"
)

// DBTX is an interface that abstracts pgxpool.Pool and pgx.Tx for testability.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schema = `
CREATE TABLE IF NOT EXISTS packages (
	id            UUID PRIMARY KEY,
	original_name TEXT NOT NULL,
	manifest_url  TEXT NOT NULL DEFAULT '',
	segment_type  TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS packages_created_at_idx ON packages (created_at);
`

const selectColumns = `SELECT id, original_name, manifest_url, segment_type, created_at FROM packages`

// PackageRepository implements repository.PackageRepository using PostgreSQL.
type PackageRepository struct {
	db DBTX
}

// NewPackageRepository creates a new PackageRepository instance.
func NewPackageRepository(db DBTX) *PackageRepository {
	return &PackageRepository{db: db}
}

// EnsureSchema creates the packages table if it does not exist yet.
func (r *PackageRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// Insert persists a new package, assigning an ID and creation time when unset.
// pkg is only updated once the row has been written.
func (r *PackageRepository) Insert(ctx context.Context, pkg *model.Package) error {
	const query = `
		INSERT INTO packages (id, original_name, manifest_url, segment_type, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	id := pkg.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	createdAt := pkg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := r.db.Exec(ctx, query,
		id,
		pkg.OriginalName,
		pkg.ManifestURL,
		pkg.SegmentType.String(),
		createdAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repository.ErrDuplicatePackage
		}
		return fmt.Errorf("failed to insert package: %w", err)
	}

	pkg.ID = id
	pkg.CreatedAt = createdAt
	return nil
}

// Select returns packages matching any set filter field, oldest first.
func (r *PackageRepository) Select(ctx context.Context, filter model.PackageFilter) ([]*model.Package, error) {
	var (
		conds []string
		args  []any
	)
	addCond := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, "%"+escapeLike(value)+"%")
		conds = append(conds, fmt.Sprintf("%s ILIKE $%d", column, len(args)))
	}
	addCond("original_name", filter.OriginalName)
	addCond("manifest_url", filter.ManifestURL)
	addCond("segment_type", filter.SegmentType)

	query := selectColumns
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " OR ")
	}
	query += " ORDER BY created_at ASC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query packages: %w", err)
	}
	defer rows.Close()

	packages := []*model.Package{}
	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan package: %w", err)
		}
		packages = append(packages, pkg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating packages: %w", err)
	}

	return packages, nil
}

// FindByID retrieves a package by its unique identifier.
func (r *PackageRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Package, error) {
	pkg, err := scanPackage(r.db.QueryRow(ctx, selectColumns+" WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrPackageNotFound
		}
		return nil, fmt.Errorf("failed to get package by ID: %w", err)
	}

	return pkg, nil
}

// Update merges the set fields of upd. A missing row is silently ignored.
func (r *PackageRepository) Update(ctx context.Context, id uuid.UUID, upd model.PackageUpdate) error {
	const query = `
		UPDATE packages
		SET original_name = COALESCE($2, original_name),
		    manifest_url = COALESCE($3, manifest_url),
		    segment_type = COALESCE($4, segment_type)
		WHERE id = $1
	`

	if upd.IsEmpty() {
		return nil
	}

	var segmentType *string
	if upd.SegmentType != nil {
		s := upd.SegmentType.String()
		segmentType = &s
	}

	if _, err := r.db.Exec(ctx, query, id, upd.OriginalName, upd.ManifestURL, segmentType); err != nil {
		return fmt.Errorf("failed to update package: %w", err)
	}

	return nil
}

// Delete removes a package and reports whether a row was removed.
func (r *PackageRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM packages WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete package: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// scanPackage scans a single row into a Package model.
func scanPackage(row pgx.Row) (*model.Package, error) {
	var (
		pkg         model.Package
		segmentType string
	)

	err := row.Scan(
		&pkg.ID,
		&pkg.OriginalName,
		&pkg.ManifestURL,
		&segmentType,
		&pkg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	pkg.SegmentType = model.SegmentType(segmentType)
	return &pkg, nil
}

// escapeLike escapes LIKE metacharacters so user input matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Compile-time verification that PackageRepository implements repository.PackageRepository.
var _ repository.PackageRepository = (*PackageRepository)(nil)
