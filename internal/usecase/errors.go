package usecase

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrCatalog is returned when the catalog could not commit or read a record.
	// It is distinct from repository.ErrPackageNotFound.
	ErrCatalog = errors.New("catalog failure")

	// ErrArtifactCleanup is returned when a deleted package's files could not be removed.
	ErrArtifactCleanup = errors.New("artifact cleanup failed")

	// ErrInputNotFound is returned when the source file does not exist.
	ErrInputNotFound = errors.New("input file not found")

	// ErrInputNotRegular is returned when the source path is not a regular file.
	ErrInputNotRegular = errors.New("input is not a regular file")

	// ErrQueueUnavailable is returned by Enqueue when no message queue is configured.
	ErrQueueUnavailable = errors.New("message queue not configured")

	// ErrEncoderUnavailable is returned when an HLS ingest reaches a service
	// built without a prober and runner.
	ErrEncoderUnavailable = errors.New("encoder not configured")
)

// ArtifactCleanupError reports a package whose catalog record was removed but
// whose artifacts could not be.
type ArtifactCleanupError struct {
	ID   uuid.UUID
	Path string
	Err  error
}

func (e *ArtifactCleanupError) Error() string {
	return fmt.Sprintf("remove artifacts of %s at %s: %v", e.ID, e.Path, e.Err)
}

func (e *ArtifactCleanupError) Unwrap() []error {
	return []error{ErrArtifactCleanup, e.Err}
}

func catalogError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCatalog, op, err)
}
