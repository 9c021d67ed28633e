package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/hszk-dev/abrpack/internal/domain/model"
)

// IngestTask asks a worker to package a source file that is already on local disk.
type IngestTask struct {
	PackageID    uuid.UUID         `json:"package_id"`
	InputPath    string            `json:"input_path"`
	OriginalName string            `json:"original_name"`
	SegmentType  model.SegmentType `json:"segment_type"`
}

// MessageQueue defines the interface for message queue operations.
// Implementations should be provided by the infrastructure layer (e.g., RabbitMQ).
type MessageQueue interface {
	// PublishIngestTask sends a packaging task to the queue.
	// Used by the API server to hand long-running encodes to the worker.
	PublishIngestTask(ctx context.Context, task IngestTask) error

	// ConsumeIngestTasks calls handler for each received task until ctx is done.
	// A handler error rejects the task without requeueing it.
	ConsumeIngestTasks(ctx context.Context, handler func(task IngestTask) error) error

	// Close gracefully closes the connection to the message queue.
	Close() error
}
