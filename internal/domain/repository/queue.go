package repository

import (
	"context"
	"time"

	"github.com/hszk-dev/vidingest/internal/domain/model"
)

// TaskKind selects the pipeline stage a task belongs to.
type TaskKind string

const (
	TaskAssemble TaskKind = "assemble"
	TaskConvert  TaskKind = "convert"
)

// PipelineTask is the message passed between pipeline stages.
type PipelineTask struct {
	Kind        TaskKind             `json:"kind"`
	SessionID   string               `json:"session_id"`
	TenantID    string               `json:"tenant_id"`
	DocumentID  string               `json:"document_id"`
	FileName    string               `json:"file_name"`
	TotalChunks uint                 `json:"total_chunks"`
	SourcePath  string               `json:"source_path,omitempty"`
	Spec        model.ConversionSpec `json:"spec"`
	RetryCount  int                  `json:"retry_count"`
}

// TaskHandler processes one task. A returned error asks the queue to
// redeliver the task with RetryCount incremented.
type TaskHandler func(ctx context.Context, task PipelineTask) error

// MessageQueue defines the interface for message queue operations.
// Implementations should be provided by the infrastructure layer (e.g., RabbitMQ).
type MessageQueue interface {
	// Publish enqueues task for its Kind, to be delivered no earlier than delay from now.
	Publish(ctx context.Context, task PipelineTask, delay time.Duration) error

	// Consume delivers tasks of kind to handler until ctx is cancelled.
	// Used by the worker service.
	Consume(ctx context.Context, kind TaskKind, handler TaskHandler) error

	// Close gracefully closes the connection to the message queue.
	Close() error
}
