package repository

import (
	"context"
	"time"

	"github.com/hszk-dev/vidingest/internal/domain/model"
)

// ConversionEvent announces the outcome of a conversion to the caller.
type ConversionEvent struct {
	SessionID  string                 `json:"session_id"`
	TenantID   string                 `json:"tenant_id"`
	DocumentID string                 `json:"document_id"`
	Result     model.ResolutionResult `json:"result"`
	AssetKey   string                 `json:"asset_key,omitempty"`
	URL        string                 `json:"url,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// ResultPublisher delivers conversion events to the caller's storage layer.
// Implementations should be provided by the infrastructure layer (e.g., NATS).
type ResultPublisher interface {
	Publish(ctx context.Context, event ConversionEvent) error
}

// FailureRecord keeps the diagnostics of a failed session.
type FailureRecord struct {
	SessionID  string    `json:"session_id"`
	TenantID   string    `json:"tenant_id"`
	DocumentID string    `json:"document_id"`
	Stage      TaskKind  `json:"stage"`
	Error      string    `json:"error"`
	Attempts   int       `json:"attempts"`
	FailedAt   time.Time `json:"failed_at"`
}

// FailureRecorder persists failure diagnostics for later inspection.
// Implementations should be provided by the infrastructure layer (e.g., Pebble).
type FailureRecorder interface {
	Record(ctx context.Context, record FailureRecord) error
}
