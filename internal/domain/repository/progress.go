package repository

import (
	"context"

	"github.com/hszk-dev/vidingest/internal/domain/model"
)

// ProgressTracker stores the latest progress snapshot per session.
// Implementations should be provided by the infrastructure layer (e.g., Redis).
type ProgressTracker interface {
	// Set replaces the snapshot for progress.SessionID.
	Set(ctx context.Context, progress model.Progress) error

	// Get returns the snapshot, or nil, nil if the session is not tracked.
	Get(ctx context.Context, sessionID string) (*model.Progress, error)

	// Delete stops tracking a session. Deleting an untracked session is not an error.
	Delete(ctx context.Context, sessionID string) error
}
