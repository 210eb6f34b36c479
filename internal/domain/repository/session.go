package repository

import (
	"context"
	"time"

	"github.com/hszk-dev/vidingest/internal/domain/model"
)

// SessionRepository persists upload sessions and their chunk records.
// Implementations should be provided by the infrastructure layer (e.g., PostgreSQL).
type SessionRepository interface {
	// Create persists a new session.
	// Returns ErrDuplicateSession if the session id is taken.
	Create(ctx context.Context, session *model.UploadSession) error

	// Get retrieves a session with its chunk records.
	// Returns nil and ErrSessionNotFound if the session does not exist.
	Get(ctx context.Context, sessionID string) (*model.UploadSession, error)

	// UpdatePhase sets the phase and error message of a session.
	// Returns ErrSessionNotFound if the session does not exist.
	UpdatePhase(ctx context.Context, sessionID string, phase model.Phase, errMsg string) error

	// Initialize fills in the details of a session created by its first chunk:
	// document id, file name, totals and conversion spec.
	// Returns ErrDuplicateSession if the session already has its details or no
	// longer accepts chunks.
	Initialize(ctx context.Context, session *model.UploadSession) error

	// TransitionPhase moves a session to next only while it is still in from.
	// It reports whether this call made the change, so concurrent callers
	// racing for the same transition see exactly one winner.
	TransitionPhase(ctx context.Context, sessionID string, from, next model.Phase) (bool, error)

	// PutChunk records a stored chunk, replacing any record with the same index.
	// It returns the file name of the replaced record, or "" if there was none.
	PutChunk(ctx context.Context, sessionID string, chunk model.ChunkRecord) (string, error)

	// DeleteChunks removes all chunk records of a session. The session stays.
	DeleteChunks(ctx context.Context, sessionID string) error

	// ListStale returns sessions still receiving chunks that were last
	// updated before cutoff.
	ListStale(ctx context.Context, cutoff time.Time) ([]*model.UploadSession, error)
}
