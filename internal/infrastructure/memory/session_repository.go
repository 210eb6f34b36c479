package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/hszk-dev/vidingest/internal/domain/model"
	"github.com/hszk-dev/vidingest/internal/domain/repository"
)

// Compile-time check that SessionRepository implements repository.SessionRepository.
var _ repository.SessionRepository = (*SessionRepository)(nil)

// SessionRepository keeps sessions in process memory. It suits a single
// process running both the API and the worker.
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*model.UploadSession
}

// NewSessionRepository creates an empty in-memory SessionRepository.
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: make(map[string]*model.UploadSession)}
}

func (r *SessionRepository) Create(_ context.Context, session *model.UploadSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[session.SessionID]; ok {
		return repository.ErrDuplicateSession
	}
	r.sessions[session.SessionID] = clone(session)
	return nil
}

func (r *SessionRepository) Get(_ context.Context, sessionID string) (*model.UploadSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	return clone(s), nil
}

func (r *SessionRepository) UpdatePhase(_ context.Context, sessionID string, phase model.Phase, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return repository.ErrSessionNotFound
	}
	s.Phase = phase
	s.Error = errMsg
	s.UpdatedAt = time.Now()
	return nil
}

func (r *SessionRepository) Initialize(_ context.Context, session *model.UploadSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[session.SessionID]
	if !ok {
		return repository.ErrSessionNotFound
	}
	if s.Phase != model.PhaseUploading || s.TotalChunks > 0 {
		return repository.ErrDuplicateSession
	}
	s.DocumentID = session.DocumentID
	s.FileName = session.FileName
	s.TotalChunks = session.TotalChunks
	s.TotalSize = session.TotalSize
	if session.Spec != nil {
		spec := *session.Spec
		s.Spec = &spec
	}
	s.UpdatedAt = time.Now()
	return nil
}

func (r *SessionRepository) TransitionPhase(_ context.Context, sessionID string, from, next model.Phase) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return false, repository.ErrSessionNotFound
	}
	if s.Phase != from {
		return false, nil
	}
	s.Phase = next
	s.UpdatedAt = time.Now()
	return true, nil
}

func (r *SessionRepository) PutChunk(_ context.Context, sessionID string, chunk model.ChunkRecord) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return "", repository.ErrSessionNotFound
	}
	previous := s.ReceivedChunks[chunk.Index].FileName
	s.ReceivedChunks[chunk.Index] = chunk
	s.UpdatedAt = time.Now()
	return previous, nil
}

func (r *SessionRepository) DeleteChunks(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[sessionID]; ok {
		clear(s.ReceivedChunks)
	}
	return nil
}

func (r *SessionRepository) ListStale(_ context.Context, cutoff time.Time) ([]*model.UploadSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stale []*model.UploadSession
	for _, s := range r.sessions {
		if s.Phase == model.PhaseUploading && s.UpdatedAt.Before(cutoff) {
			stale = append(stale, clone(s))
		}
	}
	return stale, nil
}

func clone(s *model.UploadSession) *model.UploadSession {
	c := *s
	c.ReceivedChunks = maps.Clone(s.ReceivedChunks)
	if c.ReceivedChunks == nil {
		c.ReceivedChunks = make(map[uint]model.ChunkRecord)
	}
	if s.Spec != nil {
		spec := *s.Spec
		c.Spec = &spec
	}
	return &c
}
