package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/hszk-dev/vidingest/internal/domain/model"
	"github.com/hszk-dev/vidingest/internal/domain/repository"
)

// Compile-time check that ProgressTracker implements repository.ProgressTracker.
var _ repository.ProgressTracker = (*ProgressTracker)(nil)

type progressEntry struct {
	progress  model.Progress
	expiresAt time.Time
}

// ProgressTracker keeps progress snapshots in memory. Entries expire ttl after
// their last update; a zero ttl keeps them until deleted.
type ProgressTracker struct {
	mu      sync.Mutex
	entries map[string]progressEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewProgressTracker creates an empty in-memory ProgressTracker.
func NewProgressTracker(ttl time.Duration) *ProgressTracker {
	return &ProgressTracker{
		entries: make(map[string]progressEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (t *ProgressTracker) Set(_ context.Context, p model.Progress) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p.Data = maps.Clone(p.Data)
	entry := progressEntry{progress: p}
	if t.ttl > 0 {
		entry.expiresAt = t.now().Add(t.ttl)
	}
	t.entries[p.SessionID] = entry
	t.evictExpired()
	return nil
}

func (t *ProgressTracker) Get(_ context.Context, sessionID string) (*model.Progress, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[sessionID]
	if !ok || t.expired(entry) {
		return nil, nil
	}
	p := entry.progress
	p.Data = maps.Clone(p.Data)
	return &p, nil
}

func (t *ProgressTracker) Delete(_ context.Context, sessionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.entries, sessionID)
	return nil
}

func (t *ProgressTracker) expired(e progressEntry) bool {
	return !e.expiresAt.IsZero() && !t.now().Before(e.expiresAt)
}

// evictExpired must be called with mu held.
func (t *ProgressTracker) evictExpired() {
	maps.DeleteFunc(t.entries, func(_ string, e progressEntry) bool {
		return t.expired(e)
	})
}
