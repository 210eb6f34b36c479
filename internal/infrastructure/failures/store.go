package failures

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/hszk-dev/vidingest/internal/domain/repository"
)

const keyPrefix = "failure/"

// Store implements repository.FailureRecorder on a local Pebble database.
// Records are keyed by session id; a later failure of the same session
// replaces the earlier record.
type Store struct {
	db *pebble.DB
}

// Compile-time verification that Store implements repository.FailureRecorder.
var _ repository.FailureRecorder = (*Store)(nil)

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	return OpenWithOptions(path, &pebble.Options{})
}

// OpenWithOptions opens the store with explicit Pebble options.
func OpenWithOptions(path string, opts *pebble.Options) (*Store, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open failure store: %w", err)
	}
	return &Store{db: db}, nil
}

// Record stores record under its session id.
func (s *Store) Record(_ context.Context, record repository.FailureRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal failure record: %w", err)
	}
	if err := s.db.Set(key(record.SessionID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to store failure record: %w", err)
	}
	return nil
}

// Get returns the record of a session, or nil if none was recorded.
func (s *Store) Get(_ context.Context, sessionID string) (*repository.FailureRecord, error) {
	data, closer, err := s.db.Get(key(sessionID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get failure record: %w", err)
	}
	defer closer.Close()

	var record repository.FailureRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal failure record: %w", err)
	}
	return &record, nil
}

// List returns up to limit records in session id order. A limit <= 0 returns all.
func (s *Store) List(_ context.Context, limit int) ([]repository.FailureRecord, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix[:len(keyPrefix)-1] + "0"), // '0' follows '/'
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var records []repository.FailureRecord
	for iter.First(); iter.Valid(); iter.Next() {
		var record repository.FailureRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			continue // Skip invalid records
		}
		records = append(records, record)
		if limit > 0 && len(records) == limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate failure records: %w", err)
	}
	return records, nil
}

// Delete removes the record of a session.
func (s *Store) Delete(_ context.Context, sessionID string) error {
	if err := s.db.Delete(key(sessionID), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete failure record: %w", err)
	}
	return nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

func key(sessionID string) []byte {
	return []byte(keyPrefix + sessionID)
}
