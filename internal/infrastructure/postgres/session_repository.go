package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hszk-dev/vidingest/internal/domain/model"
	"github.com/hszk-dev/vidingest/internal/domain/repository"
	"github.com/hszk-dev/vidingest/internal/infrastructure/metrics"
)

//go:embed schema.sql
var schema string

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// DBTX is an interface that abstracts pgxpool.Pool and pgx.Tx for testability.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Migrate creates the upload tables if they do not exist.
func Migrate(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// SessionRepository implements repository.SessionRepository using PostgreSQL.
type SessionRepository struct {
	db DBTX
}

// NewSessionRepository creates a new SessionRepository instance.
func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create persists a new session without chunk records.
func (r *SessionRepository) Create(ctx context.Context, s *model.UploadSession) error {
	const query = `
		INSERT INTO upload_sessions (session_id, tenant_id, document_id, file_name, total_chunks, total_size,
			storage_directory, phase, error, spec, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	spec, err := marshalSpec(s.Spec)
	if err != nil {
		return err
	}

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryInsert, metrics.TableUploadSessions).Inc()
	_, err = r.db.Exec(ctx, query,
		s.SessionID,
		s.TenantID,
		s.DocumentID,
		s.FileName,
		int64(s.TotalChunks),
		s.TotalSize,
		s.StorageDirectory,
		s.Phase.String(),
		s.Error,
		spec,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return repository.ErrDuplicateSession
		}
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// Get retrieves a session and its chunk records.
func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*model.UploadSession, error) {
	const sessionQuery = `
		SELECT session_id, tenant_id, document_id, file_name, total_chunks, total_size,
			storage_directory, phase, error, spec, created_at, updated_at
		FROM upload_sessions
		WHERE session_id = $1
	`
	const chunkQuery = `
		SELECT chunk_index, file_name, size, stored_at
		FROM upload_chunks
		WHERE session_id = $1
		ORDER BY chunk_index
	`

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect, metrics.TableUploadSessions).Inc()
	session, err := scanSession(r.db.QueryRow(ctx, sessionQuery, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect, metrics.TableUploadChunks).Inc()
	rows, err := r.db.Query(ctx, chunkQuery, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			chunk model.ChunkRecord
			index int64
		)
		if err := rows.Scan(&index, &chunk.FileName, &chunk.Size, &chunk.StoredAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunk.Index = uint(index)
		session.ReceivedChunks[chunk.Index] = chunk
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunks: %w", err)
	}

	return session, nil
}

// UpdatePhase updates the phase and error message of a session.
func (r *SessionRepository) UpdatePhase(ctx context.Context, sessionID string, phase model.Phase, errMsg string) error {
	const query = `
		UPDATE upload_sessions
		SET phase = $2, error = $3, updated_at = $4
		WHERE session_id = $1
	`

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryUpdate, metrics.TableUploadSessions).Inc()
	tag, err := r.db.Exec(ctx, query, sessionID, phase.String(), errMsg, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update session phase: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return repository.ErrSessionNotFound
	}

	return nil
}

// Initialize sets the details of a session created lazily by its first chunk.
func (r *SessionRepository) Initialize(ctx context.Context, s *model.UploadSession) error {
	const query = `
		UPDATE upload_sessions
		SET document_id = $2, file_name = $3, total_chunks = $4, total_size = $5, spec = $6, updated_at = $7
		WHERE session_id = $1 AND phase = $8 AND total_chunks = 0
	`

	spec, err := marshalSpec(s.Spec)
	if err != nil {
		return err
	}

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryUpdate, metrics.TableUploadSessions).Inc()
	tag, err := r.db.Exec(ctx, query,
		s.SessionID,
		s.DocumentID,
		s.FileName,
		int64(s.TotalChunks),
		s.TotalSize,
		spec,
		time.Now(),
		model.PhaseUploading.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize session: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return repository.ErrDuplicateSession
	}

	return nil
}

// TransitionPhase moves a session from one phase to next as a single
// conditional UPDATE. It returns false when the session is no longer in from.
func (r *SessionRepository) TransitionPhase(ctx context.Context, sessionID string, from, next model.Phase) (bool, error) {
	const query = `
		UPDATE upload_sessions
		SET phase = $3, updated_at = $4
		WHERE session_id = $1 AND phase = $2
	`

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryUpdate, metrics.TableUploadSessions).Inc()
	tag, err := r.db.Exec(ctx, query, sessionID, from.String(), next.String(), time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to transition session phase: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// PutChunk upserts the record for chunk.Index and returns the replaced file name.
func (r *SessionRepository) PutChunk(ctx context.Context, sessionID string, chunk model.ChunkRecord) (string, error) {
	const query = `
		WITH previous AS (
			SELECT file_name FROM upload_chunks WHERE session_id = $1 AND chunk_index = $2
		), upserted AS (
			INSERT INTO upload_chunks (session_id, chunk_index, file_name, size, stored_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (session_id, chunk_index)
			DO UPDATE SET file_name = EXCLUDED.file_name, size = EXCLUDED.size, stored_at = EXCLUDED.stored_at
			RETURNING session_id
		), touched AS (
			UPDATE upload_sessions SET updated_at = $5 WHERE session_id = $1
		)
		SELECT COALESCE((SELECT file_name FROM previous), '')
	`

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryInsert, metrics.TableUploadChunks).Inc()
	var previous string
	err := r.db.QueryRow(ctx, query, sessionID, int64(chunk.Index), chunk.FileName, chunk.Size, chunk.StoredAt).Scan(&previous)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return "", repository.ErrSessionNotFound
		}
		return "", fmt.Errorf("failed to put chunk: %w", err)
	}

	return previous, nil
}

// DeleteChunks removes all chunk records of a session.
func (r *SessionRepository) DeleteChunks(ctx context.Context, sessionID string) error {
	const query = `DELETE FROM upload_chunks WHERE session_id = $1`

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQueryDelete, metrics.TableUploadChunks).Inc()
	if _, err := r.db.Exec(ctx, query, sessionID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// ListStale returns uploading sessions not updated since cutoff, without chunk records.
func (r *SessionRepository) ListStale(ctx context.Context, cutoff time.Time) ([]*model.UploadSession, error) {
	const query = `
		SELECT session_id, tenant_id, document_id, file_name, total_chunks, total_size,
			storage_directory, phase, error, spec, created_at, updated_at
		FROM upload_sessions
		WHERE phase = $1 AND updated_at < $2
		ORDER BY updated_at
	`

	metrics.DBQueriesTotal.WithLabelValues(metrics.DBQuerySelect, metrics.TableUploadSessions).Inc()
	rows, err := r.db.Query(ctx, query, model.PhaseUploading.String(), cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.UploadSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

// scanSession scans one upload_sessions row. pgx.Rows satisfies pgx.Row.
func scanSession(row pgx.Row) (*model.UploadSession, error) {
	var (
		s           model.UploadSession
		totalChunks int64
		phase       string
		spec        []byte
	)

	err := row.Scan(
		&s.SessionID,
		&s.TenantID,
		&s.DocumentID,
		&s.FileName,
		&totalChunks,
		&s.TotalSize,
		&s.StorageDirectory,
		&phase,
		&s.Error,
		&spec,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.TotalChunks = uint(totalChunks)
	s.Phase = model.Phase(phase)
	s.ReceivedChunks = make(map[uint]model.ChunkRecord)
	if len(spec) > 0 {
		var c model.ConversionSpec
		if err := json.Unmarshal(spec, &c); err != nil {
			return nil, fmt.Errorf("failed to decode conversion spec: %w", err)
		}
		s.Spec = &c
	}

	return &s, nil
}

func marshalSpec(spec *model.ConversionSpec) ([]byte, error) {
	if spec == nil {
		return nil, nil
	}
	data, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode conversion spec: %w", err)
	}
	return data, nil
}

// Compile-time verification that SessionRepository implements repository.SessionRepository.
var _ repository.SessionRepository = (*SessionRepository)(nil)
