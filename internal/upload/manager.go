package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hszk-dev/vidingest/internal/domain/model"
	"github.com/hszk-dev/vidingest/internal/domain/repository"
	"github.com/hszk-dev/vidingest/internal/infrastructure/metrics"
)

var (
	// ErrSessionClosed is returned when a chunk arrives for a session that no longer accepts uploads.
	ErrSessionClosed = errors.New("session no longer accepts chunks")

	// ErrTenantMismatch is returned when a session is addressed with a different tenant.
	ErrTenantMismatch = errors.New("session belongs to another tenant")
)

const chunkFilePrefix = "chunk_"

// Manager owns chunk storage, assembly and cleanup of upload sessions.
// Files live under root, scoped by tenant:
//
//	{root}/{tenant}/chunks/{session}/chunk_{uuid}_{unixnano}
//	{root}/{tenant}/documents/{document}/source/{fileName}
type Manager struct {
	root     string
	sessions repository.SessionRepository
	progress repository.ProgressTracker
	logger   *slog.Logger
}

// NewManager creates a Manager storing files under root.
func NewManager(root string, sessions repository.SessionRepository, progress repository.ProgressTracker, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		root:     root,
		sessions: sessions,
		progress: progress,
		logger:   logger,
	}
}

// Root returns the storage root directory.
func (m *Manager) Root() string {
	return m.root
}

// InitSession opens a session explicitly and moves it to the uploading phase.
// When chunks arrived first and created the session lazily, InitSession adopts
// it: the declared details are attached and the stored chunks are kept.
func (m *Manager) InitSession(ctx context.Context, in model.NewSessionInput) (*model.UploadSession, error) {
	if err := validateSegments(in.TenantID, in.SessionID, in.DocumentID); err != nil {
		return nil, err
	}

	session, err := model.NewUploadSession(in)
	if err != nil {
		return nil, err
	}
	session.StorageDirectory = m.chunkDir(session.TenantID, session.SessionID)
	if err := session.TransitionTo(model.PhaseUploading); err != nil {
		return nil, err
	}

	if err := m.sessions.Create(ctx, session); err != nil {
		if !errors.Is(err, repository.ErrDuplicateSession) {
			return nil, fmt.Errorf("create session: %w", err)
		}
		if session, err = m.adopt(ctx, session); err != nil {
			return nil, err
		}
	}

	m.report(ctx, model.NewProgress(session.SessionID, model.ProgressUploading, session.Phase.String(), chunkPercentage(session), m.uploadData(session)))

	m.logger.Info("upload session initialized",
		slog.String("session_id", session.SessionID),
		slog.String("tenant_id", session.TenantID),
		slog.Int("total_chunks", int(session.TotalChunks)),
	)
	return session, nil
}

// adopt attaches the details of an explicit init to a session that its first
// chunk created. Chunks stored so far must fit the declared total.
func (m *Manager) adopt(ctx context.Context, details *model.UploadSession) (*model.UploadSession, error) {
	existing, err := m.sessions.Get(ctx, details.SessionID)
	if err != nil {
		return nil, err
	}
	if existing.TenantID != details.TenantID {
		return nil, fmt.Errorf("%w: %s", ErrTenantMismatch, details.SessionID)
	}
	if existing.Phase != model.PhaseUploading || existing.TotalChunks > 0 || details.TotalChunks == 0 {
		return nil, fmt.Errorf("create session: %w", repository.ErrDuplicateSession)
	}
	for index := range existing.ReceivedChunks {
		if index >= details.TotalChunks {
			return nil, fmt.Errorf("%w: stored chunk index %d out of range [0, %d)", model.ErrInvalidArgument, index, details.TotalChunks)
		}
	}

	if err := m.sessions.Initialize(ctx, details); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	m.logger.Info("adopted session created by its first chunk",
		slog.String("session_id", details.SessionID),
		slog.Int("received_chunks", int(existing.ReceivedCount())),
	)
	return m.sessions.Get(ctx, details.SessionID)
}

// StoreChunk writes one chunk and records it under its index. Storing the same
// index again replaces the previous chunk. A session that does not exist yet
// is created on the first chunk.
func (m *Manager) StoreChunk(ctx context.Context, tenantID, sessionID string, index uint, r io.Reader) (*model.UploadSession, error) {
	if tenantID == "" || sessionID == "" {
		return nil, fmt.Errorf("%w: tenant id and session id are required", model.ErrConfiguration)
	}
	if err := validateSegments(tenantID, sessionID); err != nil {
		return nil, err
	}

	session, err := m.openSession(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Phase != model.PhaseUploading {
		return nil, fmt.Errorf("%w: session %s is %s", ErrSessionClosed, sessionID, session.Phase)
	}
	if session.TotalChunks > 0 && index >= session.TotalChunks {
		return nil, fmt.Errorf("%w: chunk index %d out of range [0, %d)", model.ErrInvalidArgument, index, session.TotalChunks)
	}

	record, err := m.writeChunk(session.StorageDirectory, index, r)
	if err != nil {
		metrics.ChunksStoredTotal.WithLabelValues(metrics.StatusError).Inc()
		return nil, err
	}

	previous, err := m.sessions.PutChunk(ctx, sessionID, record)
	if err != nil {
		_ = os.Remove(filepath.Join(session.StorageDirectory, record.FileName))
		metrics.ChunksStoredTotal.WithLabelValues(metrics.StatusError).Inc()
		return nil, fmt.Errorf("record chunk: %w", err)
	}
	if previous != "" && previous != record.FileName {
		if err := os.Remove(filepath.Join(session.StorageDirectory, previous)); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("failed to remove replaced chunk",
				slog.String("session_id", sessionID),
				slog.String("file", previous),
				slog.String("error", err.Error()),
			)
		}
	}

	metrics.ChunksStoredTotal.WithLabelValues(metrics.StatusSuccess).Inc()
	metrics.ChunkBytesTotal.Add(float64(record.Size))

	session, err = m.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("reload session: %w", err)
	}
	m.report(ctx, model.NewProgress(sessionID, model.ProgressUploading, session.Phase.String(), chunkPercentage(session), m.uploadData(session)))

	return session, nil
}

// IsComplete reports whether the number of stored chunks equals totalChunks.
func (m *Manager) IsComplete(ctx context.Context, sessionID string, totalChunks uint) (bool, error) {
	session, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return totalChunks > 0 && session.ReceivedCount() == totalChunks, nil
}

// BeginAssembly moves a session whose chunks are all stored from uploading to
// assembling. It returns false when the session is not complete yet or another
// caller already began assembly, so each session is handed to the assembler
// once. The transition is a compare-and-set in the session store, which holds
// across processes sharing that store.
func (m *Manager) BeginAssembly(ctx context.Context, sessionID string) (bool, error) {
	session, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if session.Phase != model.PhaseUploading || session.TotalChunks == 0 ||
		session.ReceivedCount() != session.TotalChunks {
		return false, nil
	}

	won, err := m.sessions.TransitionPhase(ctx, sessionID, model.PhaseUploading, model.PhaseAssembling)
	if err != nil {
		return false, fmt.Errorf("update phase: %w", err)
	}
	if !won {
		return false, nil
	}
	m.report(ctx, model.NewProgress(sessionID, model.ProgressAssembling, model.PhaseAssembling.String(), 0, m.uploadData(session)))
	return true, nil
}

// AssembleFile concatenates chunks 0..totalChunks-1 in index order into the
// document's source directory and returns the final path. The output is
// written to a temporary file and renamed, so a failed attempt never leaves a
// partial file at the final path. Chunks are kept; the caller decides when to
// call CleanupSession.
func (m *Manager) AssembleFile(ctx context.Context, sessionID, fileName string, totalChunks uint) (string, error) {
	session, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if session.DocumentID == "" {
		return "", fmt.Errorf("%w: document id is required for assembly", model.ErrConfiguration)
	}
	if fileName == "" {
		fileName = session.FileName
	}
	fileName = filepath.Base(fileName)
	if fileName == "" || fileName == "." || fileName == string(filepath.Separator) {
		return "", fmt.Errorf("%w: file name is required for assembly", model.ErrConfiguration)
	}
	if totalChunks == 0 {
		return "", fmt.Errorf("%w: total chunks must be positive", model.ErrConfiguration)
	}

	outDir := m.sourceDir(session.TenantID, session.DocumentID)
	outPath := filepath.Join(outDir, fileName)

	switch session.Phase {
	case model.PhaseCompleted:
		// A previous attempt finished; re-running yields the same file.
		if _, err := os.Stat(outPath); err == nil {
			return outPath, nil
		}
		return "", fmt.Errorf("%w: session %s completed but %s is missing", model.ErrAssembly, sessionID, outPath)
	case model.PhaseFailed:
		return "", fmt.Errorf("%w: session %s has failed", model.ErrAssembly, sessionID)
	case model.PhaseUploading:
		if err := m.sessions.UpdatePhase(ctx, sessionID, model.PhaseAssembling, ""); err != nil {
			return "", fmt.Errorf("update phase: %w", err)
		}
		session.Phase = model.PhaseAssembling
	case model.PhaseAssembling:
	default:
		return "", fmt.Errorf("%w: session %s is %s", model.ErrAssembly, sessionID, session.Phase)
	}

	if missing := session.MissingChunks(totalChunks); len(missing) > 0 {
		metrics.AssembliesTotal.WithLabelValues(metrics.ResultFailed).Inc()
		return "", fmt.Errorf("%w: session %s is missing chunk indices %v", model.ErrAssembly, sessionID, missing)
	}

	m.report(ctx, model.NewProgress(sessionID, model.ProgressAssembling, session.Phase.String(), 0, map[string]any{
		"total_chunks": totalChunks,
	}))

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create output directory: %w", model.ErrStorage, err)
	}

	written, err := m.concatenate(ctx, session, outDir, outPath, totalChunks)
	if err != nil {
		metrics.AssembliesTotal.WithLabelValues(metrics.ResultRetry).Inc()
		return "", err
	}

	if err := m.sessions.UpdatePhase(ctx, sessionID, model.PhaseCompleted, ""); err != nil {
		return "", fmt.Errorf("update phase: %w", err)
	}
	metrics.AssembliesTotal.WithLabelValues(metrics.ResultSuccess).Inc()

	m.logger.Info("session assembled",
		slog.String("session_id", sessionID),
		slog.String("document_id", session.DocumentID),
		slog.String("path", outPath),
		slog.Int64("bytes", written),
	)
	return outPath, nil
}

func (m *Manager) concatenate(ctx context.Context, session *model.UploadSession, outDir, outPath string, totalChunks uint) (int64, error) {
	tmp, err := os.CreateTemp(outDir, ".assemble-*")
	if err != nil {
		return 0, fmt.Errorf("%w: create temp file: %w", model.ErrStorage, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	var written int64
	for i := range totalChunks {
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("%w: assembly interrupted: %w", model.ErrStorage, err)
		}
		chunk := session.ReceivedChunks[i]
		n, err := appendFile(tmp, filepath.Join(session.StorageDirectory, chunk.FileName))
		if err != nil {
			if os.IsNotExist(err) {
				return 0, fmt.Errorf("%w: chunk %d file %s is gone", model.ErrAssembly, i, chunk.FileName)
			}
			return 0, fmt.Errorf("%w: append chunk %d: %w", model.ErrStorage, i, err)
		}
		written += n
	}

	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("%w: sync output: %w", model.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("%w: close output: %w", model.ErrStorage, err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		committed = true
		return 0, fmt.Errorf("%w: rename output: %w", model.ErrStorage, err)
	}
	committed = true
	return written, nil
}

func appendFile(dst io.Writer, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(dst, f)
}

// CleanupSession removes the session's chunk directory and chunk records.
// Calling it again, or for an unknown session, is a no-op.
func (m *Manager) CleanupSession(ctx context.Context, sessionID string) error {
	session, err := m.sessions.Get(ctx, sessionID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	dir := session.StorageDirectory
	if dir == "" {
		dir = m.chunkDir(session.TenantID, session.SessionID)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("%w: remove chunk directory: %w", model.ErrStorage, err)
	}
	if err := m.sessions.DeleteChunks(ctx, sessionID); err != nil {
		return fmt.Errorf("delete chunk records: %w", err)
	}

	m.logger.Debug("session chunks removed", slog.String("session_id", sessionID))
	return nil
}

// GetProgress returns the latest snapshot, or nil if the session is not tracked.
func (m *Manager) GetProgress(ctx context.Context, sessionID string) (*model.Progress, error) {
	return m.progress.Get(ctx, sessionID)
}

// Report records a progress snapshot for a session.
func (m *Manager) Report(ctx context.Context, p model.Progress) error {
	return m.progress.Set(ctx, p)
}

// MarkFailed records msg on the session and reports it as failed.
// Sessions that already completed assembly keep their phase.
func (m *Manager) MarkFailed(ctx context.Context, sessionID, msg string) error {
	session, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	session.Fail(msg)
	if err := m.sessions.UpdatePhase(ctx, sessionID, session.Phase, msg); err != nil {
		return fmt.Errorf("update phase: %w", err)
	}

	if err := m.progress.Set(ctx, model.NewProgress(sessionID, model.ProgressFailed, session.Phase.String(), 0, map[string]any{
		"error": msg,
	})); err != nil {
		return fmt.Errorf("report failure: %w", err)
	}
	return nil
}

// Session returns the stored session with its chunk records.
func (m *Manager) Session(ctx context.Context, sessionID string) (*model.UploadSession, error) {
	return m.sessions.Get(ctx, sessionID)
}

func (m *Manager) openSession(ctx context.Context, tenantID, sessionID string) (*model.UploadSession, error) {
	session, err := m.sessions.Get(ctx, sessionID)
	if err == nil {
		if session.TenantID != tenantID {
			return nil, fmt.Errorf("%w: %s", ErrTenantMismatch, sessionID)
		}
		return session, nil
	}
	if !errors.Is(err, repository.ErrSessionNotFound) {
		return nil, err
	}

	session, err = model.NewUploadSession(model.NewSessionInput{TenantID: tenantID, SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	session.StorageDirectory = m.chunkDir(tenantID, sessionID)
	if err := session.TransitionTo(model.PhaseUploading); err != nil {
		return nil, err
	}

	if err := m.sessions.Create(ctx, session); err != nil {
		if errors.Is(err, repository.ErrDuplicateSession) {
			// Another chunk created it first.
			return m.openSession(ctx, tenantID, sessionID)
		}
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

func (m *Manager) writeChunk(dir string, index uint, r io.Reader) (model.ChunkRecord, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return model.ChunkRecord{}, fmt.Errorf("%w: create chunk directory: %w", model.ErrStorage, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return model.ChunkRecord{}, fmt.Errorf("%w: create temp chunk: %w", model.ErrStorage, err)
	}
	tmpPath := tmp.Name()

	size, err := io.Copy(tmp, r)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return model.ChunkRecord{}, fmt.Errorf("%w: write chunk %d: %w", model.ErrStorage, index, err)
	}

	now := time.Now()
	name := fmt.Sprintf("%s%s_%d", chunkFilePrefix, uuid.NewString(), now.UnixNano())
	if err := os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpPath)
		return model.ChunkRecord{}, fmt.Errorf("%w: rename chunk %d: %w", model.ErrStorage, index, err)
	}

	return model.ChunkRecord{
		Index:    index,
		FileName: name,
		Size:     size,
		StoredAt: now,
	}, nil
}

func (m *Manager) report(ctx context.Context, p model.Progress) {
	if err := m.progress.Set(ctx, p); err != nil {
		m.logger.Warn("failed to record progress",
			slog.String("session_id", p.SessionID),
			slog.String("error", err.Error()),
		)
	}
}

func (m *Manager) uploadData(s *model.UploadSession) map[string]any {
	return map[string]any{
		"received_chunks": s.ReceivedCount(),
		"total_chunks":    s.TotalChunks,
		"uploaded_bytes":  s.UploadedBytes(),
	}
}

func (m *Manager) chunkDir(tenantID, sessionID string) string {
	return filepath.Join(m.root, tenantID, "chunks", sessionID)
}

func (m *Manager) sourceDir(tenantID, documentID string) string {
	return filepath.Join(m.root, tenantID, "documents", documentID, "source")
}

func chunkPercentage(s *model.UploadSession) float64 {
	if s.TotalChunks == 0 {
		return 0
	}
	return float64(s.ReceivedCount()) / float64(s.TotalChunks) * 100
}

// validateSegments rejects identifiers that would escape their directory.
func validateSegments(ids ...string) error {
	for _, id := range ids {
		if id == "" {
			continue
		}
		if id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
			return fmt.Errorf("%w: invalid identifier %q", model.ErrConfiguration, id)
		}
	}
	return nil
}
