package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hszk-dev/vidingest/internal/domain/model"
	"github.com/hszk-dev/vidingest/internal/domain/repository"
	"github.com/hszk-dev/vidingest/internal/encoding"
	"github.com/hszk-dev/vidingest/internal/upload"
)

// InitSessionInput contains the input parameters for opening an upload session.
type InitSessionInput struct {
	TenantID    string
	SessionID   string
	DocumentID  string
	FileName    string
	TotalChunks uint
	TotalSize   int64
	Conversion  *model.ConversionSpec
}

// StoreChunkInput identifies one chunk of an upload.
type StoreChunkInput struct {
	TenantID  string
	SessionID string
	Index     uint
	Body      io.Reader
}

// StoreChunkOutput reports the state of the session after a chunk was stored.
type StoreChunkOutput struct {
	Session  *model.UploadSession
	Complete bool
	// Scheduled is true for the one chunk that handed the session to assembly.
	Scheduled bool
}

// UploadService defines the request-facing upload operations.
type UploadService interface {
	// InitSession opens a session with its document and conversion settings.
	InitSession(ctx context.Context, input InitSessionInput) (*model.UploadSession, error)

	// StoreChunk stores one chunk. When the session first becomes complete the
	// assemble stage is scheduled.
	StoreChunk(ctx context.Context, input StoreChunkInput) (*StoreChunkOutput, error)

	// GetProgress returns the latest snapshot, or nil if the session is untracked.
	GetProgress(ctx context.Context, sessionID string) (*model.Progress, error)
}

// UploadServiceConfig holds configuration for UploadService.
type UploadServiceConfig struct {
	// SettleDelay postpones assembly so in-flight chunk writes can finish.
	SettleDelay time.Duration
}

// DefaultUploadServiceConfig returns the default configuration.
func DefaultUploadServiceConfig() UploadServiceConfig {
	return UploadServiceConfig{
		SettleDelay: 2 * time.Second,
	}
}

type uploadService struct {
	uploads *upload.Manager
	queue   repository.MessageQueue
	logger  *slog.Logger

	settleDelay time.Duration
}

// NewUploadService creates a new UploadService instance.
func NewUploadService(
	uploads *upload.Manager,
	queue repository.MessageQueue,
	cfg UploadServiceConfig,
	logger *slog.Logger,
) UploadService {
	if logger == nil {
		logger = slog.Default()
	}
	return &uploadService{
		uploads:     uploads,
		queue:       queue,
		logger:      logger,
		settleDelay: cfg.SettleDelay,
	}
}

// InitSession validates the requested conversion and opens the session.
func (s *uploadService) InitSession(ctx context.Context, input InitSessionInput) (*model.UploadSession, error) {
	if input.DocumentID == "" {
		return nil, fmt.Errorf("%w: document id is required", model.ErrConfiguration)
	}
	if input.TotalChunks == 0 {
		return nil, fmt.Errorf("%w: total chunks must be positive", model.ErrInvalidArgument)
	}

	spec := model.DefaultConversionSpec()
	if input.Conversion != nil {
		spec = *input.Conversion
	}
	if _, err := encoding.LookupFormat(spec.Format); err != nil {
		return nil, err
	}

	session, err := s.uploads.InitSession(ctx, model.NewSessionInput{
		TenantID:    input.TenantID,
		SessionID:   input.SessionID,
		DocumentID:  input.DocumentID,
		FileName:    input.FileName,
		TotalChunks: input.TotalChunks,
		TotalSize:   input.TotalSize,
		Spec:        &spec,
	})
	if err != nil {
		return nil, err
	}

	// Every chunk may have arrived before the session was announced.
	if _, err := s.scheduleAssembly(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// StoreChunk stores the chunk and schedules assembly once all chunks are in.
func (s *uploadService) StoreChunk(ctx context.Context, input StoreChunkInput) (*StoreChunkOutput, error) {
	session, err := s.uploads.StoreChunk(ctx, input.TenantID, input.SessionID, input.Index, input.Body)
	if err != nil {
		return nil, err
	}

	out := &StoreChunkOutput{
		Session:  session,
		Complete: session.TotalChunks > 0 && session.ReceivedCount() == session.TotalChunks,
	}
	if !out.Complete {
		return out, nil
	}

	scheduled, err := s.scheduleAssembly(ctx, session)
	if err != nil {
		return nil, err
	}
	out.Scheduled = scheduled
	return out, nil
}

// scheduleAssembly publishes the assemble task for a complete session. Only
// the caller that moves the session into assembling publishes.
func (s *uploadService) scheduleAssembly(ctx context.Context, session *model.UploadSession) (bool, error) {
	if session.TotalChunks == 0 || session.ReceivedCount() != session.TotalChunks {
		return false, nil
	}

	started, err := s.uploads.BeginAssembly(ctx, session.SessionID)
	if err != nil {
		return false, fmt.Errorf("begin assembly: %w", err)
	}
	if !started {
		return false, nil
	}

	task := NewAssembleTask(session)
	if err := s.queue.Publish(ctx, task, s.settleDelay); err != nil {
		msg := fmt.Sprintf("schedule assembly: %v", err)
		if markErr := s.uploads.MarkFailed(ctx, session.SessionID, msg); markErr != nil {
			s.logger.Error("failed to mark session as failed",
				slog.String("session_id", session.SessionID),
				slog.String("error", markErr.Error()),
			)
		}
		return false, fmt.Errorf("publish assemble task: %w", err)
	}

	s.logger.Info("assembly scheduled",
		slog.String("session_id", session.SessionID),
		slog.String("tenant_id", session.TenantID),
		slog.String("document_id", session.DocumentID),
		slog.Duration("delay", s.settleDelay),
	)
	return true, nil
}

// GetProgress returns the latest progress snapshot of a session.
func (s *uploadService) GetProgress(ctx context.Context, sessionID string) (*model.Progress, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", model.ErrConfiguration)
	}
	return s.uploads.GetProgress(ctx, sessionID)
}

// NewAssembleTask builds the first-stage task for a complete session.
// A session without a conversion spec is converted with the defaults.
func NewAssembleTask(session *model.UploadSession) repository.PipelineTask {
	spec := model.DefaultConversionSpec()
	if session.Spec != nil {
		spec = *session.Spec
	}
	return repository.PipelineTask{
		Kind:        repository.TaskAssemble,
		SessionID:   session.SessionID,
		TenantID:    session.TenantID,
		DocumentID:  session.DocumentID,
		FileName:    session.FileName,
		TotalChunks: session.TotalChunks,
		Spec:        spec,
	}
}
