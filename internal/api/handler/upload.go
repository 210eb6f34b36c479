package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hszk-dev/vidingest/internal/api/middleware"
	"github.com/hszk-dev/vidingest/internal/domain/model"
	"github.com/hszk-dev/vidingest/internal/domain/repository"
	"github.com/hszk-dev/vidingest/internal/upload"
	"github.com/hszk-dev/vidingest/internal/usecase"
)

// Request/Response types

type InitUploadRequest struct {
	TenantID    string                `json:"tenant_id"`
	SessionID   string                `json:"session_id"`
	DocumentID  string                `json:"document_id"`
	FileName    string                `json:"file_name"`
	TotalChunks uint                  `json:"total_chunks"`
	TotalSize   int64                 `json:"total_size"`
	Conversion  *model.ConversionSpec `json:"conversion,omitempty"`
}

type SessionResponse struct {
	SessionID   string                `json:"session_id"`
	TenantID    string                `json:"tenant_id"`
	DocumentID  string                `json:"document_id"`
	FileName    string                `json:"file_name"`
	TotalChunks uint                  `json:"total_chunks"`
	TotalSize   int64                 `json:"total_size"`
	Phase       string                `json:"phase"`
	Conversion  *model.ConversionSpec `json:"conversion,omitempty"`
	CreatedAt   string                `json:"created_at"`
}

type ChunkResponse struct {
	SessionID      string `json:"session_id"`
	Index          uint   `json:"index"`
	ReceivedChunks uint   `json:"received_chunks"`
	TotalChunks    uint   `json:"total_chunks"`
	Complete       bool   `json:"complete"`
}

// UploadHandler handles chunked upload HTTP requests.
type UploadHandler struct {
	svc           usecase.UploadService
	maxChunkBytes int64
	logger        *slog.Logger
}

// NewUploadHandler creates a new UploadHandler. Chunk bodies larger than
// maxChunkBytes are rejected; zero disables the limit.
func NewUploadHandler(svc usecase.UploadService, maxChunkBytes int64, logger *slog.Logger) *UploadHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadHandler{svc: svc, maxChunkBytes: maxChunkBytes, logger: logger}
}

// Routes registers the upload endpoints on r.
func (h *UploadHandler) Routes(r chi.Router) {
	r.Post("/uploads", h.Init)
	r.Put("/uploads/{session_id}/chunks/{index}", h.StoreChunk)
	r.Get("/uploads/{session_id}/progress", h.Progress)
}

// Init handles POST /v1/uploads
func (h *UploadHandler) Init(w http.ResponseWriter, r *http.Request) {
	var req InitUploadRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	if req.TenantID == "" {
		req.TenantID = middleware.GetTenantID(r.Context())
	}
	if req.TenantID == "" {
		Error(w, http.StatusBadRequest, "invalid_tenant_id", "Tenant ID is required")
		return
	}
	if req.DocumentID == "" {
		Error(w, http.StatusBadRequest, "invalid_document_id", "Document ID is required")
		return
	}
	if req.FileName == "" {
		Error(w, http.StatusBadRequest, "invalid_file_name", "File name is required")
		return
	}
	if req.TotalChunks == 0 {
		Error(w, http.StatusBadRequest, "invalid_total_chunks", "Total chunks must be positive")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	session, err := h.svc.InitSession(r.Context(), usecase.InitSessionInput{
		TenantID:    req.TenantID,
		SessionID:   req.SessionID,
		DocumentID:  req.DocumentID,
		FileName:    req.FileName,
		TotalChunks: req.TotalChunks,
		TotalSize:   req.TotalSize,
		Conversion:  req.Conversion,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	JSON(w, http.StatusCreated, toSessionResponse(session))
}

// StoreChunk handles PUT /v1/uploads/{session_id}/chunks/{index}
func (h *UploadHandler) StoreChunk(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		Error(w, http.StatusBadRequest, "invalid_tenant_id", "X-Tenant-ID header is required")
		return
	}

	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 32)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid_chunk_index", "Chunk index must be a non-negative integer")
		return
	}

	body := r.Body
	if h.maxChunkBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxChunkBytes)
	}

	out, err := h.svc.StoreChunk(r.Context(), usecase.StoreChunkInput{
		TenantID:  tenantID,
		SessionID: chi.URLParam(r, "session_id"),
		Index:     uint(index),
		Body:      body,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	JSON(w, http.StatusAccepted, ChunkResponse{
		SessionID:      out.Session.SessionID,
		Index:          uint(index),
		ReceivedChunks: out.Session.ReceivedCount(),
		TotalChunks:    out.Session.TotalChunks,
		Complete:       out.Complete,
	})
}

// Progress handles GET /v1/uploads/{session_id}/progress
func (h *UploadHandler) Progress(w http.ResponseWriter, r *http.Request) {
	progress, err := h.svc.GetProgress(r.Context(), chi.URLParam(r, "session_id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if progress == nil {
		Error(w, http.StatusNotFound, "session_not_found", "No progress recorded for this session")
		return
	}

	JSON(w, http.StatusOK, progress)
}

func (h *UploadHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		Error(w, http.StatusRequestEntityTooLarge, "chunk_too_large", err.Error())
	case errors.Is(err, repository.ErrSessionNotFound):
		Error(w, http.StatusNotFound, "session_not_found", "Session not found")
	case errors.Is(err, repository.ErrDuplicateSession):
		Error(w, http.StatusConflict, "session_exists", "Session already exists")
	case errors.Is(err, upload.ErrSessionClosed):
		Error(w, http.StatusConflict, "session_closed", "Session no longer accepts chunks")
	case errors.Is(err, upload.ErrTenantMismatch):
		Error(w, http.StatusForbidden, "tenant_mismatch", "Session belongs to another tenant")
	case errors.Is(err, model.ErrConfiguration):
		Error(w, http.StatusBadRequest, "configuration_error", err.Error())
	case errors.Is(err, model.ErrInvalidArgument):
		Error(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, model.ErrStorage):
		h.logger.Error("storage failure",
			slog.String("request_id", middleware.GetRequestID(r.Context())),
			slog.String("error", err.Error()),
		)
		Error(w, http.StatusInternalServerError, "storage_error", "Failed to store upload data")
	default:
		h.logger.Error("unexpected error",
			slog.String("request_id", middleware.GetRequestID(r.Context())),
			slog.String("error", err.Error()),
		)
		Error(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

func toSessionResponse(s *model.UploadSession) SessionResponse {
	return SessionResponse{
		SessionID:   s.SessionID,
		TenantID:    s.TenantID,
		DocumentID:  s.DocumentID,
		FileName:    s.FileName,
		TotalChunks: s.TotalChunks,
		TotalSize:   s.TotalSize,
		Phase:       s.Phase.String(),
		Conversion:  s.Spec,
		CreatedAt:   s.CreatedAt.Format(time.RFC3339),
	}
}
