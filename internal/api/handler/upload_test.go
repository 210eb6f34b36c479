package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hszk-dev/vidingest/internal/api/middleware"
	"github.com/hszk-dev/vidingest/internal/domain/model"
	"github.com/hszk-dev/vidingest/internal/domain/repository"
	"github.com/hszk-dev/vidingest/internal/upload"
	"github.com/hszk-dev/vidingest/internal/usecase"
)

// Mock UploadService

type mockUploadService struct {
	initSessionFn func(ctx context.Context, input usecase.InitSessionInput) (*model.UploadSession, error)
	storeChunkFn  func(ctx context.Context, input usecase.StoreChunkInput) (*usecase.StoreChunkOutput, error)
	getProgressFn func(ctx context.Context, sessionID string) (*model.Progress, error)
}

func (m *mockUploadService) InitSession(ctx context.Context, input usecase.InitSessionInput) (*model.UploadSession, error) {
	if m.initSessionFn != nil {
		return m.initSessionFn(ctx, input)
	}
	return nil, nil
}

func (m *mockUploadService) StoreChunk(ctx context.Context, input usecase.StoreChunkInput) (*usecase.StoreChunkOutput, error) {
	if m.storeChunkFn != nil {
		return m.storeChunkFn(ctx, input)
	}
	return nil, nil
}

func (m *mockUploadService) GetProgress(ctx context.Context, sessionID string) (*model.Progress, error) {
	if m.getProgressFn != nil {
		return m.getProgressFn(ctx, sessionID)
	}
	return nil, nil
}

func newTestRouter(svc usecase.UploadService, maxChunkBytes int64) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Tenant)
	r.Route("/v1", NewUploadHandler(svc, maxChunkBytes, nil).Routes)
	return r
}

func echoSession(_ context.Context, in usecase.InitSessionInput) (*model.UploadSession, error) {
	return &model.UploadSession{
		SessionID:   in.SessionID,
		TenantID:    in.TenantID,
		DocumentID:  in.DocumentID,
		FileName:    in.FileName,
		TotalChunks: in.TotalChunks,
		Phase:       model.PhaseUploading,
		Spec:        in.Conversion,
		CreatedAt:   time.Now(),
	}, nil
}

func TestUploadHandler_Init(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		tenantHeader   string
		setupMock      func(m *mockUploadService)
		wantStatusCode int
		checkResponse  func(t *testing.T, body []byte)
	}{
		{
			name:           "successful creation",
			body:           `{"tenant_id":"t1","session_id":"s1","document_id":"d1","file_name":"a.mp4","total_chunks":3,"conversion":{"format":"webm","maintain_aspect_ratio":true}}`,
			setupMock:      func(m *mockUploadService) { m.initSessionFn = echoSession },
			wantStatusCode: http.StatusCreated,
			checkResponse: func(t *testing.T, body []byte) {
				var resp SessionResponse
				if err := json.Unmarshal(body, &resp); err != nil {
					t.Fatalf("failed to unmarshal response: %v", err)
				}
				if resp.SessionID != "s1" || resp.Phase != "uploading" || resp.TotalChunks != 3 {
					t.Errorf("unexpected response %+v", resp)
				}
				if resp.Conversion == nil || resp.Conversion.Format != "webm" {
					t.Errorf("conversion = %+v", resp.Conversion)
				}
			},
		},
		{
			name:         "tenant from header and generated session id",
			body:         `{"document_id":"d1","file_name":"a.mp4","total_chunks":1}`,
			tenantHeader: "t-header",
			setupMock: func(m *mockUploadService) {
				m.initSessionFn = func(ctx context.Context, in usecase.InitSessionInput) (*model.UploadSession, error) {
					if in.TenantID != "t-header" {
						return nil, fmt.Errorf("tenant = %q", in.TenantID)
					}
					if in.SessionID == "" {
						return nil, errors.New("session id not generated")
					}
					return echoSession(ctx, in)
				}
			},
			wantStatusCode: http.StatusCreated,
		},
		{
			name:           "invalid JSON body",
			body:           "invalid json",
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "unknown field",
			body:           `{"tenant_id":"t1","document_id":"d1","file_name":"a.mp4","total_chunks":1,"bogus":true}`,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "missing tenant",
			body:           `{"document_id":"d1","file_name":"a.mp4","total_chunks":1}`,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "missing document",
			body:           `{"tenant_id":"t1","file_name":"a.mp4","total_chunks":1}`,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "zero chunks",
			body:           `{"tenant_id":"t1","document_id":"d1","file_name":"a.mp4"}`,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name: "duplicate session",
			body: `{"tenant_id":"t1","session_id":"s1","document_id":"d1","file_name":"a.mp4","total_chunks":1}`,
			setupMock: func(m *mockUploadService) {
				m.initSessionFn = func(context.Context, usecase.InitSessionInput) (*model.UploadSession, error) {
					return nil, repository.ErrDuplicateSession
				}
			},
			wantStatusCode: http.StatusConflict,
		},
		{
			name: "invalid conversion",
			body: `{"tenant_id":"t1","document_id":"d1","file_name":"a.mp4","total_chunks":1,"conversion":{"format":"flv"}}`,
			setupMock: func(m *mockUploadService) {
				m.initSessionFn = func(context.Context, usecase.InitSessionInput) (*model.UploadSession, error) {
					return nil, fmt.Errorf("%w: unsupported format", model.ErrInvalidArgument)
				}
			},
			wantStatusCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockUploadService{}
			if tt.setupMock != nil {
				tt.setupMock(mock)
			}

			req := httptest.NewRequest(http.MethodPost, "/v1/uploads", strings.NewReader(tt.body))
			if tt.tenantHeader != "" {
				req.Header.Set(middleware.TenantHeader, tt.tenantHeader)
			}
			rec := httptest.NewRecorder()
			newTestRouter(mock, 0).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatusCode {
				t.Errorf("expected status %d, got %d: %s", tt.wantStatusCode, rec.Code, rec.Body.String())
			}
			if tt.checkResponse != nil {
				tt.checkResponse(t, rec.Body.Bytes())
			}
		})
	}
}

func TestUploadHandler_StoreChunk(t *testing.T) {
	stored := func(ctx context.Context, in usecase.StoreChunkInput) (*usecase.StoreChunkOutput, error) {
		if _, err := io.ReadAll(in.Body); err != nil {
			return nil, fmt.Errorf("%w: write chunk: %w", model.ErrStorage, err)
		}
		return &usecase.StoreChunkOutput{
			Session: &model.UploadSession{
				SessionID:      in.SessionID,
				TotalChunks:    2,
				ReceivedChunks: map[uint]model.ChunkRecord{0: {}, 1: {}},
			},
			Complete: true,
		}, nil
	}

	tests := []struct {
		name           string
		path           string
		tenant         string
		body           []byte
		maxChunkBytes  int64
		storeFn        func(ctx context.Context, in usecase.StoreChunkInput) (*usecase.StoreChunkOutput, error)
		wantStatusCode int
	}{
		{"accepted", "/v1/uploads/s1/chunks/1", "t1", []byte("data"), 0, stored, http.StatusAccepted},
		{"missing tenant", "/v1/uploads/s1/chunks/1", "", []byte("data"), 0, stored, http.StatusBadRequest},
		{"negative index", "/v1/uploads/s1/chunks/-1", "t1", []byte("data"), 0, stored, http.StatusBadRequest},
		{"non-numeric index", "/v1/uploads/s1/chunks/abc", "t1", []byte("data"), 0, stored, http.StatusBadRequest},
		{"chunk too large", "/v1/uploads/s1/chunks/0", "t1", bytes.Repeat([]byte("x"), 64), 16, stored, http.StatusRequestEntityTooLarge},
		{
			"session closed", "/v1/uploads/s1/chunks/0", "t1", []byte("data"), 0,
			func(context.Context, usecase.StoreChunkInput) (*usecase.StoreChunkOutput, error) {
				return nil, fmt.Errorf("%w: session s1 is assembling", upload.ErrSessionClosed)
			},
			http.StatusConflict,
		},
		{
			"tenant mismatch", "/v1/uploads/s1/chunks/0", "t2", []byte("data"), 0,
			func(context.Context, usecase.StoreChunkInput) (*usecase.StoreChunkOutput, error) {
				return nil, upload.ErrTenantMismatch
			},
			http.StatusForbidden,
		},
		{
			"index out of range", "/v1/uploads/s1/chunks/9", "t1", []byte("data"), 0,
			func(context.Context, usecase.StoreChunkInput) (*usecase.StoreChunkOutput, error) {
				return nil, fmt.Errorf("%w: chunk index 9 out of range", model.ErrInvalidArgument)
			},
			http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockUploadService{storeChunkFn: tt.storeFn}

			req := httptest.NewRequest(http.MethodPut, tt.path, bytes.NewReader(tt.body))
			if tt.tenant != "" {
				req.Header.Set(middleware.TenantHeader, tt.tenant)
			}
			rec := httptest.NewRecorder()
			newTestRouter(mock, tt.maxChunkBytes).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatusCode {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatusCode, rec.Code, rec.Body.String())
			}
			if rec.Code == http.StatusAccepted {
				var resp ChunkResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatalf("failed to unmarshal response: %v", err)
				}
				if !resp.Complete || resp.Index != 1 || resp.ReceivedChunks != 2 {
					t.Errorf("unexpected response %+v", resp)
				}
			}
		})
	}
}

func TestUploadHandler_Progress(t *testing.T) {
	tests := []struct {
		name           string
		progressFn     func(ctx context.Context, sessionID string) (*model.Progress, error)
		wantStatusCode int
	}{
		{
			name: "tracked session",
			progressFn: func(_ context.Context, id string) (*model.Progress, error) {
				p := model.NewProgress(id, model.ProgressConverting, "completed", 0, nil)
				return &p, nil
			},
			wantStatusCode: http.StatusOK,
		},
		{
			name:           "untracked session",
			progressFn:     func(context.Context, string) (*model.Progress, error) { return nil, nil },
			wantStatusCode: http.StatusNotFound,
		},
		{
			name: "tracker failure",
			progressFn: func(context.Context, string) (*model.Progress, error) {
				return nil, errors.New("redis down")
			},
			wantStatusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockUploadService{getProgressFn: tt.progressFn}

			req := httptest.NewRequest(http.MethodGet, "/v1/uploads/s1/progress", nil)
			rec := httptest.NewRecorder()
			newTestRouter(mock, 0).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatusCode {
				t.Fatalf("expected status %d, got %d", tt.wantStatusCode, rec.Code)
			}
			if rec.Code == http.StatusOK {
				var p model.Progress
				if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
					t.Fatalf("failed to unmarshal response: %v", err)
				}
				if p.SessionID != "s1" || p.Status != model.ProgressConverting {
					t.Errorf("unexpected progress %+v", p)
				}
			}
		})
	}
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name           string
		checks         map[string]Check
		wantStatusCode int
		wantStatus     string
	}{
		{"no checks", nil, http.StatusOK, "ok"},
		{
			"all healthy",
			map[string]Check{"redis": func(context.Context) error { return nil }},
			http.StatusOK, "ok",
		},
		{
			"dependency down",
			map[string]Check{
				"redis":    func(context.Context) error { return nil },
				"postgres": func(context.Context) error { return errors.New("refused") },
			},
			http.StatusServiceUnavailable, "degraded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(tt.checks, nil).Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantStatusCode {
				t.Errorf("expected status %d, got %d", tt.wantStatusCode, rec.Code)
			}
			var resp HealthResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", resp.Status, tt.wantStatus)
			}
			if tt.wantStatus == "degraded" && resp.Checks["postgres"] != "unavailable" {
				t.Errorf("checks = %v", resp.Checks)
			}
		})
	}
}
