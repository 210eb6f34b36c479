package model

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Phase represents the lifecycle state of an upload session.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseUploading     Phase = "uploading"
	PhaseAssembling    Phase = "assembling"
	PhaseCompleted     Phase = "completed"
	PhaseFailed        Phase = "failed"
)

// Valid phase transitions:
// uninitialized -> uploading -> assembling -> completed
//
//	\            \-> failed
//	 \-> failed
var validTransitions = map[Phase][]Phase{
	PhaseUninitialized: {PhaseUploading},
	PhaseUploading:     {PhaseAssembling, PhaseFailed},
	PhaseAssembling:    {PhaseCompleted, PhaseFailed},
	PhaseCompleted:     {},
	PhaseFailed:        {},
}

func (p Phase) IsValid() bool {
	switch p {
	case PhaseUninitialized, PhaseUploading, PhaseAssembling, PhaseCompleted, PhaseFailed:
		return true
	default:
		return false
	}
}

func (p Phase) CanTransitionTo(next Phase) bool {
	return slices.Contains(validTransitions[p], next)
}

// IsTerminal reports whether no further transitions are possible.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

func (p Phase) String() string {
	return string(p)
}

// ErrInvalidTransition is returned when a phase change is not allowed.
var ErrInvalidTransition = errors.New("invalid phase transition")

// ChunkRecord describes one stored chunk of a session.
type ChunkRecord struct {
	Index    uint      `json:"index"`
	FileName string    `json:"file_name"`
	Size     int64     `json:"size"`
	StoredAt time.Time `json:"stored_at"`
}

// UploadSession tracks one chunked upload, scoped by tenant.
type UploadSession struct {
	SessionID        string
	TenantID         string
	DocumentID       string
	FileName         string
	TotalChunks      uint
	TotalSize        int64
	ReceivedChunks   map[uint]ChunkRecord
	StorageDirectory string
	Phase            Phase
	Error            string
	Spec             *ConversionSpec
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewSessionInput carries the identifiers supplied when a session is opened.
type NewSessionInput struct {
	TenantID    string
	SessionID   string
	DocumentID  string
	FileName    string
	TotalChunks uint
	TotalSize   int64
	Spec        *ConversionSpec
}

// NewUploadSession creates a session in the uninitialized phase.
// TotalChunks may be zero when the session is created lazily by a chunk.
func NewUploadSession(in NewSessionInput) (*UploadSession, error) {
	if in.TenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", ErrConfiguration)
	}
	if in.SessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrConfiguration)
	}
	if in.TotalSize < 0 {
		return nil, fmt.Errorf("%w: total size %d is negative", ErrInvalidArgument, in.TotalSize)
	}
	if in.Spec != nil {
		if err := in.Spec.Validate(); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	return &UploadSession{
		SessionID:      in.SessionID,
		TenantID:       in.TenantID,
		DocumentID:     in.DocumentID,
		FileName:       in.FileName,
		TotalChunks:    in.TotalChunks,
		TotalSize:      in.TotalSize,
		ReceivedChunks: make(map[uint]ChunkRecord),
		Phase:          PhaseUninitialized,
		Spec:           in.Spec,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// TransitionTo attempts to change the session phase.
func (s *UploadSession) TransitionTo(next Phase) error {
	if !next.IsValid() || !s.Phase.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Phase, next)
	}
	s.Phase = next
	s.UpdatedAt = time.Now()
	return nil
}

// Fail moves the session to the failed phase and records the message.
// Sessions already in a terminal phase keep their phase.
func (s *UploadSession) Fail(msg string) {
	s.Error = msg
	s.UpdatedAt = time.Now()
	if s.Phase.CanTransitionTo(PhaseFailed) {
		s.Phase = PhaseFailed
	}
}

// ReceivedCount returns the number of distinct chunk indices stored.
func (s *UploadSession) ReceivedCount() uint {
	return uint(len(s.ReceivedChunks))
}

// HasChunk reports whether the index has been stored.
func (s *UploadSession) HasChunk(index uint) bool {
	_, ok := s.ReceivedChunks[index]
	return ok
}

// MissingChunks returns the indices in [0, total) that are not stored, ascending.
func (s *UploadSession) MissingChunks(total uint) []uint {
	var missing []uint
	for i := range total {
		if !s.HasChunk(i) {
			missing = append(missing, i)
		}
	}
	return missing
}

// OrderedChunks returns the stored chunk records sorted by index.
func (s *UploadSession) OrderedChunks() []ChunkRecord {
	chunks := make([]ChunkRecord, 0, len(s.ReceivedChunks))
	for _, c := range s.ReceivedChunks {
		chunks = append(chunks, c)
	}
	slices.SortFunc(chunks, func(a, b ChunkRecord) int {
		return cmp.Compare(a.Index, b.Index)
	})
	return chunks
}

// UploadedBytes sums the sizes of all stored chunks.
func (s *UploadSession) UploadedBytes() int64 {
	var n int64
	for _, c := range s.ReceivedChunks {
		n += c.Size
	}
	return n
}
