package model

import "time"

// ProgressStatus is the caller-facing status of a session.
type ProgressStatus string

const (
	ProgressUploading  ProgressStatus = "uploading"
	ProgressAssembling ProgressStatus = "assembling"
	ProgressConverting ProgressStatus = "converting"
	ProgressCompleted  ProgressStatus = "completed"
	ProgressFailed     ProgressStatus = "failed"
)

// IsTerminal reports whether the status will not change again.
func (s ProgressStatus) IsTerminal() bool {
	return s == ProgressCompleted || s == ProgressFailed
}

// Progress is a snapshot of a session's processing state.
type Progress struct {
	SessionID  string         `json:"session_id"`
	Status     ProgressStatus `json:"status"`
	Phase      string         `json:"phase"`
	Percentage float64        `json:"percentage"`
	Data       map[string]any `json:"data,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// NewProgress returns a snapshot stamped with the current time.
func NewProgress(sessionID string, status ProgressStatus, phase string, pct float64, data map[string]any) Progress {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return Progress{
		SessionID:  sessionID,
		Status:     status,
		Phase:      phase,
		Percentage: pct,
		Data:       data,
		UpdatedAt:  time.Now(),
	}
}
