package models

import (
	"time"

	"github.com/google/uuid"
)

// Session event types.
const (
	EventTranslation     = "translation"
	EventConfirmed       = "confirmed"
	EventGestureMastered = "gesture_mastered"
	EventSessionComplete = "session_complete"
	EventSessionAborted  = "session_aborted"
	EventConnection      = "connection"
	EventStale           = "stale"
	EventServerError     = "server_error"
)

// SessionEvent is everything that leaves the session coordinator.
type SessionEvent struct {
	Type          string          `json:"type"`
	SessionID     uuid.UUID       `json:"session_id"`
	At            time.Time       `json:"at"`
	Label         string          `json:"label,omitempty"`
	Expected      string          `json:"expected,omitempty"`
	Correct       *bool           `json:"correct,omitempty"`
	Confidence    float64         `json:"confidence,omitempty"`
	Index         int             `json:"index"`
	Accuracy      float64         `json:"accuracy"`
	ElapsedMs     int64           `json:"elapsed_ms,omitempty"`
	TotalCorrect  int             `json:"correct_count,omitempty"`
	TotalAttempts int             `json:"attempts,omitempty"`
	Phase         ConnectionPhase `json:"phase,omitempty"`
	Attempt       int             `json:"attempt,omitempty"`
	Message       string          `json:"message,omitempty"`
}
