package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionMode selects how confirmed events are consumed.
type SessionMode string

const (
	ModeTranslate SessionMode = "translate"
	ModeGuided    SessionMode = "guided"
)

// Session statuses.
const (
	SessionStatusRunning   = "running"
	SessionStatusCompleted = "completed"
	SessionStatusAborted   = "aborted"
)

// SessionState is one practice or translation run. Accuracy is a fraction in [0,1].
type SessionState struct {
	ID            uuid.UUID   `json:"id"`
	Mode          SessionMode `json:"mode"`
	LessonID      string      `json:"lesson_id,omitempty"`
	Expected      []string    `json:"expected,omitempty"`
	CurrentIndex  int         `json:"current_index"`
	PerGesture    []int       `json:"per_gesture,omitempty"`
	TotalAttempts int         `json:"total_attempts"`
	TotalCorrect  int         `json:"total_correct"`
	Status        string      `json:"status"`
	StartedAt     time.Time   `json:"started_at"`
	EndedAt       *time.Time  `json:"ended_at,omitempty"`
	Translations  []string    `json:"translations,omitempty"`
}

// Accuracy returns TotalCorrect/TotalAttempts, or 0 with no attempts.
func (s SessionState) Accuracy() float64 {
	if s.TotalAttempts == 0 {
		return 0
	}
	return float64(s.TotalCorrect) / float64(s.TotalAttempts)
}

// Guided reports whether the session tracks an expected sequence.
func (s SessionState) Guided() bool { return len(s.Expected) > 0 }

// Clone returns a deep copy safe to hand outside the owning goroutine.
func (s SessionState) Clone() SessionState {
	c := s
	c.Expected = append([]string(nil), s.Expected...)
	c.PerGesture = append([]int(nil), s.PerGesture...)
	c.Translations = append([]string(nil), s.Translations...)
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	return c
}

// SessionSnapshot is the externally visible view of the active session.
type SessionSnapshot struct {
	SessionState
	Accuracy   float64         `json:"accuracy"`
	Connection ConnectionState `json:"connection"`
	Active     bool            `json:"active"`
}
