package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionOutcome is the record handed to the progress store when a session ends.
type SessionOutcome struct {
	SessionID     uuid.UUID   `json:"session_id"`
	Mode          SessionMode `json:"mode"`
	LessonID      string      `json:"lesson_id,omitempty"`
	Status        string      `json:"status"`
	Expected      []string    `json:"expected,omitempty"`
	PerGesture    []int       `json:"per_gesture,omitempty"`
	Mastered      int         `json:"mastered"`
	TotalAttempts int         `json:"total_attempts"`
	TotalCorrect  int         `json:"total_correct"`
	Accuracy      float64     `json:"accuracy"`
	StartedAt     time.Time   `json:"started_at"`
	EndedAt       time.Time   `json:"ended_at"`
	ElapsedMs     int64       `json:"elapsed_ms"`
}

// OutcomeFrom builds the outcome record for a finished session.
func OutcomeFrom(s SessionState, mastered int, endedAt time.Time) SessionOutcome {
	return SessionOutcome{
		SessionID:     s.ID,
		Mode:          s.Mode,
		LessonID:      s.LessonID,
		Status:        s.Status,
		Expected:      append([]string(nil), s.Expected...),
		PerGesture:    append([]int(nil), s.PerGesture...),
		Mastered:      mastered,
		TotalAttempts: s.TotalAttempts,
		TotalCorrect:  s.TotalCorrect,
		Accuracy:      s.Accuracy(),
		StartedAt:     s.StartedAt,
		EndedAt:       endedAt,
		ElapsedMs:     endedAt.Sub(s.StartedAt).Milliseconds(),
	}
}
