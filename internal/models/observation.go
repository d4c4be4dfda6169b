package models

import (
	"strings"
	"time"
)

// Landmark is one hand keypoint reported by the classifier, in normalized image coordinates.
type Landmark struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Observation is one classifier response for one frame.
type Observation struct {
	Label         string     `json:"gesture"`
	Confidence    float64    `json:"confidence"`
	Detected      bool       `json:"hand_detected"`
	ServerTime    float64    `json:"timestamp,omitempty"`
	ReceivedAt    time.Time  `json:"received_at"`
	Landmarks     []Landmark `json:"landmarks,omitempty"`
	PracticeMode  bool       `json:"practice_mode,omitempty"`
	PracticeLevel string     `json:"practice_level,omitempty"`
	// Round-trip diagnostics reported by the classifier, in milliseconds.
	NetworkLatencyMs float64 `json:"network_latency_ms,omitempty"`
	ProcessingMs     float64 `json:"processing_ms,omitempty"`
}

// Meaningful reports whether the label names an actual gesture.
func (o Observation) Meaningful() bool {
	switch strings.ToLower(strings.TrimSpace(o.Label)) {
	case "", "none", "unknown":
		return false
	}
	return true
}

// ConfirmedEvent is a stabilized gesture the rest of the system treats as said.
type ConfirmedEvent struct {
	Label       string    `json:"label"`
	Confidence  float64   `json:"confidence"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// StabilizerState is the debounce bookkeeping of a stabilizer.
type StabilizerState struct {
	LastLabel       string               `json:"last_label,omitempty"`
	LastConfirmedAt time.Time            `json:"last_confirmed_at,omitempty"`
	Counts          map[string]int       `json:"counts"`
	ConfirmedAt     map[string]time.Time `json:"confirmed_at"`
}
