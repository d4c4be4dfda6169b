package models

import "time"

// ConnectionPhase is the lifecycle phase of the classifier connection.
type ConnectionPhase string

// Connection phases.
const (
	PhaseDisconnected ConnectionPhase = "disconnected"
	PhaseConnecting   ConnectionPhase = "connecting"
	PhaseConnected    ConnectionPhase = "connected"
	PhaseReconnecting ConnectionPhase = "reconnecting"
)

// ConnectionState is a snapshot of the classifier connection.
type ConnectionState struct {
	Phase        ConnectionPhase `json:"phase"`
	LastActivity time.Time       `json:"last_activity,omitempty"`
	Attempt      int             `json:"attempt,omitempty"`
}
