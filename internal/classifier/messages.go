package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/signstream/streamer/internal/models"
)

// FrameMessage is the outbound frame envelope.
type FrameMessage struct {
	Frame           string  `json:"frame"`
	Timestamp       float64 `json:"timestamp"`        // unix seconds
	ClientTimestamp int64   `json:"client_timestamp"` // unix millis
}

// ConfigMessage is sent once after each successful handshake.
type ConfigMessage struct {
	Type                string  `json:"type"`
	FastMode            bool    `json:"fast_mode"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
}

// NewConfigMessage builds the session config message.
func NewConfigMessage(fastMode bool, threshold float64) *ConfigMessage {
	return &ConfigMessage{Type: "config", FastMode: fastMode, ConfidenceThreshold: threshold}
}

func newFrameMessage(p models.Payload) FrameMessage {
	at := p.SentAt
	if at.IsZero() {
		at = time.Now()
	}
	return FrameMessage{
		Frame:           p.Data,
		Timestamp:       float64(at.UnixNano()) / float64(time.Second),
		ClientTimestamp: at.UnixMilli(),
	}
}

type inboundMessage struct {
	Error           *string           `json:"error"`
	HandDetected    *bool             `json:"hand_detected"`
	Gesture         *string           `json:"gesture"`
	Confidence      *float64          `json:"confidence"`
	Timestamp       float64           `json:"timestamp"`
	Landmarks       []models.Landmark `json:"landmarks"`
	PracticeMode    bool              `json:"practice_mode"`
	PracticeLevel   *string           `json:"practice_level"`
	NetworkLatency  float64           `json:"network_latency_ms"`
	ProcessingTimes *struct {
		TotalMs float64 `json:"total_ms"`
	} `json:"processing_times"`
}

// parseInbound decodes one server message into either an observation or a server error string.
func parseInbound(data []byte) (obs models.Observation, serverErr string, err error) {
	var m inboundMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return obs, "", &ProtocolError{Raw: truncate(data), Err: err}
	}
	if m.Error != nil {
		return obs, *m.Error, nil
	}
	if m.HandDetected == nil && m.Gesture == nil {
		return obs, "", &ProtocolError{Raw: truncate(data), Err: errors.New("missing hand_detected and gesture")}
	}
	if m.Confidence != nil && (*m.Confidence < 0 || *m.Confidence > 1) {
		return obs, "", &ProtocolError{Raw: truncate(data), Err: fmt.Errorf("confidence %v out of range", *m.Confidence)}
	}

	if m.HandDetected != nil {
		obs.Detected = *m.HandDetected
	}
	if m.Gesture != nil {
		obs.Label = *m.Gesture
	}
	if m.Confidence != nil {
		obs.Confidence = *m.Confidence
	}
	obs.ServerTime = m.Timestamp
	obs.Landmarks = m.Landmarks
	obs.PracticeMode = m.PracticeMode
	if m.PracticeLevel != nil {
		obs.PracticeLevel = *m.PracticeLevel
	}
	obs.NetworkLatencyMs = m.NetworkLatency
	if m.ProcessingTimes != nil {
		obs.ProcessingMs = m.ProcessingTimes.TotalMs
	}
	return obs, "", nil
}

// ignoredServerErrors are per-frame complaints that never reach the user.
var ignoredServerErrors = []string{
	"no frame data",
}

func isIgnoredServerError(msg string) bool {
	lower := strings.ToLower(msg)
	for _, s := range ignoredServerErrors {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func truncate(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
