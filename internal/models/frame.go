package models

import "time"

// Frame is one captured image, handed straight to the encoder and never retained.
type Frame struct {
	Data       []byte    `json:"-"`
	CapturedAt time.Time `json:"captured_at"`
}

// Payload is an encoded frame ready for the classifier connection.
// Data is a data URL (data:image/jpeg;base64,...).
type Payload struct {
	Data       string    `json:"data"`
	CapturedAt time.Time `json:"captured_at"`
	SentAt     time.Time `json:"sent_at"`
}
