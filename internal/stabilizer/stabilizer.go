package stabilizer

import (
	"time"

	"github.com/signstream/streamer/internal/models"
)

// Config tunes the confirmation policy.
type Config struct {
	// ConfidenceThreshold must be strictly exceeded for an observation to count.
	ConfidenceThreshold float64
	// StabilityCount is the number of qualifying observations needed to confirm.
	StabilityCount int
	// Debounce is the minimum gap between two confirmations of the same label.
	Debounce time.Duration
	// RestartCount resets the confirmed label's own count, so repeats must re-accumulate.
	RestartCount bool
}

// DefaultConfig returns the translation preset.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.4,
		StabilityCount:      2,
		Debounce:            2500 * time.Millisecond,
	}
}

// Stabilizer turns noisy per-frame observations into sparse confirmed events.
// It is not safe for concurrent use; the owning session serializes access.
type Stabilizer struct {
	cfg   Config
	state models.StabilizerState
}

// New creates a stabilizer. A StabilityCount below 1 is treated as 1.
func New(cfg Config) *Stabilizer {
	if cfg.StabilityCount < 1 {
		cfg.StabilityCount = 1
	}
	s := &Stabilizer{cfg: cfg}
	s.Reset()
	return s
}

// Observe feeds one observation taken at now and reports a confirmation, if any.
func (s *Stabilizer) Observe(obs models.Observation, now time.Time) (models.ConfirmedEvent, bool) {
	if !obs.Detected || !obs.Meaningful() || obs.Confidence <= s.cfg.ConfidenceThreshold {
		return models.ConfirmedEvent{}, false
	}
	label := obs.Label
	s.state.Counts[label]++
	if s.state.Counts[label] < s.cfg.StabilityCount {
		return models.ConfirmedEvent{}, false
	}
	if !s.debounceElapsed(label, now) {
		return models.ConfirmedEvent{}, false
	}

	s.state.LastLabel = label
	s.state.LastConfirmedAt = now
	s.state.ConfirmedAt[label] = now
	for l := range s.state.Counts {
		if l != label {
			s.state.Counts[l] = 0
		}
	}
	if s.cfg.RestartCount {
		s.state.Counts[label] = 0
	}
	return models.ConfirmedEvent{Label: label, Confidence: obs.Confidence, ConfirmedAt: now}, true
}

// debounceElapsed applies the last-label rule, plus a per-label window so that
// flicker such as A,B,A cannot re-confirm A inside its own window.
func (s *Stabilizer) debounceElapsed(label string, now time.Time) bool {
	if label == s.state.LastLabel && now.Sub(s.state.LastConfirmedAt) <= s.cfg.Debounce {
		return false
	}
	if at, ok := s.state.ConfirmedAt[label]; ok && now.Sub(at) <= s.cfg.Debounce {
		return false
	}
	return true
}

// Reset clears all counts and the last confirmation.
func (s *Stabilizer) Reset() {
	s.state = models.StabilizerState{
		Counts:      make(map[string]int),
		ConfirmedAt: make(map[string]time.Time),
	}
}

// State returns a copy of the current bookkeeping.
func (s *Stabilizer) State() models.StabilizerState {
	out := models.StabilizerState{
		LastLabel:       s.state.LastLabel,
		LastConfirmedAt: s.state.LastConfirmedAt,
		Counts:          make(map[string]int, len(s.state.Counts)),
		ConfirmedAt:     make(map[string]time.Time, len(s.state.ConfirmedAt)),
	}
	for k, v := range s.state.Counts {
		out.Counts[k] = v
	}
	for k, v := range s.state.ConfirmedAt {
		out.ConfirmedAt[k] = v
	}
	return out
}

// Config returns the active configuration.
func (s *Stabilizer) Config() Config { return s.cfg }
