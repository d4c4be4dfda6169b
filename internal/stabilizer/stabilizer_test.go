package stabilizer

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signstream/streamer/internal/models"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func obs(label string, conf float64) models.Observation {
	return models.Observation{Label: label, Confidence: conf, Detected: true}
}

type step struct {
	obs models.Observation
	at  time.Duration
}

func run(s *Stabilizer, steps []step) []models.ConfirmedEvent {
	var out []models.ConfirmedEvent
	for _, st := range steps {
		if ev, ok := s.Observe(st.obs, t0.Add(st.at)); ok {
			out = append(out, ev)
		}
	}
	return out
}

func labels(events []models.ConfirmedEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Label)
	}
	return out
}

func TestObserve(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		steps []step
		want  []string
	}{
		{
			name:  "single observation confirms at stability one",
			cfg:   Config{ConfidenceThreshold: 0.6, StabilityCount: 1, Debounce: time.Second},
			steps: []step{{obs("Hello", 0.8), 0}},
			want:  []string{"Hello"},
		},
		{
			name: "repeat inside debounce is suppressed",
			cfg:  Config{ConfidenceThreshold: 0.6, StabilityCount: 1, Debounce: time.Second},
			steps: []step{
				{obs("Hello", 0.8), 0},
				{obs("Hello", 0.8), 500 * time.Millisecond},
			},
			want: []string{"Hello"},
		},
		{
			name: "repeat after debounce confirms again",
			cfg:  Config{ConfidenceThreshold: 0.6, StabilityCount: 1, Debounce: time.Second},
			steps: []step{
				{obs("Hello", 0.8), 0},
				{obs("Hello", 0.8), time.Second},
				{obs("Hello", 0.8), 1001 * time.Millisecond},
			},
			want: []string{"Hello", "Hello"},
		},
		{
			name: "different label confirms immediately",
			cfg:  Config{ConfidenceThreshold: 0.4, StabilityCount: 1, Debounce: 3 * time.Second},
			steps: []step{
				{obs("Hello", 0.9), 0},
				{obs("Yes", 0.9), 100 * time.Millisecond},
			},
			want: []string{"Hello", "Yes"},
		},
		{
			name: "threshold comparison is strict",
			cfg:  Config{ConfidenceThreshold: 0.7, StabilityCount: 1, Debounce: time.Second},
			steps: []step{
				{obs("Hello", 0.7), 0},
				{obs("Yes", 0.71), 10 * time.Millisecond},
			},
			want: []string{"Yes"},
		},
		{
			name: "no detection and placeholder labels are ignored",
			cfg:  Config{ConfidenceThreshold: 0.1, StabilityCount: 1, Debounce: time.Second},
			steps: []step{
				{models.Observation{Label: "Hello", Confidence: 0.9}, 0},
				{obs("None", 0.9), 10 * time.Millisecond},
				{obs("unknown", 0.9), 20 * time.Millisecond},
				{obs("UNKNOWN", 0.9), 30 * time.Millisecond},
				{obs("", 0.9), 40 * time.Millisecond},
			},
			want: nil,
		},
		{
			name: "stability two needs two qualifying observations",
			cfg:  Config{ConfidenceThreshold: 0.4, StabilityCount: 2, Debounce: time.Second},
			steps: []step{
				{obs("Hello", 0.9), 0},
				{obs("Yes", 0.9), 10 * time.Millisecond},
				{obs("Hello", 0.3), 20 * time.Millisecond},
				{obs("Hello", 0.9), 30 * time.Millisecond},
			},
			want: []string{"Hello"},
		},
		{
			name: "flicker back to a label stays inside its own window",
			cfg:  Config{ConfidenceThreshold: 0.4, StabilityCount: 1, Debounce: time.Second},
			steps: []step{
				{obs("A", 0.9), 0},
				{obs("B", 0.9), 100 * time.Millisecond},
				{obs("A", 0.9), 200 * time.Millisecond},
				{obs("A", 0.9), 1100 * time.Millisecond},
			},
			want: []string{"A", "B", "A"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := labels(run(New(tt.cfg), tt.steps))
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfirmationResetsOtherCounts(t *testing.T) {
	s := New(Config{ConfidenceThreshold: 0.4, StabilityCount: 2, Debounce: time.Second})

	_, ok := s.Observe(obs("Yes", 0.9), t0)
	require.False(t, ok)
	_, ok = s.Observe(obs("Hello", 0.9), t0.Add(10*time.Millisecond))
	require.False(t, ok)
	ev, ok := s.Observe(obs("Hello", 0.9), t0.Add(20*time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, "Hello", ev.Label)
	assert.Equal(t, 0.9, ev.Confidence)
	assert.Equal(t, t0.Add(20*time.Millisecond), ev.ConfirmedAt)

	st := s.State()
	assert.Equal(t, 0, st.Counts["Yes"])
	assert.Equal(t, 2, st.Counts["Hello"])
	assert.Equal(t, "Hello", st.LastLabel)

	// Yes lost its earlier count, so one more is not enough.
	_, ok = s.Observe(obs("Yes", 0.9), t0.Add(30*time.Millisecond))
	assert.False(t, ok)
}

func TestRestartCount(t *testing.T) {
	s := New(Config{ConfidenceThreshold: 0.7, StabilityCount: 2, Debounce: 800 * time.Millisecond, RestartCount: true})

	got := labels(run(s, []step{
		{obs("Hello", 0.9), 0},
		{obs("Hello", 0.9), 100 * time.Millisecond},
		{obs("Hello", 0.9), time.Second},
		{obs("Hello", 0.9), 1100 * time.Millisecond},
	}))
	assert.Equal(t, []string{"Hello", "Hello"}, got)
	assert.Equal(t, 0, s.State().Counts["Hello"])
}

func TestReset(t *testing.T) {
	s := New(Config{ConfidenceThreshold: 0.4, StabilityCount: 1, Debounce: time.Minute})
	_, ok := s.Observe(obs("Hello", 0.9), t0)
	require.True(t, ok)

	s.Reset()
	st := s.State()
	assert.Empty(t, st.LastLabel)
	assert.Empty(t, st.Counts)
	assert.True(t, st.LastConfirmedAt.IsZero())

	_, ok = s.Observe(obs("Hello", 0.9), t0.Add(time.Second))
	assert.True(t, ok, "reset must clear the debounce window")
}

func TestNewClampsStabilityCount(t *testing.T) {
	s := New(Config{ConfidenceThreshold: 0.4})
	assert.Equal(t, 1, s.Config().StabilityCount)
}

// Random streams must never break the debounce or stability guarantees.
func TestObserveProperties(t *testing.T) {
	vocab := []string{"Hello", "Yes", "No", "None", "Thank You"}
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 200; trial++ {
		cfg := Config{
			ConfidenceThreshold: 0.3 + rng.Float64()*0.5,
			StabilityCount:      1 + rng.Intn(3),
			Debounce:            time.Duration(100+rng.Intn(2000)) * time.Millisecond,
			RestartCount:        rng.Intn(2) == 0,
		}
		s := New(cfg)
		since := map[string]int{}
		lastAt := map[string]time.Time{}
		now := t0

		for i := 0; i < 300; i++ {
			now = now.Add(time.Duration(rng.Intn(400)) * time.Millisecond)
			o := models.Observation{
				Label:      vocab[rng.Intn(len(vocab))],
				Confidence: rng.Float64(),
				Detected:   rng.Intn(10) > 0,
			}
			qualifies := o.Detected && o.Meaningful() && o.Confidence > cfg.ConfidenceThreshold
			if qualifies {
				since[o.Label]++
			}
			ev, ok := s.Observe(o, now)
			if !ok {
				continue
			}
			require.True(t, qualifies)
			require.GreaterOrEqual(t, since[ev.Label], cfg.StabilityCount)
			if prev, seen := lastAt[ev.Label]; seen {
				require.Greater(t, now.Sub(prev), cfg.Debounce, "label %s re-confirmed inside debounce", ev.Label)
			}
			lastAt[ev.Label] = now
			for l := range since {
				if l != ev.Label || cfg.RestartCount {
					since[l] = 0
				}
			}
		}
	}
}
