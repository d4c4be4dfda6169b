package capture

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/signstream/streamer/internal/models"
)

// tickJitter is how far short of a full interval a tick may land after the previous
// capture and still count as on time. time.Ticker delivery is not exact.
const tickJitter = 2 * time.Millisecond

// Handler consumes one captured frame. It runs off the scheduling loop and may take
// longer than the interval; ticks that arrive meanwhile are dropped.
type Handler func(ctx context.Context, frame models.Frame)

// Stats counts scheduling outcomes since Start.
type Stats struct {
	Captured int64 `json:"captured"`
	Dropped  int64 `json:"dropped"`
	Failed   int64 `json:"failed"`
}

// Source is a throttled capture scheduler that owns a Camera while started.
type Source struct {
	camera   Camera
	interval time.Duration
	handler  Handler
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	handlers sync.WaitGroup

	active atomic.Bool
	busy   atomic.Bool

	captured atomic.Int64
	dropped  atomic.Int64
	failed   atomic.Int64
}

// NewSource creates a capture scheduler invoking handler at most once per interval.
func NewSource(camera Camera, interval time.Duration, handler Handler, logger *zap.Logger) *Source {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Source{
		camera:   camera,
		interval: interval,
		handler:  handler,
		logger:   logger,
		now:      time.Now,
	}
	s.active.Store(true)
	return s
}

// Start opens the camera and begins the capture loop. Calling Start on a running source is a no-op.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	if err := s.camera.Open(ctx); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.captured.Store(0)
	s.dropped.Store(0)
	s.failed.Store(0)

	go s.run(loopCtx, s.done)
	s.logger.Info("frame source started", zap.Duration("interval", s.interval))
	return nil
}

// Stop cancels the schedule, waits for an in-flight handler and releases the camera.
// No handler runs after Stop returns. Safe to call more than once.
func (s *Source) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
	<-s.done
	s.handlers.Wait()
	if err := s.camera.Close(); err != nil {
		s.logger.Warn("camera close failed", zap.Error(err))
	}
	st := s.Stats()
	s.logger.Info("frame source stopped",
		zap.Int64("captured", st.Captured),
		zap.Int64("dropped", st.Dropped),
		zap.Int64("failed", st.Failed),
	)
}

// SetActive gates capture without releasing the camera.
func (s *Source) SetActive(active bool) {
	s.active.Store(active)
}

// Active reports whether ticks currently produce captures.
func (s *Source) Active() bool { return s.active.Load() }

// Stats returns the scheduling counters.
func (s *Source) Stats() Stats {
	return Stats{
		Captured: s.captured.Load(),
		Dropped:  s.dropped.Load(),
		Failed:   s.failed.Load(),
	}
}

func (s *Source) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var last time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.active.Load() {
				continue
			}
			now := s.now()
			if s.early(last, now) {
				s.dropped.Add(1)
				continue
			}
			if !s.busy.CompareAndSwap(false, true) {
				s.dropped.Add(1)
				continue
			}
			last = now
			s.handlers.Add(1)
			go s.capture(ctx, now)
		}
	}
}

func (s *Source) capture(ctx context.Context, at time.Time) {
	defer s.handlers.Done()
	defer s.busy.Store(false)

	data, err := s.camera.Grab(ctx)
	if err != nil {
		s.failed.Add(1)
		s.logger.Debug("frame grab failed", zap.Error(&CaptureError{Op: "grab", Err: err}))
		return
	}
	if ctx.Err() != nil {
		return
	}
	s.captured.Add(1)
	s.handler(ctx, models.Frame{Data: data, CapturedAt: at})
}

// early reports whether now is too close to the previous capture at last.
func (s *Source) early(last, now time.Time) bool {
	if last.IsZero() {
		return false
	}
	allowance := min(tickJitter, s.interval/10)
	return now.Sub(last) < s.interval-allowance
}
