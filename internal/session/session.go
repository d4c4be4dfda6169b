package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/signstream/streamer/config"
	"github.com/signstream/streamer/internal/capture"
	"github.com/signstream/streamer/internal/classifier"
	"github.com/signstream/streamer/internal/models"
	"github.com/signstream/streamer/internal/stabilizer"
)

var (
	// ErrSessionEnded is returned by commands sent to a completed or aborted session.
	ErrSessionEnded = errors.New("session ended")
	// ErrClassifierUnavailable wraps a failed health probe or first connect.
	ErrClassifierUnavailable = errors.New("classifier unavailable")
	// ErrAlreadyStarted is returned by a second Start on the same session.
	ErrAlreadyStarted = errors.New("session already started")
)

const (
	inboxSize        = 64
	maxTranslations  = 50
	defaultRecordTTL = 10 * time.Second
)

// Connection is the classifier connection a session owns.
type Connection interface {
	Connect(ctx context.Context, endpoint string, cb classifier.Callbacks) error
	Disconnect()
	Send(p models.Payload) bool
	State() models.ConnectionState
}

// FrameEncoder turns raw frames into payloads.
type FrameEncoder interface {
	Encode(frame models.Frame) (models.Payload, error)
}

// Host is the classifier host's request/response surface.
type Host interface {
	Health(ctx context.Context) (*classifier.Health, error)
	StartPractice(ctx context.Context, lessonID string) error
	StopPractice(ctx context.Context) error
}

// ProgressStore records one outcome per finished session.
type ProgressStore interface {
	RecordSessionOutcome(ctx context.Context, outcome models.SessionOutcome) error
}

// Listener receives session events on the session goroutine. It must not block.
type Listener interface {
	PublishSessionEvent(ev models.SessionEvent)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ev models.SessionEvent)

func (f ListenerFunc) PublishSessionEvent(ev models.SessionEvent) { f(ev) }

// Config is the per-session tuning.
type Config struct {
	config.Tunables
	Endpoint      string
	HealthCheck   bool
	RecordTimeout time.Duration
}

// Deps are the collaborators a session drives. Camera, Encoder and Conn are required.
type Deps struct {
	Camera   capture.Camera
	Encoder  FrameEncoder
	Conn     Connection
	Host     Host
	Store    ProgressStore
	Listener Listener
	Logger   *zap.Logger
	// Now is the session clock, defaulting to time.Now.
	Now func() time.Time
}

// Request selects the session mode. An empty Sequence runs free translation.
type Request struct {
	Sequence []string `json:"sequence,omitempty"`
	LessonID string   `json:"lesson_id,omitempty"`
}

// message is one unit of work for the session goroutine. Observation messages carry
// the epoch they were posted in and are discarded once the epoch has moved on.
type message struct {
	epoch   uint64
	stamped bool
	apply   func()
}

// Session coordinates one translation or guided practice run. All state below the
// mutex-free line is owned by the run goroutine.
type Session struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
	now    func() time.Time
	source *capture.Source

	id      uuid.UUID
	inbox   chan message
	done    chan struct{}
	started atomic.Bool
	epoch   atomic.Uint64
	// lifecycleGen changes on every pause, resume and finish; a resume dial that
	// completes under an older generation tears itself down.
	lifecycleGen atomic.Uint64

	finalMu sync.Mutex
	final   *models.SessionSnapshot

	framesSent    atomic.Int64
	framesDropped atomic.Int64

	// run goroutine only
	state      models.SessionState
	stab       *stabilizer.Stabilizer
	foreground bool
	focused    bool
	active     bool
	ended      bool
	runCtx     context.Context
	cancelRun  context.CancelFunc
}

// New creates an idle session.
func New(cfg Config, deps Deps) *Session {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = defaultRecordTTL
	}
	if cfg.TargetDetections <= 0 {
		cfg.TargetDetections = 5
	}
	s := &Session{
		cfg:        cfg,
		deps:       deps,
		logger:     deps.Logger,
		now:        deps.Now,
		inbox:      make(chan message, inboxSize),
		done:       make(chan struct{}),
		foreground: true,
		focused:    true,
		stab: stabilizer.New(stabilizer.Config{
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			StabilityCount:      cfg.StabilityCount,
			Debounce:            cfg.Debounce,
			RestartCount:        cfg.RestartCount,
		}),
	}
	s.source = capture.NewSource(deps.Camera, cfg.CaptureInterval, s.onFrame, deps.Logger)
	return s
}

// Start acquires the camera, prepares the classifier host and connects. Only these
// setup failures are returned; once Start succeeds every later failure is handled
// inside the session.
func (s *Session) Start(ctx context.Context, req Request) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	expected := make([]string, 0, len(req.Sequence))
	for _, g := range req.Sequence {
		if g = strings.TrimSpace(g); g != "" {
			expected = append(expected, g)
		}
	}
	s.id = uuid.New()
	s.state = models.SessionState{
		ID:         s.id,
		Mode:       models.ModeTranslate,
		LessonID:   req.LessonID,
		Expected:   expected,
		PerGesture: make([]int, len(expected)),
		Status:     models.SessionStatusRunning,
		StartedAt:  s.now(),
	}
	if len(expected) > 0 {
		s.state.Mode = models.ModeGuided
	}
	s.logger = s.logger.With(zap.String("session_id", s.id.String()))
	s.runCtx, s.cancelRun = context.WithCancel(context.Background())

	// Messages posted during setup stay queued until the run goroutine starts, and
	// are discarded with the session if setup fails.
	fail := func(err error) error {
		s.source.Stop()
		s.deps.Conn.Disconnect()
		s.cancelRun()
		close(s.done)
		s.logger.Warn("session setup failed", zap.Error(err))
		return err
	}

	if err := s.source.Start(ctx); err != nil {
		return fail(err)
	}
	if s.deps.Host != nil && s.cfg.HealthCheck {
		if _, err := s.deps.Host.Health(ctx); err != nil {
			return fail(fmt.Errorf("%w: %v", ErrClassifierUnavailable, err))
		}
	}
	if s.deps.Host != nil && req.LessonID != "" {
		if err := s.deps.Host.StartPractice(ctx, req.LessonID); err != nil {
			return fail(err)
		}
	}
	s.active = true
	if err := s.deps.Conn.Connect(ctx, s.cfg.Endpoint, s.callbacks()); err != nil {
		if s.deps.Host != nil && req.LessonID != "" {
			s.stopPractice()
		}
		return fail(fmt.Errorf("%w: %v", ErrClassifierUnavailable, err))
	}

	go s.run()
	s.logger.Info("session started",
		zap.String("mode", string(s.state.Mode)),
		zap.Int("expected", len(expected)),
		zap.String("lesson_id", req.LessonID),
	)
	return nil
}

// ID returns the session id.
func (s *Session) ID() uuid.UUID { return s.id }

// Done is closed when the session has finished.
func (s *Session) Done() <-chan struct{} { return s.done }

// Retry resets the current gesture's count and the stabilizer.
func (s *Session) Retry() error {
	return s.command(func() {
		if s.state.Guided() && s.state.CurrentIndex < len(s.state.PerGesture) {
			s.state.PerGesture[s.state.CurrentIndex] = 0
		}
		s.epoch.Add(1)
		s.stab.Reset()
		s.logger.Debug("session retry", zap.Int("index", s.state.CurrentIndex))
	})
}

// Restart begins a new run inside the same session: every counter and the index go back to zero.
func (s *Session) Restart() error {
	return s.command(func() {
		s.state.CurrentIndex = 0
		s.state.PerGesture = make([]int, len(s.state.Expected))
		s.state.TotalAttempts = 0
		s.state.TotalCorrect = 0
		s.state.Translations = nil
		s.state.StartedAt = s.now()
		s.epoch.Add(1)
		s.stab.Reset()
		s.logger.Debug("session restarted")
	})
}

// SetLifecycle gates capture and the connection on foreground and focus.
func (s *Session) SetLifecycle(foreground, focused bool) error {
	return s.command(func() {
		s.foreground, s.focused = foreground, focused
		s.applyLifecycle()
	})
}

// Abort ends the session. When Abort returns no further event is published.
func (s *Session) Abort() error {
	return s.command(func() {
		s.finish(models.SessionStatusAborted)
	})
}

// Snapshot returns a copy of the session state and the connection phase.
func (s *Session) Snapshot() models.SessionSnapshot {
	var snap models.SessionSnapshot
	err := s.command(func() {
		snap = s.snapshotLocked()
	})
	if err != nil {
		s.finalMu.Lock()
		defer s.finalMu.Unlock()
		if s.final != nil {
			return *s.final
		}
	}
	return snap
}

// FrameStats reports capture and send counters.
func (s *Session) FrameStats() (capture.Stats, int64, int64) {
	return s.source.Stats(), s.framesSent.Load(), s.framesDropped.Load()
}

func (s *Session) snapshotLocked() models.SessionSnapshot {
	st := s.state.Clone()
	return models.SessionSnapshot{
		SessionState: st,
		Accuracy:     st.Accuracy(),
		Connection:   s.deps.Conn.State(),
		Active:       !s.ended && s.active,
	}
}

// command runs fn on the session goroutine and waits for it.
func (s *Session) command(fn func()) error {
	if !s.started.Load() {
		return ErrSessionEnded
	}
	reply := make(chan bool, 1)
	msg := message{apply: func() {
		if s.ended {
			reply <- false
			return
		}
		fn()
		reply <- true
	}}
	select {
	case s.inbox <- msg:
	case <-s.done:
		return ErrSessionEnded
	}
	select {
	case ok := <-reply:
		if !ok {
			return ErrSessionEnded
		}
		return nil
	case <-s.done:
		return ErrSessionEnded
	}
}

// post queues work from a connection goroutine. Stamped messages are dropped if the
// epoch moves on before they run.
func (s *Session) post(stamped bool, fn func()) {
	msg := message{epoch: s.epoch.Load(), stamped: stamped, apply: fn}
	select {
	case s.inbox <- msg:
	case <-s.done:
	}
}

func (s *Session) run() {
	defer close(s.done)
	for msg := range s.inbox {
		if msg.stamped && (s.ended || msg.epoch != s.epoch.Load()) {
			continue
		}
		msg.apply()
		if s.ended {
			s.drain()
			return
		}
	}
}

// drain answers commands that raced with the end of the session.
func (s *Session) drain() {
	for {
		select {
		case msg := <-s.inbox:
			if !msg.stamped {
				msg.apply()
			}
		default:
			return
		}
	}
}

func (s *Session) callbacks() classifier.Callbacks {
	return classifier.Callbacks{
		OnConnected: func() {
			s.post(false, func() { s.publishPhase(models.PhaseConnected, 0, "") })
		},
		OnDisconnected: func(err error) {
			s.post(false, func() {
				s.logger.Debug("classifier link down", zap.Error(err))
				s.publishPhase(models.PhaseDisconnected, 0, errMessage(err))
			})
		},
		OnReconnecting: func(attempt int, delay time.Duration) {
			s.post(false, func() {
				s.publishPhase(models.PhaseReconnecting, attempt, fmt.Sprintf("retrying in %s", delay))
			})
		},
		OnResult: func(obs models.Observation) {
			s.post(true, func() { s.observe(obs) })
		},
		OnStale: func(idle time.Duration) {
			s.post(false, func() {
				s.publish(models.SessionEvent{Type: models.EventStale, Message: classifier.ErrStale.Error(), ElapsedMs: idle.Milliseconds()})
			})
		},
		OnServerError: func(msg string) {
			s.post(false, func() {
				s.publish(models.SessionEvent{Type: models.EventServerError, Message: msg})
			})
		},
	}
}

func (s *Session) onFrame(ctx context.Context, frame models.Frame) {
	payload, err := s.deps.Encoder.Encode(frame)
	if err != nil {
		s.logger.Debug("dropping frame", zap.Error(err))
		return
	}
	if s.deps.Conn.Send(payload) {
		s.framesSent.Add(1)
	} else {
		s.framesDropped.Add(1)
	}
}

func (s *Session) observe(obs models.Observation) {
	if !s.active {
		return
	}
	ev, ok := s.stab.Observe(obs, s.now())
	if !ok {
		return
	}
	if !s.state.Guided() {
		s.state.Translations = append(s.state.Translations, ev.Label)
		if len(s.state.Translations) > maxTranslations {
			s.state.Translations = s.state.Translations[len(s.state.Translations)-maxTranslations:]
		}
		s.publish(models.SessionEvent{Type: models.EventTranslation, Label: ev.Label, Confidence: ev.Confidence})
		return
	}
	s.onConfirmed(ev)
}

func (s *Session) onConfirmed(ev models.ConfirmedEvent) {
	idx := s.state.CurrentIndex
	expected := s.state.Expected[idx]
	correct := strings.EqualFold(ev.Label, expected)

	s.state.TotalAttempts++
	if correct {
		s.state.TotalCorrect++
		s.state.PerGesture[idx]++
	}
	s.publish(models.SessionEvent{
		Type:       models.EventConfirmed,
		Label:      ev.Label,
		Expected:   expected,
		Correct:    &correct,
		Confidence: ev.Confidence,
		Index:      idx,
		Accuracy:   s.state.Accuracy(),
	})

	if s.state.PerGesture[idx] < s.cfg.TargetDetections {
		return
	}
	last := idx == len(s.state.Expected)-1
	if !last {
		// Results still queued for the mastered gesture must not count toward the next one.
		s.state.CurrentIndex++
		s.epoch.Add(1)
		s.stab.Reset()
	}
	s.publish(models.SessionEvent{
		Type:      models.EventGestureMastered,
		Label:     expected,
		Index:     idx,
		Accuracy:  s.state.Accuracy(),
		ElapsedMs: s.elapsedMs(),
	})
	if last {
		s.finish(models.SessionStatusCompleted)
	}
}

func (s *Session) applyLifecycle() {
	wants := !s.ended && s.foreground && s.focused
	if wants == s.active {
		return
	}
	s.active = wants
	gen := s.lifecycleGen.Add(1)
	s.epoch.Add(1)
	s.stab.Reset()

	if !wants {
		s.source.SetActive(false)
		s.deps.Conn.Disconnect()
		s.publishPhase(models.PhaseDisconnected, 0, "paused")
		s.logger.Info("session paused", zap.Bool("foreground", s.foreground), zap.Bool("focused", s.focused))
		return
	}

	s.source.SetActive(true)
	ctx, cb, log := s.runCtx, s.callbacks(), s.logger
	log.Info("session resumed")
	go func() {
		err := s.deps.Conn.Connect(ctx, s.cfg.Endpoint, cb)
		if s.lifecycleGen.Load() != gen {
			// Paused or finished while dialing.
			s.deps.Conn.Disconnect()
			return
		}
		if err != nil {
			log.Warn("resume connect failed, retrying in background", zap.Error(err))
		}
	}()
}

// finish ends the session: capture and connection stop, the outcome is recorded once
// and the final event is the last thing published.
func (s *Session) finish(status string) {
	if s.ended {
		return
	}
	now := s.now()
	s.epoch.Add(1)
	s.lifecycleGen.Add(1)
	s.source.Stop()
	s.deps.Conn.Disconnect()
	s.active = false

	s.state.Status = status
	s.state.EndedAt = &now
	mastered := 0
	for _, n := range s.state.PerGesture {
		if n >= s.cfg.TargetDetections {
			mastered++
		}
	}
	s.record(models.OutcomeFrom(s.state, mastered, now))
	if s.state.LessonID != "" && s.deps.Host != nil {
		s.stopPractice()
	}

	ev := models.SessionEvent{
		Type:          models.EventSessionAborted,
		Index:         s.state.CurrentIndex,
		Accuracy:      s.state.Accuracy(),
		ElapsedMs:     s.elapsedMs(),
		TotalCorrect:  s.state.TotalCorrect,
		TotalAttempts: s.state.TotalAttempts,
	}
	if status == models.SessionStatusCompleted {
		ev.Type = models.EventSessionComplete
	}
	s.publish(ev)

	snap := s.snapshotLocked()
	s.finalMu.Lock()
	s.final = &snap
	s.finalMu.Unlock()

	s.ended = true
	s.cancelRun()
	s.logger.Info("session finished",
		zap.String("status", status),
		zap.Int("attempts", s.state.TotalAttempts),
		zap.Int("correct", s.state.TotalCorrect),
		zap.Float64("accuracy", s.state.Accuracy()),
	)
}

func (s *Session) record(outcome models.SessionOutcome) {
	if s.deps.Store == nil {
		return
	}
	store, timeout, log := s.deps.Store, s.cfg.RecordTimeout, s.logger
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := store.RecordSessionOutcome(ctx, outcome); err != nil {
			log.Error("record session outcome failed", zap.String("session_id", outcome.SessionID.String()), zap.Error(err))
		}
	}()
}

func (s *Session) stopPractice() {
	host, timeout, log := s.deps.Host, s.cfg.RecordTimeout, s.logger
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := host.StopPractice(ctx); err != nil {
			log.Warn("stop practice mode failed", zap.Error(err))
		}
	}()
}

func (s *Session) publishPhase(phase models.ConnectionPhase, attempt int, msg string) {
	s.publish(models.SessionEvent{Type: models.EventConnection, Phase: phase, Attempt: attempt, Message: msg})
}

func (s *Session) publish(ev models.SessionEvent) {
	if s.ended || s.deps.Listener == nil {
		return
	}
	ev.SessionID = s.id
	ev.At = s.now()
	s.deps.Listener.PublishSessionEvent(ev)
}

func (s *Session) elapsedMs() int64 {
	return s.now().Sub(s.state.StartedAt).Milliseconds()
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
