package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrSessionActive is returned when a session is already running or starting.
var ErrSessionActive = errors.New("a session is already active")

// ErrNoSession is returned when no session matches the request.
var ErrNoSession = errors.New("no active session")

// Registry owns at most one running session, since sessions share the camera (thread-safe).
type Registry struct {
	mu         sync.RWMutex
	current    *Session
	last       *Session
	starting   bool
	newSession func() *Session
	logger     *zap.Logger
}

// NewRegistry creates a registry that builds sessions with newSession.
func NewRegistry(newSession func() *Session, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{newSession: newSession, logger: logger}
}

// Start creates and starts a session unless one is already active.
func (reg *Registry) Start(ctx context.Context, req Request) (*Session, error) {
	reg.mu.Lock()
	if reg.starting || reg.current != nil {
		reg.mu.Unlock()
		return nil, ErrSessionActive
	}
	reg.starting = true
	reg.mu.Unlock()

	s := reg.newSession()
	err := s.Start(ctx, req)

	reg.mu.Lock()
	reg.starting = false
	if err != nil {
		reg.mu.Unlock()
		return nil, err
	}
	reg.current = s
	reg.last = s
	reg.mu.Unlock()

	go reg.watch(s)
	return s, nil
}

func (reg *Registry) watch(s *Session) {
	<-s.Done()
	reg.mu.Lock()
	if reg.current == s {
		reg.current = nil
	}
	reg.mu.Unlock()
	reg.logger.Debug("session released", zap.String("session_id", s.ID().String()))
}

// Current returns the running session, if any.
func (reg *Registry) Current() (*Session, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.current, reg.current != nil
}

// Lookup returns the running session, or the most recent finished one, by id.
func (reg *Registry) Lookup(id uuid.UUID) (*Session, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	if reg.current != nil && reg.current.ID() == id {
		return reg.current, nil
	}
	if reg.last != nil && reg.last.ID() == id {
		return reg.last, nil
	}
	return nil, ErrNoSession
}

// Stop aborts the running session, if any.
func (reg *Registry) Stop() {
	reg.mu.RLock()
	s := reg.current
	reg.mu.RUnlock()
	if s != nil {
		_ = s.Abort()
		<-s.Done()
	}
}
