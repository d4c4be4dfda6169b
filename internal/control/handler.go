// Package control exposes the running streamer over HTTP: session commands, the lesson
// catalog, outcome history and the UI event socket.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/signstream/streamer/internal/capture"
	"github.com/signstream/streamer/internal/classifier"
	"github.com/signstream/streamer/internal/lessons"
	"github.com/signstream/streamer/internal/models"
	"github.com/signstream/streamer/internal/realtime"
	"github.com/signstream/streamer/internal/session"
	"github.com/signstream/streamer/pkg/response"
)

// StartRequest is the body for POST /sessions.
type StartRequest struct {
	Sequence     []string `json:"sequence"`
	LessonID     string   `json:"lesson_id"`
	PracticeMode string   `json:"practice_mode" binding:"omitempty,oneof=single_sign full_level"`
	GestureIndex int      `json:"gesture_index"`
}

// LifecycleRequest is the body for POST /sessions/current/lifecycle.
type LifecycleRequest struct {
	Foreground *bool `json:"foreground" binding:"required"`
	Focused    *bool `json:"focused" binding:"required"`
}

// OutcomeLister reads stored outcomes.
type OutcomeLister interface {
	ListByLesson(ctx context.Context, lessonID string, limit int) ([]models.SessionOutcome, error)
}

// HealthChecker probes the classifier host.
type HealthChecker interface {
	Health(ctx context.Context) (*classifier.Health, error)
}

// Handler handles the control API.
type Handler struct {
	registry *session.Registry
	host     HealthChecker // optional
	outcomes OutcomeLister // optional
	logger   *zap.Logger
}

// NewHandler creates a control handler. host and outcomes may be nil.
func NewHandler(registry *session.Registry, host HealthChecker, outcomes OutcomeLister, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{registry: registry, host: host, outcomes: outcomes, logger: logger}
}

// Register mounts the routes on r.
func (h *Handler) Register(r gin.IRouter, hub *realtime.Hub) {
	r.GET("/health", h.Health)
	r.GET("/lessons", h.ListLessons)
	r.GET("/lessons/:id/outcomes", h.ListOutcomes)

	s := r.Group("/sessions")
	{
		s.POST("", h.Start)
		s.GET("/current", h.Current)
		s.POST("/current/retry", h.Retry)
		s.POST("/current/restart", h.Restart)
		s.POST("/current/lifecycle", h.Lifecycle)
		s.DELETE("/current", h.Abort)
		s.GET("/:id", h.GetByID)
	}

	if hub != nil {
		r.GET("/ws", realtime.ServeWs(hub, h.logger))
	}
}

// Health handles GET /health. The classifier probe is reported, not required.
func (h *Handler) Health(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if _, ok := h.registry.Current(); ok {
		body["session_active"] = true
	}
	if h.host != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if hh, err := h.host.Health(ctx); err != nil {
			body["classifier"] = gin.H{"status": "unreachable", "error": err.Error()}
		} else {
			body["classifier"] = hh
		}
	}
	response.OK(c, body)
}

// ListLessons handles GET /lessons.
func (h *Handler) ListLessons(c *gin.Context) {
	response.OK(c, lessons.All())
}

// ListOutcomes handles GET /lessons/:id/outcomes.
func (h *Handler) ListOutcomes(c *gin.Context) {
	if h.outcomes == nil {
		response.NotFound(c, "outcome history disabled")
		return
	}
	if _, err := lessons.Get(c.Param("id")); err != nil {
		response.NotFound(c, err.Error())
		return
	}
	list, err := h.outcomes.ListByLesson(c.Request.Context(), c.Param("id"), 20)
	if err != nil {
		h.logger.Error("list outcomes failed", zap.Error(err))
		response.Internal(c, "failed to list outcomes")
		return
	}
	if list == nil {
		list = []models.SessionOutcome{}
	}
	response.OK(c, list)
}

// Start handles POST /sessions.
func (h *Handler) Start(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	sr := session.Request{Sequence: req.Sequence, LessonID: req.LessonID}
	if req.LessonID != "" && len(req.Sequence) == 0 {
		seq, err := lessons.Sequence(req.LessonID, req.PracticeMode, req.GestureIndex)
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		sr.Sequence = seq
	}

	s, err := h.registry.Start(c.Request.Context(), sr)
	if err != nil {
		h.startFailed(c, err)
		return
	}
	response.Created(c, s.Snapshot())
}

func (h *Handler) startFailed(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrSessionActive):
		response.Fail(c, http.StatusConflict, response.CodeSessionActive, err.Error())
	case errors.Is(err, capture.ErrPermissionDenied):
		response.Fail(c, http.StatusForbidden, response.CodeCameraDenied, err.Error())
	case errors.Is(err, classifier.ErrPracticeRefused):
		response.Fail(c, http.StatusServiceUnavailable, response.CodePracticeRefused, err.Error())
	case errors.Is(err, session.ErrClassifierUnavailable):
		response.Fail(c, http.StatusServiceUnavailable, response.CodeClassifierUnavailable, err.Error())
	default:
		h.logger.Error("session start failed", zap.Error(err))
		response.Internal(c, "failed to start session")
	}
}

// Current handles GET /sessions/current.
func (h *Handler) Current(c *gin.Context) {
	s, ok := h.registry.Current()
	if !ok {
		response.NotFound(c, session.ErrNoSession.Error())
		return
	}
	response.OK(c, s.Snapshot())
}

// GetByID handles GET /sessions/:id, including the most recently finished session.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	s, err := h.registry.Lookup(id)
	if err != nil {
		response.NotFound(c, err.Error())
		return
	}
	response.OK(c, s.Snapshot())
}

// Retry handles POST /sessions/current/retry.
func (h *Handler) Retry(c *gin.Context) {
	h.withCurrent(c, (*session.Session).Retry)
}

// Restart handles POST /sessions/current/restart.
func (h *Handler) Restart(c *gin.Context) {
	h.withCurrent(c, (*session.Session).Restart)
}

// Abort handles DELETE /sessions/current.
func (h *Handler) Abort(c *gin.Context) {
	h.withCurrent(c, (*session.Session).Abort)
}

// Lifecycle handles POST /sessions/current/lifecycle.
func (h *Handler) Lifecycle(c *gin.Context) {
	var req LifecycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	h.withCurrent(c, func(s *session.Session) error {
		return s.SetLifecycle(*req.Foreground, *req.Focused)
	})
}

func (h *Handler) withCurrent(c *gin.Context, fn func(*session.Session) error) {
	s, ok := h.registry.Current()
	if !ok {
		response.NotFound(c, session.ErrNoSession.Error())
		return
	}
	if err := fn(s); err != nil {
		if errors.Is(err, session.ErrSessionEnded) {
			response.Fail(c, http.StatusConflict, response.CodeSessionEnded, err.Error())
			return
		}
		response.Internal(c, err.Error())
		return
	}
	response.OK(c, s.Snapshot())
}

// HubCommands routes commands from UI sockets to the running session.
func HubCommands(registry *session.Registry) realtime.CommandHandler {
	return func(sessionID uuid.UUID, command string, data json.RawMessage) error {
		s, ok := registry.Current()
		if !ok {
			return session.ErrNoSession
		}
		if sessionID != uuid.Nil && sessionID != s.ID() {
			return fmt.Errorf("session %s is not running", sessionID)
		}
		switch command {
		case "retry":
			return s.Retry()
		case "restart":
			return s.Restart()
		case "abort":
			return s.Abort()
		case "lifecycle":
			var req LifecycleRequest
			if err := json.Unmarshal(data, &req); err != nil || req.Foreground == nil || req.Focused == nil {
				return errors.New("lifecycle needs foreground and focused")
			}
			return s.SetLifecycle(*req.Foreground, *req.Focused)
		default:
			return fmt.Errorf("unknown command %q", command)
		}
	}
}
