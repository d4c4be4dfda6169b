package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/signstream/streamer/config"
	"github.com/signstream/streamer/internal/capture"
	"github.com/signstream/streamer/internal/classifier"
	"github.com/signstream/streamer/internal/encoder"
	"github.com/signstream/streamer/internal/models"
	"github.com/signstream/streamer/internal/session"
	"github.com/signstream/streamer/pkg/response"
)

type stubConn struct {
	fail atomic.Bool
}

func (c *stubConn) Connect(ctx context.Context, endpoint string, cb classifier.Callbacks) error {
	if c.fail.Load() {
		return errors.New("dial refused")
	}
	return nil
}
func (c *stubConn) Disconnect()              {}
func (c *stubConn) Send(models.Payload) bool { return true }
func (c *stubConn) State() models.ConnectionState {
	return models.ConnectionState{Phase: models.PhaseConnected}
}

type stubHost struct{ refuse bool }

func (h stubHost) Health(ctx context.Context) (*classifier.Health, error) {
	return &classifier.Health{Status: "healthy", ModelLoaded: true}, nil
}
func (h stubHost) StartPractice(ctx context.Context, lessonID string) error {
	if h.refuse {
		return classifier.ErrPracticeRefused
	}
	return nil
}
func (h stubHost) StopPractice(ctx context.Context) error { return nil }

type stubOutcomes struct{}

func (stubOutcomes) ListByLesson(ctx context.Context, lessonID string, limit int) ([]models.SessionOutcome, error) {
	return []models.SessionOutcome{{SessionID: uuid.New(), LessonID: lessonID, Status: models.SessionStatusCompleted}}, nil
}

type env struct {
	router *gin.Engine
	reg    *session.Registry
	conn   *stubConn
	camDir string
	host   *stubHost
}

type body struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   response.Error  `json:"error"`
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	e := &env{conn: &stubConn{}, host: &stubHost{}}
	logger := zaptest.NewLogger(t)
	cfg := session.Config{
		Tunables: config.Profiles[config.ProfilePractice],
		Endpoint: "ws://classifier.test/asl-ws",
	}
	cfg.CaptureInterval = 20 * time.Millisecond
	reg := session.NewRegistry(func() *session.Session {
		var cam capture.Camera = capture.NewSyntheticCamera(64, 48)
		if e.camDir != "" {
			cam = capture.NewDirCamera(e.camDir)
		}
		return session.New(cfg, session.Deps{
			Camera:  cam,
			Encoder: encoder.New(encoder.DefaultConfig()),
			Conn:    e.conn,
			Host:    e.host,
			Logger:  logger,
		})
	}, logger)
	t.Cleanup(reg.Stop)
	e.reg = reg

	e.router = gin.New()
	NewHandler(reg, e.host, stubOutcomes{}, logger).Register(e.router, nil)
	return e
}

func (e *env) do(t *testing.T, method, path, payload string) (int, body) {
	t.Helper()
	var req *http.Request
	if payload != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	var b body
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	}
	return w.Code, b
}

func snapshot(t *testing.T, b body) models.SessionSnapshot {
	t.Helper()
	var snap models.SessionSnapshot
	require.NoError(t, json.Unmarshal(b.Data, &snap))
	return snap
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	e := newEnv(t)

	code, _ := e.do(t, http.MethodGet, "/sessions/current", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, b := e.do(t, http.MethodPost, "/sessions", `{"lesson_id":"lesson_1","practice_mode":"single_sign","gesture_index":1}`)
	require.Equal(t, http.StatusCreated, code, b.Error.Message)
	snap := snapshot(t, b)
	assert.Equal(t, []string{"Thank You"}, snap.Expected)
	assert.Equal(t, models.ModeGuided, snap.Mode)
	assert.Equal(t, models.SessionStatusRunning, snap.Status)

	code, b = e.do(t, http.MethodPost, "/sessions", `{}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, response.CodeSessionActive, b.Error.Code)

	code, b = e.do(t, http.MethodPost, "/sessions/current/lifecycle", `{"foreground":true,"focused":false}`)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, snapshot(t, b).Active)

	code, _ = e.do(t, http.MethodPost, "/sessions/current/lifecycle", `{"foreground":true}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = e.do(t, http.MethodPost, "/sessions/current/retry", "")
	assert.Equal(t, http.StatusOK, code)
	code, _ = e.do(t, http.MethodPost, "/sessions/current/restart", "")
	assert.Equal(t, http.StatusOK, code)

	code, b = e.do(t, http.MethodDelete, "/sessions/current", "")
	require.Equal(t, http.StatusOK, code)
	aborted := snapshot(t, b)
	assert.Equal(t, models.SessionStatusAborted, aborted.Status)

	code, b = e.do(t, http.MethodGet, "/sessions/"+aborted.ID.String(), "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.SessionStatusAborted, snapshot(t, b).Status)

	code, _ = e.do(t, http.MethodGet, "/sessions/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStartErrors(t *testing.T) {
	t.Run("bad lesson", func(t *testing.T) {
		e := newEnv(t)
		code, _ := e.do(t, http.MethodPost, "/sessions", `{"lesson_id":"lesson_9"}`)
		assert.Equal(t, http.StatusBadRequest, code)
	})
	t.Run("bad practice mode", func(t *testing.T) {
		e := newEnv(t)
		code, _ := e.do(t, http.MethodPost, "/sessions", `{"lesson_id":"lesson_1","practice_mode":"loop"}`)
		assert.Equal(t, http.StatusBadRequest, code)
	})
	t.Run("camera denied", func(t *testing.T) {
		e := newEnv(t)
		e.camDir = t.TempDir() + "/missing"
		code, b := e.do(t, http.MethodPost, "/sessions", `{}`)
		assert.Equal(t, http.StatusForbidden, code)
		assert.Equal(t, response.CodeCameraDenied, b.Error.Code)
	})
	t.Run("classifier down", func(t *testing.T) {
		e := newEnv(t)
		e.conn.fail.Store(true)
		code, b := e.do(t, http.MethodPost, "/sessions", `{"sequence":["A"]}`)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, response.CodeClassifierUnavailable, b.Error.Code)

		// The slot is free again.
		e.conn.fail.Store(false)
		code, _ = e.do(t, http.MethodPost, "/sessions", `{"sequence":["A"]}`)
		assert.Equal(t, http.StatusCreated, code)
	})
	t.Run("practice refused", func(t *testing.T) {
		e := newEnv(t)
		e.host.refuse = true
		code, b := e.do(t, http.MethodPost, "/sessions", `{"lesson_id":"lesson_2"}`)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, response.CodePracticeRefused, b.Error.Code)
	})
}

func TestCatalogAndHealth(t *testing.T) {
	e := newEnv(t)

	code, b := e.do(t, http.MethodGet, "/lessons", "")
	require.Equal(t, http.StatusOK, code)
	var ls []struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(b.Data, &ls))
	assert.Len(t, ls, 5)

	code, _ = e.do(t, http.MethodGet, "/lessons/lesson_3/outcomes", "")
	assert.Equal(t, http.StatusOK, code)
	code, _ = e.do(t, http.MethodGet, "/lessons/nope/outcomes", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, b = e.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(b.Data), `"healthy"`)
}

func TestHubCommands(t *testing.T) {
	e := newEnv(t)
	code, b := e.do(t, http.MethodPost, "/sessions", `{"sequence":["A","B"]}`)
	require.Equal(t, http.StatusCreated, code)
	id := snapshot(t, b).ID

	cmds := HubCommands(e.reg)
	assert.NoError(t, cmds(uuid.Nil, "retry", nil))
	assert.NoError(t, cmds(id, "lifecycle", json.RawMessage(`{"foreground":false,"focused":true}`)))
	assert.Error(t, cmds(id, "lifecycle", json.RawMessage(`{}`)))
	assert.Error(t, cmds(uuid.New(), "retry", nil))
	assert.Error(t, cmds(id, "dance", nil))
	assert.NoError(t, cmds(id, "abort", nil))
}
