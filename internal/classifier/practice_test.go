package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestHostClient(t *testing.T) {
	var lesson string
	var stopped bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			_, _ = w.Write([]byte(`{"status":"healthy","model_loaded":true,"practice_mode":false}`))
		case "/practice/start":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			lesson = body["lesson_id"]
			if lesson == "lesson_9" {
				// The host answers refusals as a 200 with an error tuple.
				_, _ = w.Write([]byte(`[{"status":"error","message":"Level model not found"},404]`))
				return
			}
			_, _ = w.Write([]byte(`{"status":"success","level_info":{}}`))
		case "/practice/stop":
			stopped = true
			_, _ = w.Write([]byte(`{"status":"success"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	hc := NewHostClient(srv.URL+"/", time.Second, zaptest.NewLogger(t))
	ctx := context.Background()

	h, err := hc.Health(ctx)
	require.NoError(t, err)
	assert.True(t, h.ModelLoaded)

	require.NoError(t, hc.StartPractice(ctx, "lesson_2"))
	assert.Equal(t, "lesson_2", lesson)

	err = hc.StartPractice(ctx, "lesson_9")
	assert.True(t, errors.Is(err, ErrPracticeRefused))

	require.NoError(t, hc.StopPractice(ctx))
	assert.True(t, stopped)
}

func TestHostClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	hc := NewHostClient(srv.URL, time.Second, nil)
	_, err := hc.Health(context.Background())
	assert.Error(t, err)

	err = hc.StartPractice(context.Background(), "lesson_1")
	assert.ErrorIs(t, err, ErrPracticeRefused)
}
