package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h gin.HandlerFunc) (int, map[string]any) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", func(c *gin.Context) {
		c.Header(requestIDHeader, "req-1")
		h(c)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return w.Code, m
}

func TestOK(t *testing.T) {
	code, m := serve(t, func(c *gin.Context) { OK(c, gin.H{"status": "running"}) })
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, m["success"])
	assert.Equal(t, "req-1", m["request_id"])
	assert.Equal(t, map[string]any{"status": "running"}, m["data"])
	assert.NotContains(t, m, "error")
}

func TestFail(t *testing.T) {
	code, m := serve(t, func(c *gin.Context) {
		Fail(c, http.StatusConflict, CodeSessionActive, "a session is already active")
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, false, m["success"])
	assert.Equal(t, map[string]any{"code": CodeSessionActive, "message": "a session is already active"}, m["error"])
	assert.Equal(t, "req-1", m["request_id"])

	code, m = serve(t, func(c *gin.Context) { NotFound(c, "gone") })
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, CodeNotFound, m["error"].(map[string]any)["code"])
}
