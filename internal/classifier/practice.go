package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrPracticeRefused is returned when the classifier host will not enter practice mode.
var ErrPracticeRefused = errors.New("classifier refused practice mode")

// Health is the classifier host's /health body.
type Health struct {
	Status        string `json:"status"`
	ModelLoaded   bool   `json:"model_loaded"`
	PracticeMode  bool   `json:"practice_mode"`
	PracticeLevel string `json:"practice_level,omitempty"`
}

type hostReply struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HostClient talks to the classifier host's plain HTTP endpoints.
type HostClient struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewHostClient creates a client for baseURL (e.g. http://localhost:8001).
func NewHostClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HostClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HostClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Health probes GET /health.
func (h *HostClient) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := h.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	if out.Status != "" && out.Status != "healthy" {
		return &out, fmt.Errorf("classifier unhealthy: %s", out.Status)
	}
	return &out, nil
}

// StartPractice switches the classifier host into lesson-specific practice mode.
func (h *HostClient) StartPractice(ctx context.Context, lessonID string) error {
	var reply hostReply
	err := h.do(ctx, http.MethodPost, "/practice/start", map[string]string{"lesson_id": lessonID}, &reply)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPracticeRefused, err)
	}
	if reply.Status != "success" {
		return fmt.Errorf("%w: %s", ErrPracticeRefused, reply.Message)
	}
	h.logger.Info("classifier practice mode started", zap.String("lesson_id", lessonID))
	return nil
}

// StopPractice returns the classifier host to general translation.
func (h *HostClient) StopPractice(ctx context.Context) error {
	if err := h.do(ctx, http.MethodPost, "/practice/stop", nil, nil); err != nil {
		return fmt.Errorf("stop practice: %w", err)
	}
	return nil
}

func (h *HostClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := h.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
