// Package response writes the control API's JSON envelope.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// requestIDHeader is set by the request logger before handlers run.
const requestIDHeader = "X-Request-ID"

// Error codes. The UI switches on these, not on the message text.
const (
	CodeInvalidRequest        = "invalid_request"
	CodeNotFound              = "not_found"
	CodeSessionActive         = "session_active"
	CodeSessionEnded          = "session_ended"
	CodeCameraDenied          = "camera_denied"
	CodeClassifierUnavailable = "classifier_unavailable"
	CodePracticeRefused       = "practice_refused"
	CodeInternal              = "internal"
)

// Body is the control API envelope.
type Body struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *Error      `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// Error describes a failed request.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OK sends 200 with data.
func OK(c *gin.Context, data interface{}) {
	write(c, http.StatusOK, Body{Success: true, Data: data})
}

// Created sends 201 with data.
func Created(c *gin.Context, data interface{}) {
	write(c, http.StatusCreated, Body{Success: true, Data: data})
}

// Fail sends an error envelope with the given status and code.
func Fail(c *gin.Context, status int, code, msg string) {
	write(c, status, Body{Error: &Error{Code: code, Message: msg}})
}

// BadRequest sends 400.
func BadRequest(c *gin.Context, msg string) {
	Fail(c, http.StatusBadRequest, CodeInvalidRequest, msg)
}

// NotFound sends 404.
func NotFound(c *gin.Context, msg string) {
	Fail(c, http.StatusNotFound, CodeNotFound, msg)
}

// Internal sends 500. The message should not leak internals.
func Internal(c *gin.Context, msg string) {
	Fail(c, http.StatusInternalServerError, CodeInternal, msg)
}

func write(c *gin.Context, status int, b Body) {
	b.RequestID = c.Writer.Header().Get(requestIDHeader)
	c.JSON(status, b)
}
