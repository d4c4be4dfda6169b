package capture

import (
	"errors"
	"fmt"
)

// ErrPermissionDenied is returned by Camera.Open when the capture resource cannot be acquired.
var ErrPermissionDenied = errors.New("capture permission denied")

// CaptureError wraps a failure to grab or encode a single frame. The frame is dropped.
type CaptureError struct {
	Op  string
	Err error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture %s: %v", e.Op, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }
