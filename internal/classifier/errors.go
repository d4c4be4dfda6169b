package classifier

import (
	"errors"
	"fmt"
)

// ErrStale is the soft liveness signal: nothing arrived within the frame timeout.
var ErrStale = errors.New("classifier connection stale")

// ErrNotConnected is returned by operations that need a live connection.
var ErrNotConnected = errors.New("classifier not connected")

// ConnectError is a failed dial or handshake.
type ConnectError struct {
	Endpoint string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ProtocolError is an inbound message that could not be understood. It is dropped.
type ProtocolError struct {
	Raw string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ClosedError reports a connection that went away after it was established.
type ClosedError struct {
	Err error
}

func (e *ClosedError) Error() string {
	if e.Err == nil {
		return "connection closed"
	}
	return fmt.Sprintf("connection closed: %v", e.Err)
}

func (e *ClosedError) Unwrap() error { return e.Err }
