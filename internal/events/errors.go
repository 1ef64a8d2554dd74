package events

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when a frame is sent while the channel is not open.
	// The frame is not queued.
	ErrNotConnected = errors.New("not connected")

	// ErrSendBufferFull is returned when the outbound queue of an open channel is saturated.
	ErrSendBufferFull = errors.New("send buffer full")

	// ErrMessageParse marks an inbound frame that could not be decoded.
	ErrMessageParse = errors.New("message parse error")

	// ErrMaxReconnectsExceeded is the terminal condition after the retry budget is spent.
	ErrMaxReconnectsExceeded = errors.New("max reconnection attempts reached")

	// ErrClientClosed is returned by facade calls after teardown.
	ErrClientClosed = errors.New("client closed")

	// ErrNotStarted is returned by facade calls made before Start.
	ErrNotStarted = errors.New("client not started")
)

// TransportError wraps a failure reported by the underlying socket.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("websocket %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
