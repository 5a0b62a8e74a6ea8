package transport

import (
	"errors"
	"fmt"
)

// Common transport errors
var (
	// ErrPoolExhausted indicates a free pool had no buffer. Callers treat it
	// as backpressure.
	ErrPoolExhausted = errors.New("buffer pool exhausted")

	// ErrTransportClosed indicates the transport has been closed
	ErrTransportClosed = errors.New("transport closed")

	// ErrNotHeld indicates a buffer was released or queued while not owned by the caller
	ErrNotHeld = errors.New("buffer not held by caller")

	// ErrWrongPool indicates an operation named a pool it cannot act on
	ErrWrongPool = errors.New("wrong pool")

	// ErrBufferOverflow indicates data does not fit a buffer
	ErrBufferOverflow = errors.New("buffer overflow")

	// ErrNoDestination indicates a send without an explicit or default destination
	ErrNoDestination = errors.New("no destination address")

	// ErrInvalidOptions indicates unusable transport options
	ErrInvalidOptions = errors.New("invalid transport options")
)

// OpError represents a socket error with additional context
type OpError struct {
	Op   string // operation that caused the error
	Addr string // address if relevant
	Err  error  // underlying error
}

func (e *OpError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("transport %s %s: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func newOpError(op, addr string, err error) *OpError {
	return &OpError{Op: op, Addr: addr, Err: err}
}
