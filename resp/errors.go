package resp

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Error types for protocol operations.
// These errors tell the caller whether the connection that produced them can
// still be trusted for the next request.

// ProtocolError represents a malformed frame: an unknown type marker, a
// length header that is not a decimal number, or a bulk payload that is not
// followed by CRLF.
//
// The read that produced it is always abandoned. The transport itself may
// still be open, but framing can no longer be trusted.
//
// Connection handling: CLOSE connection
type ProtocolError struct {
	Message string
	Err     error // Underlying error, if any
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return "resp: protocol error: " + e.Message + ": " + e.Err.Error()
	}
	return "resp: protocol error: " + e.Message
}

// Unwrap returns the underlying error for error chain inspection
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns true - framing state is lost
func (e *ProtocolError) ShouldCloseConnection() bool {
	return true
}

// ConnectionError wraps transport failures: socket errors, and the stream
// ending before a frame was complete.
//
// Common causes:
//   - Connection reset or refused
//   - Server closed the socket mid-response
//   - Write to a broken pipe
//
// Connection handling: Connection is already broken, CLOSE and RECONNECT
type ConnectionError struct {
	Op  string // Operation that failed (read, write, dial...)
	Err error  // Underlying error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("resp: connection error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns true - connection errors mean connection is broken
func (e *ConnectionError) ShouldCloseConnection() bool {
	return true
}

// ErrorWithConnectionState is implemented by errors that know whether the
// connection they came from should be closed.
type ErrorWithConnectionState interface {
	error
	ShouldCloseConnection() bool
}

// ShouldCloseConnection reports whether err requires closing the connection
// it was observed on.
//
// Returns false for nil and for errors whose ShouldCloseConnection method
// says so (server errors). Every other error, including context cancellation
// in the middle of a request, closes the connection: a response may still be
// in flight and would be paired with the next request.
func ShouldCloseConnection(err error) bool {
	if err == nil {
		return false
	}

	var e ErrorWithConnectionState
	if errors.As(err, &e) {
		return e.ShouldCloseConnection()
	}

	// Unknown error type - be conservative and close connection
	return true
}

// IsConnectionError reports whether err is a transport failure, either a
// ConnectionError or a raw end-of-stream condition.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// IsCanceled reports whether err comes from context cancellation or deadline.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ErrInvalidSimpleString is returned by Write for a simple string or error
// value containing CR or LF.
var ErrInvalidSimpleString = errors.New("resp: simple string contains CR or LF")

// ErrUnexpectedKind is returned by conversions when a Value does not have a
// shape convertible to the requested type.
var ErrUnexpectedKind = errors.New("resp: unexpected value kind")

// ErrNil is returned by conversions of the null value to a non-optional type.
var ErrNil = errors.New("resp: nil value")
