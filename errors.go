package redis

import (
	"errors"

	"github.com/pior/redis/resp"
)

var (
	// ErrClientClosed is returned by operations on a closed Client.
	ErrClientClosed = errors.New("redis: client closed")

	// ErrPoolClosed is returned by Acquire on a closed pool.
	ErrPoolClosed = errors.New("redis: pool closed")

	// ErrTransactionCanceled resolves every queued result of a transaction
	// that was aborted by a watched key change, discarded, or failed to send.
	// It never wraps a server or transport error.
	ErrTransactionCanceled = errors.New("redis: transaction canceled")

	// ErrTransactionDone is returned when queuing into, or completing, a
	// transaction that already completed or was discarded.
	ErrTransactionDone = errors.New("redis: transaction already completed")

	// ErrTransactionPending is returned by Future.Result before the
	// transaction completed.
	ErrTransactionPending = errors.New("redis: transaction not completed")

	// ErrSubscriptionClosed is returned by operations on a subscription that
	// was unsubscribed or closed.
	ErrSubscriptionClosed = errors.New("redis: subscription closed")
)

// ServerError is an error reply from the server, other than the ones
// recovered from automatically (LOADING and NOSCRIPT, until their retry
// budget is exhausted).
//
// Connection handling: KEEP connection - the reply was read completely
type ServerError struct {
	Type    string // First word of the reply: ERR, WRONGTYPE, LOADING...
	Message string
}

func (e *ServerError) Error() string {
	return "redis: " + e.Type + " " + e.Message
}

// ShouldCloseConnection returns false - server errors don't affect connection state
func (e *ServerError) ShouldCloseConnection() bool {
	return false
}

// newServerError converts an error frame.
func newServerError(v resp.Value) *ServerError {
	return &ServerError{Type: v.ErrorType(), Message: v.ErrorMessage()}
}

// IsServerError reports whether err is a server reply of the given type.
// An empty typ matches any server error.
func IsServerError(err error, typ string) bool {
	var se *ServerError
	if !errors.As(err, &se) {
		return false
	}
	return typ == "" || se.Type == typ
}

// IsConnectionError reports whether err severed the connection it happened
// on. Retrying on a new connection may succeed.
func IsConnectionError(err error) bool {
	return resp.IsConnectionError(err)
}
