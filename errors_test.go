package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pior/redis/resp"
)

func TestServerError(t *testing.T) {
	err := newServerError(resp.Error("WRONGTYPE", "Operation against a key holding the wrong kind of value"))

	require.Equal(t, "redis: WRONGTYPE Operation against a key holding the wrong kind of value", err.Error())
	require.False(t, resp.ShouldCloseConnection(err))

	wrapped := fmt.Errorf("loading user: %w", err)
	require.True(t, IsServerError(wrapped, "WRONGTYPE"))
	require.True(t, IsServerError(wrapped, ""))
	require.False(t, IsServerError(wrapped, "ERR"))
	require.False(t, IsConnectionError(wrapped))
}

func TestConnectionErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		connection bool
		close      bool
	}{
		{"nil", nil, false, false},
		{"connection", &resp.ConnectionError{Op: "read", Err: io.ErrUnexpectedEOF}, true, true},
		{"eof", io.EOF, true, true},
		{"protocol", &resp.ProtocolError{Message: "bad"}, false, true},
		{"server", &ServerError{Type: "ERR"}, false, false},
		{"canceled", context.Canceled, false, true},
		{"transaction canceled", ErrTransactionCanceled, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.connection, IsConnectionError(tt.err))
			require.Equal(t, tt.close, resp.ShouldCloseConnection(tt.err))
		})
	}
}

func TestTransactionCanceledIsDistinct(t *testing.T) {
	require.False(t, IsServerError(ErrTransactionCanceled, ""))
	require.False(t, errors.Is(ErrTransactionCanceled, ErrTransactionDone))
}
