package redis

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pior/redis/internal/testutils"
	"github.com/pior/redis/resp"
)

func TestConnection_RoundTrip(t *testing.T) {
	conn := NewConnection(testutils.NewConnectionMock("+PONG\r\n"), 1024)
	defer conn.Close()

	v, err := conn.RoundTrip(context.Background(), NewPingCommand().Args, nil)
	require.NoError(t, err)
	require.Equal(t, resp.KindSimpleString, v.Kind())
	require.Equal(t, "PONG", v.Text())
}

func TestConnection_PipelinedReplies(t *testing.T) {
	conn := NewConnection(testutils.NewConnectionMock(":1\r\n", "$3\r\nbar\r\n", "$-1\r\n"), 1024)
	defer conn.Close()

	ctx := context.Background()
	require.NoError(t, conn.Write(NewSetCommand("foo", []byte("bar"), SetOptions{}).Args))
	require.NoError(t, conn.Write(NewGetCommand("foo").Args))
	require.NoError(t, conn.Write(NewGetCommand("missing").Args))
	require.NoError(t, conn.Flush(ctx))

	v, err := conn.Receive(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), v.Int())

	v, err = conn.Receive(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, "bar", v.Text())

	v, err = conn.Receive(ctx, nil)
	require.NoError(t, err)
	require.True(t, v.IsNull())
}

func TestConnection_ErrorReplyKeepsConnection(t *testing.T) {
	ctx := context.Background()
	client, server := net.Pipe()
	conn := NewConnection(client, 1024)
	defer conn.Close()

	go func() {
		requests := newRequestReader(server)
		for requests.Next() != nil {
			_, _ = server.Write([]byte("-WRONGTYPE Operation against a key holding the wrong kind of value\r\n"))
		}
	}()

	v, err := conn.RoundTrip(ctx, NewGetCommand("list").Args, nil)
	require.NoError(t, err)
	require.True(t, v.IsError())
	require.Equal(t, "WRONGTYPE", v.ErrorType())
	require.True(t, conn.Connected())
}

func TestConnection_TruncatedReply(t *testing.T) {
	conn := NewConnection(testutils.NewConnectionMock("$5\r\nab"), 1024)
	defer conn.Close()

	_, err := conn.Receive(context.Background(), nil)
	require.Error(t, err)
	require.True(t, IsConnectionError(err))
	require.True(t, resp.ShouldCloseConnection(err))
	require.False(t, conn.Connected())
}

func TestConnection_EndOfStream(t *testing.T) {
	conn := NewConnection(testutils.NewConnectionMock(), 1024)
	defer conn.Close()

	_, err := conn.Receive(context.Background(), nil)

	var cerr *resp.ConnectionError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, "read", cerr.Op)
	require.False(t, conn.Connected())
}

func TestConnection_MalformedReply(t *testing.T) {
	conn := NewConnection(testutils.NewConnectionMock("?what\r\n"), 1024)
	defer conn.Close()

	_, err := conn.Receive(context.Background(), nil)

	var perr *resp.ProtocolError
	require.ErrorAs(t, err, &perr)
	require.False(t, conn.Connected())
}

func TestConnection_CanceledReceive(t *testing.T) {
	client, server := net.Pipe()
	conn := NewConnection(client, 1024)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := conn.Receive(ctx, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.True(t, conn.Connected(), "a cancelled read leaves the connection usable")

	go func() {
		_, _ = server.Write([]byte("+OK\r\n"))
	}()

	v, err := conn.Receive(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "OK", v.Text())
}

func TestConnection_InvalidSimpleString(t *testing.T) {
	conn := NewConnection(testutils.NewConnectionMock(), 1024)
	defer conn.Close()

	err := conn.Write([]resp.Value{resp.BulkStringFromString("ECHO"), resp.SimpleString("a\r\nb")})
	require.ErrorIs(t, err, resp.ErrInvalidSimpleString)
	require.True(t, conn.Connected())
}

func TestConnection_Close(t *testing.T) {
	mock := testutils.NewConnectionMock()
	conn := NewConnection(mock, 1024)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	require.True(t, mock.Closed())
	require.False(t, conn.Connected())

	_, err := conn.RoundTrip(context.Background(), NewPingCommand().Args, nil)
	require.Error(t, err)
	require.True(t, resp.ShouldCloseConnection(err))
}

func TestConnection_WireFormat(t *testing.T) {
	constructors := map[string]func(net.Conn, int) *Connection{
		"socket": NewConnection,
		"stream": NewStreamConnection,
	}

	for name, newConn := range constructors {
		t.Run(name, func(t *testing.T) {
			client, server := net.Pipe()
			conn := newConn(client, 64)
			defer conn.Close()

			received := make(chan []string, 1)
			go func() {
				requests := newRequestReader(server)
				received <- requests.Next()
				_, _ = server.Write([]byte("+OK\r\n"))
			}()

			value := make([]byte, 200) // larger than the buffers
			for i := range value {
				value[i] = 'x'
			}

			ok, err := Execute(context.Background(), connExecutor{conn}, NewSetCommand("key", value, SetOptions{
				Expiration: 1500 * time.Millisecond,
				Condition:  IfNotExists,
			}))
			require.NoError(t, err)
			require.True(t, ok)

			require.Equal(t, []string{"SET", "key", string(value), "PX", "1500", "NX"}, <-received)
		})
	}
}

// connExecutor runs commands directly on a connection.
type connExecutor struct {
	conn *Connection
}

func (e connExecutor) Execute(ctx context.Context, args []resp.Value, bufs resp.BufferPool) (resp.Value, error) {
	v, err := e.conn.RoundTrip(ctx, args, bufs)
	if err != nil {
		return resp.Value{}, err
	}
	if v.IsError() {
		return resp.Value{}, newServerError(v)
	}
	return v, nil
}

func TestConnection_DialError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := Config{Address: addr}.withDefaults()
	_, err = dialConnection(context.Background(), &cfg)

	var cerr *resp.ConnectionError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, "dial", cerr.Op)
	require.True(t, IsConnectionError(err))
}
