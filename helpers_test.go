package redis

import (
	"bufio"
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pior/redis/internal/testutils"
	"github.com/pior/redis/resp"
)

func newTestClient(t *testing.T, addr string, configure ...func(*Config)) *Client {
	t.Helper()

	cfg := Config{
		Address:             addr,
		MaintenanceInterval: -1,
	}
	for _, f := range configure {
		f(&cfg)
	}

	client, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func newServerAndClient(t *testing.T, configure ...func(*Config)) (*testutils.Server, *Client) {
	t.Helper()
	srv := testutils.NewServer(t)
	return srv, newTestClient(t, srv.Addr(), configure...)
}

// startScriptedServer accepts connections on a local port and runs handle
// for each of them.
func startScriptedServer(t *testing.T, handle func(conn net.Conn, requests *requestReader)) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				handle(conn, newRequestReader(conn))
			}()
		}
	}()

	return ln.Addr().String()
}

// requestReader decodes requests on the server side of a scripted server.
type requestReader struct {
	r *bufio.Reader
}

func (s *requestReader) Read(ctx context.Context, min int) ([]byte, error) {
	return s.r.Peek(max(min, s.r.Buffered()))
}

func (s *requestReader) Advance(n int) {
	_, _ = s.r.Discard(n)
}

func newRequestReader(conn net.Conn) *requestReader {
	return &requestReader{r: bufio.NewReader(conn)}
}

// Next returns the next request as text arguments, or nil when the client
// went away.
func (s *requestReader) Next() []string {
	v, err := resp.Read(context.Background(), s, nil)
	if err != nil {
		return nil
	}
	args := make([]string, v.Len())
	for i, item := range v.Items() {
		args[i] = item.Text()
	}
	return args
}
