package redis

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/pior/redis/pipe"
	"github.com/pior/redis/resp"
)

// Connection is a single connection to a server: one transport, its duplex
// pipe, and the session state that must survive across commands (AUTH and
// SELECT).
//
// A Connection is used by one caller at a time; the pool enforces it.
type Connection struct {
	netConn   net.Conn
	pipe      *pipe.Pipe
	createdAt time.Time

	connected     atomic.Bool
	authenticated bool
	database      int
}

// NewConnection wraps an established network connection.
// The socket is pumped directly.
func NewConnection(netConn net.Conn, bufferSize int) *Connection {
	return newConnection(netConn, pipe.NewSocketPipe(netConn, pipe.DefaultOptions(bufferSize)))
}

// NewStreamConnection wraps an established network connection behind a
// buffered stream.
func NewStreamConnection(netConn net.Conn, bufferSize int) *Connection {
	stream := bufio.NewReadWriter(bufio.NewReaderSize(netConn, bufferSize), bufio.NewWriterSize(netConn, bufferSize))
	return newConnection(netConn, pipe.NewStreamPipe(stream, netConn, pipe.DefaultOptions(bufferSize)))
}

func newConnection(netConn net.Conn, p *pipe.Pipe) *Connection {
	c := &Connection{
		netConn:   netConn,
		pipe:      p,
		createdAt: time.Now(),
	}
	c.connected.Store(true)
	return c
}

// dialConnection opens a connection according to the config: resolve and
// dial, disable Nagle on TCP, optionally wrap in TLS, then pick the pump.
func dialConnection(ctx context.Context, cfg *Config) (*Connection, error) {
	netConn, err := cfg.Dialer.DialContext(ctx, cfg.Network, cfg.Address)
	if err != nil {
		return nil, &resp.ConnectionError{Op: "dial", Err: err}
	}

	if tcp, ok := netConn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	opts := pipe.DefaultOptions(cfg.BufferSize)

	if cfg.TLS != nil {
		tlsConfig := cfg.TLS.Clone()
		if tlsConfig.ServerName == "" {
			tlsConfig.ServerName = cfg.serverName()
		}
		tlsConn := tls.Client(netConn, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = netConn.Close()
			return nil, &resp.ConnectionError{Op: "handshake", Err: err}
		}
		return newConnection(netConn, pipe.NewStreamPipe(tlsConn, nil, opts)), nil
	}

	if cfg.ForceStreamPipe {
		return NewStreamConnection(netConn, cfg.BufferSize), nil
	}

	return newConnection(netConn, pipe.NewSocketPipe(netConn, opts)), nil
}

// Connected reports whether the connection can still be used: it was not
// marked disconnected and its pipe has not completed.
func (c *Connection) Connected() bool {
	return c.connected.Load() && c.pipe.Err() == nil
}

// MarkDisconnected irreversibly flags the connection as unusable.
func (c *Connection) MarkDisconnected() {
	c.connected.Store(false)
}

// Authenticated reports whether AUTH succeeded on this connection.
func (c *Connection) Authenticated() bool {
	return c.authenticated
}

// Database returns the last database selected on this connection.
func (c *Connection) Database() int {
	return c.database
}

// CreatedAt returns when the connection was established.
func (c *Connection) CreatedAt() time.Time {
	return c.createdAt
}

// RemoteAddr returns the server address.
func (c *Connection) RemoteAddr() net.Addr {
	return c.netConn.RemoteAddr()
}

// Write encodes a request into the outbound buffer without sending it.
func (c *Connection) Write(args []resp.Value) error {
	if err := resp.WriteCommand(c.pipe.Output(), args); err != nil {
		if errors.Is(err, resp.ErrInvalidSimpleString) {
			return err // nothing was written
		}
		return c.wrapError("write", err)
	}
	return nil
}

// Flush sends the buffered requests.
func (c *Connection) Flush(ctx context.Context) error {
	return c.wrapError("write", c.pipe.Output().Flush(ctx))
}

// Send writes and flushes one request.
func (c *Connection) Send(ctx context.Context, args []resp.Value) error {
	if err := c.Write(args); err != nil {
		return err
	}
	return c.Flush(ctx)
}

// Receive reads one reply frame. Payloads are rented from bufs; a nil bufs
// allocates them.
func (c *Connection) Receive(ctx context.Context, bufs resp.BufferPool) (resp.Value, error) {
	v, err := resp.Read(ctx, c.pipe.Input(), bufs)
	if err != nil {
		return resp.Value{}, c.wrapError("read", err)
	}
	return v, nil
}

// RoundTrip sends one request and reads its reply.
func (c *Connection) RoundTrip(ctx context.Context, args []resp.Value, bufs resp.BufferPool) (resp.Value, error) {
	if err := c.Send(ctx, args); err != nil {
		return resp.Value{}, err
	}
	return c.Receive(ctx, bufs)
}

// Close closes the pipe and the transport. It is safe to call on a broken
// connection and more than once.
func (c *Connection) Close() error {
	c.MarkDisconnected()
	err := c.pipe.Close()
	if cerr := c.netConn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) && err == nil {
		err = cerr
	}
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

// wrapError classifies an I/O error. Cancellation passes through unchanged,
// malformed frames stay protocol errors, and everything else becomes a
// connection error. All but cancellation mark the connection disconnected.
func (c *Connection) wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if resp.IsCanceled(err) {
		return err
	}

	c.MarkDisconnected()

	var perr *resp.ProtocolError
	if errors.As(err, &perr) {
		return err
	}
	var cerr *resp.ConnectionError
	if errors.As(err, &cerr) {
		return err
	}
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return &resp.ConnectionError{Op: op, Err: err}
}
