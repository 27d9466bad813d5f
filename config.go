package redis

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

// Defaults applied by NewClient to zero Config fields.
const (
	DefaultBufferSize           = 1024
	DefaultMaxIdle              = 16
	DefaultMaintenanceInterval  = 30 * time.Second
	DefaultLoadingRetryDelayMin = 20 * time.Millisecond
	DefaultLoadingRetryDelayMax = 200 * time.Millisecond
	DefaultLoadingRetryTimeout  = 30 * time.Second
)

// Config holds configuration for the client and its connection pool.
//
// Parsing connection URIs is left to the caller; Config only carries the
// resolved endpoint.
type Config struct {
	// Network is "tcp" or "unix". Defaults to "tcp".
	Network string

	// Address is host:port for tcp, or the socket path for unix.
	Address string

	// TLS enables TLS when not nil. An empty ServerName is filled with the
	// host of Address, or with the ServerName field below.
	TLS *tls.Config

	// ServerName overrides the host name used for TLS verification.
	ServerName string

	// ForceStreamPipe pumps plain sockets through a buffered stream instead
	// of vectored socket writes.
	ForceStreamPipe bool

	// BufferSize sizes the pipe buffers: reads happen in segments of half of
	// it, and each side pauses when it holds the full size.
	// Defaults to DefaultBufferSize.
	BufferSize int

	// Username and Password are sent with AUTH on each new connection.
	// AUTH is skipped when Password is empty.
	Username string
	Password string

	// Database is selected on each connection that is not already on it.
	Database int

	// MaxSize is the maximum number of connections. Zero means no limit.
	MaxSize int32

	// MaxIdle is the number of idle connections kept by maintenance.
	// Defaults to DefaultMaxIdle.
	MaxIdle int

	// MaintenanceInterval is how often idle connections are trimmed and
	// checked. Negative disables maintenance.
	// Defaults to DefaultMaintenanceInterval.
	MaintenanceInterval time.Duration

	// MaxConnLifetime is the maximum duration a connection can be reused.
	// Zero means no limit. The client maintenance enforces it, except with
	// NewCommonsPool where expired connections fail validation on borrow and
	// during the pool's eviction runs.
	MaxConnLifetime time.Duration

	// MaxConnIdleTime is the maximum duration a connection can be idle before being closed.
	// Zero means no limit.
	MaxConnIdleTime time.Duration

	// LoadingRetryDelayMin, LoadingRetryDelayMax and LoadingRetryTimeout
	// bound the exponential backoff applied while the server replies LOADING.
	LoadingRetryDelayMin time.Duration
	LoadingRetryDelayMax time.Duration
	LoadingRetryTimeout  time.Duration

	// UseScriptCache makes Eval send EVALSHA with scripts loaded once per
	// server, instead of sending the script source with EVAL.
	UseScriptCache bool

	// UseBufferPool makes transactions and subscriptions decode payloads
	// into pooled buffers.
	UseBufferPool bool

	// Dialer is the net.Dialer used to create new connections.
	// If nil, the default net.Dialer is used.
	Dialer *net.Dialer

	// Pool is the connection pool factory function.
	// If nil, uses the default channel-based pool.
	Pool PoolFactory

	// NewCircuitBreaker creates the circuit breaker guarding the server.
	// If nil, no circuit breaker is used.
	NewCircuitBreaker func(serverAddr string) CircuitBreaker

	// for testing purposes only
	constructor func(ctx context.Context) (*Connection, error)
}

func (c Config) withDefaults() Config {
	if c.Network == "" {
		c.Network = "tcp"
	}
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.MaxIdle <= 0 {
		c.MaxIdle = DefaultMaxIdle
	}
	if c.MaintenanceInterval == 0 {
		c.MaintenanceInterval = DefaultMaintenanceInterval
	}
	if c.LoadingRetryDelayMin <= 0 {
		c.LoadingRetryDelayMin = DefaultLoadingRetryDelayMin
	}
	if c.LoadingRetryDelayMax <= 0 {
		c.LoadingRetryDelayMax = DefaultLoadingRetryDelayMax
	}
	if c.LoadingRetryDelayMax < c.LoadingRetryDelayMin {
		c.LoadingRetryDelayMax = c.LoadingRetryDelayMin
	}
	if c.LoadingRetryTimeout <= 0 {
		c.LoadingRetryTimeout = DefaultLoadingRetryTimeout
	}
	if c.Dialer == nil {
		c.Dialer = &net.Dialer{}
	}
	if c.Pool == nil {
		c.Pool = NewChannelPool
	}
	return c
}

func (c *Config) serverName() string {
	if c.ServerName != "" {
		return c.ServerName
	}
	host, _, err := net.SplitHostPort(c.Address)
	if err != nil {
		return c.Address
	}
	return host
}
