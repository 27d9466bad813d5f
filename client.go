package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/pior/redis/resp"
)

// Client executes commands against one server through a connection pool.
//
// Each command runs on a connection checked out for its whole duration:
// requests and replies are never multiplexed on a connection. A Client is
// safe for concurrent use.
type Client struct {
	*Commands
	*BatchCommands

	config         Config
	pool           Pool
	circuitBreaker CircuitBreaker // nil if not configured
	scripts        *scriptCache

	closed          atomic.Bool
	closeOnce       sync.Once
	stopMaintenance chan struct{}
	maintenanceDone chan struct{}

	stats *clientStatsCollector
}

var (
	_ Querier  = (*Client)(nil)
	_ Executor = (*Client)(nil)
)

// NewClient creates a client. No connection is opened until the first
// command.
func NewClient(config Config) (*Client, error) {
	if config.Address == "" && config.constructor == nil {
		return nil, errors.New("redis: no address provided")
	}
	cfg := config.withDefaults()

	client := &Client{
		config:          cfg,
		scripts:         newScriptCache(),
		stopMaintenance: make(chan struct{}),
		maintenanceDone: make(chan struct{}),
		stats:           newClientStatsCollector(),
	}
	client.Commands = NewCommands(client)
	client.BatchCommands = NewBatchCommands(client)

	constructor := cfg.constructor
	if constructor == nil {
		constructor = func(ctx context.Context) (*Connection, error) {
			return dialConnection(ctx, &client.config)
		}
	}

	pool, err := cfg.Pool(constructor, PoolOptions{
		MaxSize:             cfg.MaxSize,
		MaxIdle:             cfg.MaxIdle,
		MaxConnIdleTime:     cfg.MaxConnIdleTime,
		MaintenanceInterval: cfg.MaintenanceInterval,
		MaxConnLifetime:     cfg.MaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("redis: creating pool: %w", err)
	}
	client.pool = pool

	if cfg.NewCircuitBreaker != nil {
		client.circuitBreaker = cfg.NewCircuitBreaker(cfg.Address)
	}

	if cfg.MaintenanceInterval > 0 {
		go client.maintenanceLoop()
	} else {
		close(client.maintenanceDone)
	}

	return client, nil
}

// Close stops maintenance and closes the pool. Connections held by running
// commands, transactions or subscriptions are destroyed when released.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stopMaintenance)
		<-c.maintenanceDone
		c.pool.Close()
	})
}

// Execute sends a request and returns its reply, acquiring and releasing a
// pooled connection. Error replies are returned as *ServerError, after the
// LOADING and NOSCRIPT recoveries. Payloads are rented from bufs; a nil bufs
// allocates them.
func (c *Client) Execute(ctx context.Context, args []resp.Value, bufs resp.BufferPool) (resp.Value, error) {
	if c.closed.Load() {
		return resp.Value{}, ErrClientClosed
	}

	var v resp.Value
	var err error
	if c.circuitBreaker != nil {
		v, err = c.circuitBreaker.Execute(func() (resp.Value, error) {
			return c.execute(ctx, args, bufs)
		})
	} else {
		v, err = c.execute(ctx, args, bufs)
	}

	c.stats.recordCommand(err)
	return v, err
}

// ExecuteBuffered runs a command returning a byte payload, decoding the
// payload into a buffer rented from bufs. The payload is valid until bufs
// is released.
func (c *Client) ExecuteBuffered(ctx context.Context, cmd Command[Optional[[]byte]], bufs resp.BufferPool) (Optional[[]byte], error) {
	v, err := c.Execute(ctx, cmd.Args, bufs)
	if err != nil {
		return Optional[[]byte]{}, err
	}
	return cmd.Result(v)
}

// Do sends an arbitrary command with text arguments and returns the raw
// reply.
func (c *Client) Do(ctx context.Context, name string, args ...string) (resp.Value, error) {
	values := make([]resp.Value, len(args))
	for i, arg := range args {
		values[i] = resp.BulkStringFromString(arg)
	}
	return Execute(ctx, c, NewCommand(ValueResult, name, values...))
}

// execute runs one request on a pooled connection. The connection is
// released whatever happens.
func (c *Client) execute(ctx context.Context, args []resp.Value, bufs resp.BufferPool) (v resp.Value, err error) {
	res, err := c.acquire(ctx)
	if err != nil {
		return resp.Value{}, err
	}
	defer func() {
		c.release(res, err)
	}()

	return c.run(ctx, res.Value(), args, bufs)
}

// acquire checks out a connection and brings its session up to date:
// AUTH when a password is configured and SELECT when the database differs.
func (c *Client) acquire(ctx context.Context) (Resource, error) {
	res, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.prepare(ctx, res.Value()); err != nil {
		c.release(res, err)
		return nil, err
	}
	return res, nil
}

func (c *Client) prepare(ctx context.Context, conn *Connection) error {
	if c.config.Password != "" && !conn.Authenticated() {
		if _, err := c.run(ctx, conn, NewAuthCommand(c.config.Username, c.config.Password).Args, nil); err != nil {
			return err
		}
		conn.authenticated = true
	}

	if conn.Database() != c.config.Database {
		if _, err := c.run(ctx, conn, NewSelectCommand(c.config.Database).Args, nil); err != nil {
			return err
		}
		conn.database = c.config.Database
	}
	return nil
}

// release returns the connection to the pool, or destroys it when err may
// have left it in an unknown state. Error replies keep the connection.
func (c *Client) release(res Resource, err error) {
	if resp.ShouldCloseConnection(err) || !res.Value().Connected() {
		res.Destroy()
		return
	}
	res.Release()
}

// run is the execution engine: one request and its reply on conn.
//
// A LOADING reply is retried with an exponential backoff, from
// LoadingRetryDelayMin doubling up to LoadingRetryDelayMax, until
// LoadingRetryTimeout elapsed. A NOSCRIPT reply reloads the cached scripts
// and retries once. Any other error reply is returned as *ServerError.
func (c *Client) run(ctx context.Context, conn *Connection, args []resp.Value, bufs resp.BufferPool) (resp.Value, error) {
	var (
		delay    time.Duration
		deadline time.Time
		reloaded bool
	)

	for {
		v, err := conn.RoundTrip(ctx, args, bufs)
		if err != nil {
			return resp.Value{}, err
		}
		if !v.IsError() {
			return v, nil
		}

		switch v.ErrorType() {
		case resp.ErrorTypeLoading:
			if deadline.IsZero() {
				deadline = time.Now().Add(c.config.LoadingRetryTimeout)
				delay = c.config.LoadingRetryDelayMin
			}
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return resp.Value{}, newServerError(v)
			}

			c.stats.recordLoadingRetry()
			if err := sleep(ctx, min(delay, remaining)); err != nil {
				return resp.Value{}, err
			}
			delay = min(delay*2, c.config.LoadingRetryDelayMax)
			continue

		case resp.ErrorTypeNoScript:
			if reloaded || c.scripts.len() == 0 {
				break
			}
			reloaded = true

			c.stats.recordScriptReload()
			if err := c.scripts.reload(ctx, conn); err != nil {
				return resp.Value{}, err
			}
			continue
		}

		return resp.Value{}, newServerError(v)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// maintenanceLoop periodically trims idle connections.
func (c *Client) maintenanceLoop() {
	defer close(c.maintenanceDone)

	ticker := time.NewTicker(c.config.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopMaintenance:
			return
		case <-ticker.C:
			c.maintain(context.Background())
		}
	}
}

// maintain checks every idle connection: disconnected and expired ones are
// destroyed, live ones are pinged, and the surplus above MaxIdle is closed.
func (c *Client) maintain(ctx context.Context) {
	idle := c.pool.AcquireAllIdle()
	if len(idle) == 0 {
		return
	}

	now := time.Now()
	kept := 0
	for _, res := range idle {
		conn := res.Value()

		switch {
		case !conn.Connected():
			res.Destroy()
		case c.config.MaxConnLifetime > 0 && now.Sub(res.CreationTime()) > c.config.MaxConnLifetime:
			res.Destroy()
		case c.config.MaxConnIdleTime > 0 && res.IdleDuration() > c.config.MaxConnIdleTime:
			res.Destroy()
		case kept >= c.config.MaxIdle:
			res.Destroy()
		case resp.ShouldCloseConnection(c.healthCheck(ctx, conn)):
			res.Destroy()
		default:
			kept++
			res.ReleaseUnused()
		}
	}

	slog.Debug("redis: pool maintenance", "idle", len(idle), "kept", kept, "destroyed", len(idle)-kept)
}

// healthCheck pings a connection. Error replies, like NOAUTH on a connection
// that never authenticated, prove the connection works.
func (c *Client) healthCheck(ctx context.Context, conn *Connection) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	v, err := conn.RoundTrip(ctx, NewPingCommand().Args, nil)
	if err != nil {
		return err
	}
	if v.IsError() {
		return newServerError(v)
	}
	return nil
}

// Stats returns a snapshot of client statistics.
func (c *Client) Stats() ClientStats {
	return c.stats.snapshot()
}

// PoolStats returns a snapshot of the connection pool statistics.
func (c *Client) PoolStats() PoolStats {
	return c.pool.Stats()
}

// CircuitBreakerState returns the state of the circuit breaker, closed when
// none is configured.
func (c *Client) CircuitBreakerState() CircuitBreakerState {
	if c.circuitBreaker == nil {
		return gobreaker.StateClosed
	}
	return c.circuitBreaker.State()
}

// Addr returns the configured server address.
func (c *Client) Addr() string {
	return c.config.Address
}
