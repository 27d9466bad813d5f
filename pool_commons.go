package redis

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	pool "github.com/jolestar/go-commons-pool/v2"
)

// NewCommonsPool creates a connection pool backed by go-commons-pool.
//
// Connections are validated on borrow, and the pool's evictor trims idle
// connections above MaxIdle or idle for longer than MaxConnIdleTime, so
// AcquireAllIdle returns nil. Connections older than MaxConnLifetime fail
// validation.
func NewCommonsPool(constructor func(ctx context.Context) (*Connection, error), opts PoolOptions) (Pool, error) {
	p := &commonsPool{}

	cfg := pool.NewDefaultPoolConfig()
	cfg.MaxTotal = int(opts.MaxSize)
	if cfg.MaxTotal <= 0 {
		cfg.MaxTotal = -1
	}
	if opts.MaxIdle > 0 {
		cfg.MaxIdle = opts.MaxIdle
	}
	cfg.TestOnBorrow = true
	cfg.TestOnReturn = true
	cfg.TestWhileIdle = true
	cfg.BlockWhenExhausted = true
	if opts.MaintenanceInterval > 0 {
		cfg.TimeBetweenEvictionRuns = opts.MaintenanceInterval
	}
	if opts.MaxConnIdleTime > 0 {
		cfg.MinEvictableIdleTime = opts.MaxConnIdleTime
	}

	factory := &connectionFactory{constructor: constructor, pool: p, maxLifetime: opts.MaxConnLifetime}
	p.pool = pool.NewObjectPool(context.Background(), factory, cfg)
	return p, nil
}

// connectionFactory adapts the constructor to the pool's object lifecycle.
type connectionFactory struct {
	constructor func(ctx context.Context) (*Connection, error)
	pool        *commonsPool
	maxLifetime time.Duration
}

func (f *connectionFactory) MakeObject(ctx context.Context) (*pool.PooledObject, error) {
	conn, err := f.constructor(ctx)
	if err != nil {
		return nil, err
	}
	f.pool.createdConns.Add(1)
	return pool.NewPooledObject(conn), nil
}

func (f *connectionFactory) DestroyObject(ctx context.Context, object *pool.PooledObject) error {
	conn, ok := object.Object.(*Connection)
	if !ok {
		return errors.New("redis: pooled object is not a connection")
	}
	f.pool.destroyedConns.Add(1)
	return conn.Close()
}

func (f *connectionFactory) ValidateObject(ctx context.Context, object *pool.PooledObject) bool {
	conn, ok := object.Object.(*Connection)
	if !ok || !conn.Connected() {
		return false
	}
	return f.maxLifetime <= 0 || time.Since(conn.CreatedAt()) <= f.maxLifetime
}

func (f *connectionFactory) ActivateObject(ctx context.Context, object *pool.PooledObject) error {
	return nil
}

func (f *connectionFactory) PassivateObject(ctx context.Context, object *pool.PooledObject) error {
	return nil
}

type commonsPool struct {
	pool           *pool.ObjectPool
	closed         atomic.Bool
	createdConns   atomic.Uint64
	destroyedConns atomic.Uint64
	stats          poolStatsCollector
}

type commonsResource struct {
	conn *Connection
	pool *commonsPool
}

func (r *commonsResource) Value() *Connection {
	return r.conn
}

func (r *commonsResource) Release() {
	if r.pool.closed.Load() || !r.conn.Connected() {
		r.Destroy()
		return
	}
	// Validation on return destroys a connection that broke meanwhile.
	_ = r.pool.pool.ReturnObject(context.Background(), r.conn)
}

func (r *commonsResource) ReleaseUnused() {
	r.Release()
}

func (r *commonsResource) Destroy() {
	_ = r.pool.pool.InvalidateObject(context.Background(), r.conn)
}

func (r *commonsResource) CreationTime() time.Time {
	return r.conn.CreatedAt()
}

func (r *commonsResource) IdleDuration() time.Duration {
	return 0
}

func (p *commonsPool) Acquire(ctx context.Context) (Resource, error) {
	p.stats.recordAcquire()

	if p.closed.Load() {
		p.stats.recordAcquireError()
		return nil, ErrPoolClosed
	}

	start := time.Now()
	obj, err := p.pool.BorrowObject(ctx)
	if err != nil {
		p.stats.recordAcquireError()
		if p.closed.Load() {
			return nil, ErrPoolClosed
		}
		return nil, err
	}
	if wait := time.Since(start); wait > time.Millisecond {
		p.stats.recordAcquireWait(wait)
	}

	return &commonsResource{conn: obj.(*Connection), pool: p}, nil
}

func (p *commonsPool) AcquireAllIdle() []Resource {
	return nil
}

func (p *commonsPool) Close() {
	if p.closed.Swap(true) {
		return
	}
	p.pool.Close(context.Background())
}

func (p *commonsPool) Stats() PoolStats {
	s := p.stats.snapshot()
	idle := p.pool.GetNumIdle()
	active := p.pool.GetNumActive()

	s.IdleConns = int32(idle)
	s.ActiveConns = int32(active)
	s.TotalConns = int32(idle + active)
	s.CreatedConns = p.createdConns.Load()
	s.DestroyedConns = p.destroyedConns.Load()
	return s
}
