package redis

import (
	"context"
	"errors"
	"math"
	"sync/atomic"

	"github.com/jackc/puddle/v2"
)

// NewPuddlePool creates a new puddle-based connection pool.
//
// Close returns at once and fails pending acquires. Checked out connections
// are destroyed in the background when released.
func NewPuddlePool(constructor func(ctx context.Context) (*Connection, error), opts PoolOptions) (Pool, error) {
	p := &puddlePool{}
	p.ctx, p.cancel = context.WithCancel(context.Background())

	maxSize := opts.MaxSize
	if maxSize <= 0 {
		maxSize = math.MaxInt32
	}

	poolConfig := &puddle.Config[*Connection]{
		Constructor: func(ctx context.Context) (*Connection, error) {
			conn, err := constructor(ctx)
			if err == nil {
				p.createdConns.Add(1)
			}
			return conn, err
		},
		Destructor: func(c *Connection) {
			p.destroyedConns.Add(1)
			_ = c.Close()
		},
		MaxSize: maxSize,
	}

	pool, err := puddle.NewPool(poolConfig)
	if err != nil {
		return nil, err
	}
	p.pool = pool
	return p, nil
}

// puddlePool wraps puddle.Pool to implement our Pool interface.
type puddlePool struct {
	pool           *puddle.Pool[*Connection]
	ctx            context.Context // canceled by Close
	cancel         context.CancelFunc
	closed         atomic.Bool
	createdConns   atomic.Int64
	destroyedConns atomic.Int64
}

// puddleResource destroys disconnected connections on release.
type puddleResource struct {
	*puddle.Resource[*Connection]
}

func (r puddleResource) Release() {
	if !r.Value().Connected() {
		r.Destroy()
		return
	}
	r.Resource.Release()
}

func (r puddleResource) ReleaseUnused() {
	if !r.Value().Connected() {
		r.Destroy()
		return
	}
	r.Resource.ReleaseUnused()
}

func (p *puddlePool) Acquire(ctx context.Context) (Resource, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	// puddle only wakes a waiting acquire through its context.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	for {
		res, err := p.pool.Acquire(ctx)
		if errors.Is(err, puddle.ErrClosedPool) || (err != nil && p.closed.Load()) {
			return nil, ErrPoolClosed
		}
		if err != nil {
			return nil, err
		}
		if !res.Value().Connected() {
			res.Destroy()
			continue
		}
		return puddleResource{res}, nil
	}
}

func (p *puddlePool) AcquireAllIdle() []Resource {
	puddleResources := p.pool.AcquireAllIdle()
	resources := make([]Resource, len(puddleResources))
	for i, res := range puddleResources {
		resources[i] = puddleResource{res}
	}
	return resources
}

func (p *puddlePool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.cancel()
	go p.pool.Close()
}

// Stats returns a snapshot of pool statistics by converting puddle's stats to our format.
func (p *puddlePool) Stats() PoolStats {
	s := p.pool.Stat()

	// Note: Puddle tracks similar metrics but with different semantics
	return PoolStats{
		TotalConns:        s.TotalResources(),
		IdleConns:         s.IdleResources(),
		ActiveConns:       s.AcquiredResources(),
		AcquireCount:      uint64(s.AcquireCount()),
		AcquireWaitCount:  uint64(s.EmptyAcquireCount()), // Acquires that had to wait (pool was empty)
		CreatedConns:      uint64(p.createdConns.Load()),
		DestroyedConns:    uint64(p.destroyedConns.Load()),
		AcquireErrors:     uint64(s.CanceledAcquireCount()),
		AcquireWaitTimeNs: uint64(s.EmptyAcquireWaitTime().Nanoseconds()),
	}
}
