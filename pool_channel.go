package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pior/redis/internal/coarsetime"
)

// defaultIdleCapacity bounds the idle set of a pool without a maximum size.
const defaultIdleCapacity = 1024

// NewChannelPool creates a new channel-based connection pool.
// This is the default pool implementation.
func NewChannelPool(constructor func(ctx context.Context) (*Connection, error), opts PoolOptions) (Pool, error) {
	capacity := int(opts.MaxSize)
	if capacity <= 0 {
		capacity = defaultIdleCapacity
	}
	return &channelPool{
		constructor: constructor,
		maxSize:     opts.MaxSize,
		resources:   make(chan *channelResource, capacity),
		freed:       make(chan struct{}, 1),
	}, nil
}

// channelResource implements Resource for channel pool.
type channelResource struct {
	conn         *Connection
	pool         *channelPool
	creationTime time.Time
	lastUsedTime time.Time
}

func (r *channelResource) Value() *Connection {
	return r.conn
}

func (r *channelResource) Release() {
	r.lastUsedTime = coarsetime.Now()
	r.pool.put(r)
}

func (r *channelResource) ReleaseUnused() {
	// Don't update lastUsedTime for maintenance
	r.pool.put(r)
}

func (r *channelResource) Destroy() {
	_ = r.conn.Close()
	r.pool.removeResource()
	r.pool.stats.recordDestroyActive()
}

func (r *channelResource) CreationTime() time.Time {
	return r.creationTime
}

func (r *channelResource) IdleDuration() time.Duration {
	return coarsetime.Now().Sub(r.lastUsedTime)
}

// channelPool is a simple, allocation-optimized connection pool using Go channels.
//
// The buffered channel is the idle set. Sends to it happen under mu so that
// Close can close the channel without racing a release.
type channelPool struct {
	constructor func(ctx context.Context) (*Connection, error)
	maxSize     int32

	mu        sync.Mutex
	resources chan *channelResource
	size      int32
	closed    atomic.Bool
	freed     chan struct{} // signaled when a destroyed connection frees a slot

	stats poolStatsCollector
}

func (p *channelPool) Acquire(ctx context.Context) (Resource, error) {
	p.stats.recordAcquire()

	for {
		if p.closed.Load() {
			p.stats.recordAcquireError()
			return nil, ErrPoolClosed
		}

		// Try to get an idle connection from the pool first
		select {
		case res, ok := <-p.resources:
			if !ok {
				p.stats.recordAcquireError()
				return nil, ErrPoolClosed
			}
			p.stats.recordAcquireFromIdle()
			if !res.conn.Connected() {
				res.Destroy()
				continue
			}
			return res, nil
		default:
			// No idle connection, create new one if under limit
		}

		p.mu.Lock()
		if p.maxSize <= 0 || p.size < p.maxSize {
			p.size++
			p.mu.Unlock()
			return p.create(ctx)
		}
		p.mu.Unlock()

		// Pool is full, wait for a connection to be released
		waitStart := coarsetime.Now()
		select {
		case res, ok := <-p.resources:
			p.stats.recordAcquireWait(coarsetime.Now().Sub(waitStart))
			if !ok {
				p.stats.recordAcquireError()
				return nil, ErrPoolClosed
			}
			p.stats.recordAcquireFromIdle()
			if !res.conn.Connected() {
				res.Destroy()
				continue
			}
			return res, nil
		case <-p.freed:
			p.stats.recordAcquireWait(coarsetime.Now().Sub(waitStart))
			continue
		case <-ctx.Done():
			p.stats.recordAcquireError()
			return nil, ctx.Err()
		}
	}
}

// create runs the constructor for a slot already reserved in size.
func (p *channelPool) create(ctx context.Context) (Resource, error) {
	conn, err := p.constructor(ctx)
	if err != nil {
		p.removeResource()
		p.stats.recordAcquireError()
		return nil, err
	}

	p.stats.recordCreate()

	now := coarsetime.Now()
	return &channelResource{
		conn:         conn,
		pool:         p,
		creationTime: now,
		lastUsedTime: now,
	}, nil
}

func (p *channelPool) put(res *channelResource) {
	if !res.conn.Connected() {
		res.Destroy()
		return
	}

	p.mu.Lock()
	if p.closed.Load() {
		p.mu.Unlock()
		res.Destroy()
		return
	}

	select {
	case p.resources <- res:
		// Successfully returned to pool
		p.mu.Unlock()
		p.stats.recordRelease()
	default:
		// Pool channel is full, close this connection
		p.mu.Unlock()
		res.Destroy()
	}
}

func (p *channelPool) removeResource() {
	p.mu.Lock()
	p.size--
	p.mu.Unlock()

	select {
	case p.freed <- struct{}{}:
	default:
	}
}

func (p *channelPool) AcquireAllIdle() []Resource {
	var idle []Resource

	// Drain all idle connections from the channel
	for {
		select {
		case res, ok := <-p.resources:
			if !ok {
				return idle
			}
			p.stats.recordAcquireFromIdle()
			idle = append(idle, res)
		default:
			return idle
		}
	}
}

func (p *channelPool) Close() {
	p.mu.Lock()
	if p.closed.Swap(true) {
		p.mu.Unlock()
		return
	}
	close(p.resources)
	p.mu.Unlock()

	// Close all idle connections
	for res := range p.resources {
		_ = res.conn.Close()
		p.removeResource()
		p.stats.recordDestroyIdle()
	}
}

// Stats returns a snapshot of pool statistics.
func (p *channelPool) Stats() PoolStats {
	return p.stats.snapshot()
}
