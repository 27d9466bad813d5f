package redis

import (
	"context"
	"time"
)

// Resource is a connection checked out of a Pool.
type Resource interface {
	// Value returns the connection.
	Value() *Connection

	// Release returns the connection to the pool. A disconnected connection
	// is destroyed instead.
	Release()

	// ReleaseUnused returns the connection without refreshing its last use
	// time. Used by maintenance.
	ReleaseUnused()

	// Destroy closes the connection and removes it from the pool.
	Destroy()

	CreationTime() time.Time
	IdleDuration() time.Duration
}

// Pool manages the connections to one server.
//
// Acquire hands out a connection no other caller holds. Pools never return
// a connection that is already known to be disconnected.
type Pool interface {
	// Acquire returns an idle connection or creates a new one. It blocks
	// when the pool is at its maximum size, until a connection is released
	// or ctx is done. It fails fast with ErrPoolClosed after Close.
	Acquire(ctx context.Context) (Resource, error)

	// AcquireAllIdle checks out every idle connection, for maintenance.
	// Pools that manage idle connections themselves return nil.
	AcquireAllIdle() []Resource

	// Close destroys idle connections and rejects further acquires.
	// Connections checked out at that time are destroyed on release.
	Close()

	// Stats returns a snapshot of pool statistics.
	Stats() PoolStats
}

// PoolOptions configures a pool created by a PoolFactory.
type PoolOptions struct {
	// MaxSize is the maximum number of connections. Zero means no limit.
	MaxSize int32

	// MaxIdle is the number of idle connections the pool should keep.
	MaxIdle int

	// MaxConnIdleTime and MaintenanceInterval are used by pools trimming
	// idle connections on their own.
	MaxConnIdleTime     time.Duration
	MaintenanceInterval time.Duration

	// MaxConnLifetime is enforced by pools that do not expose their idle
	// connections through AcquireAllIdle.
	MaxConnLifetime time.Duration
}

// PoolFactory creates a pool around a connection constructor.
type PoolFactory func(constructor func(ctx context.Context) (*Connection, error), opts PoolOptions) (Pool, error)
