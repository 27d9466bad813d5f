package redis

import (
	"sync/atomic"
	"time"
)

// PoolStats contains statistics about a connection pool.
//
// For Prometheus integration, expose these as:
//   - Gauges: TotalConns, IdleConns, ActiveConns
//   - Counters: AcquireCount, AcquireWaitCount, CreatedConns, DestroyedConns, AcquireErrors
//   - Histogram: AcquireWaitDuration (use AcquireWaitCount and AcquireWaitTimeNs to calculate)
type PoolStats struct {
	// Lifetime counters
	AcquireCount      uint64 // Total acquire attempts
	AcquireWaitCount  uint64 // Acquires that had to wait
	CreatedConns      uint64 // Total connections created
	DestroyedConns    uint64 // Total connections destroyed
	AcquireErrors     uint64 // Failed acquire attempts
	AcquireWaitTimeNs uint64 // Total nanoseconds spent waiting

	// Current state gauges
	TotalConns  int32 // Total connections in pool (active + idle)
	IdleConns   int32 // Idle connections available
	ActiveConns int32 // Connections currently in use
}

// ClientStats contains statistics about client operations.
//
// For Prometheus integration, expose these as counters.
type ClientStats struct {
	Commands          uint64 // Commands executed, retries excluded
	Errors            uint64 // Commands that returned an error
	ConnectionErrors  uint64 // Errors that severed a connection
	ServerErrors      uint64 // Error replies surfaced to callers
	LoadingRetries    uint64 // Retries after a LOADING reply
	ScriptReloads     uint64 // Script cache reloads after a NOSCRIPT reply
	Transactions      uint64 // Transactions completed (committed or aborted)
	TransactionAborts uint64 // Transactions aborted by a watched key change
	Subscriptions     uint64 // Subscriptions opened
}

// poolStatsCollector provides internal methods for updating pool stats.
// Not exported - pools update their own stats.
type poolStatsCollector struct {
	acquireCount      atomic.Uint64
	acquireWaitCount  atomic.Uint64
	createdConns      atomic.Uint64
	destroyedConns    atomic.Uint64
	acquireErrors     atomic.Uint64
	acquireWaitTimeNs atomic.Uint64

	totalConns  atomic.Int32
	idleConns   atomic.Int32
	activeConns atomic.Int32
}

func (c *poolStatsCollector) recordAcquire() {
	c.acquireCount.Add(1)
}

func (c *poolStatsCollector) recordAcquireWait(duration time.Duration) {
	c.acquireWaitCount.Add(1)
	c.acquireWaitTimeNs.Add(uint64(duration.Nanoseconds()))
}

// recordCreate counts a new connection, handed out directly.
func (c *poolStatsCollector) recordCreate() {
	c.createdConns.Add(1)
	c.totalConns.Add(1)
	c.activeConns.Add(1)
}

func (c *poolStatsCollector) recordAcquireError() {
	c.acquireErrors.Add(1)
}

func (c *poolStatsCollector) recordAcquireFromIdle() {
	c.idleConns.Add(-1)
	c.activeConns.Add(1)
}

func (c *poolStatsCollector) recordRelease() {
	c.idleConns.Add(1)
	c.activeConns.Add(-1)
}

// recordDestroyActive counts the destruction of a checked out connection.
func (c *poolStatsCollector) recordDestroyActive() {
	c.destroyedConns.Add(1)
	c.totalConns.Add(-1)
	c.activeConns.Add(-1)
}

// recordDestroyIdle counts the destruction of an idle connection.
func (c *poolStatsCollector) recordDestroyIdle() {
	c.destroyedConns.Add(1)
	c.totalConns.Add(-1)
	c.idleConns.Add(-1)
}

func (c *poolStatsCollector) snapshot() PoolStats {
	return PoolStats{
		TotalConns:        c.totalConns.Load(),
		IdleConns:         c.idleConns.Load(),
		ActiveConns:       c.activeConns.Load(),
		AcquireCount:      c.acquireCount.Load(),
		AcquireWaitCount:  c.acquireWaitCount.Load(),
		CreatedConns:      c.createdConns.Load(),
		DestroyedConns:    c.destroyedConns.Load(),
		AcquireErrors:     c.acquireErrors.Load(),
		AcquireWaitTimeNs: c.acquireWaitTimeNs.Load(),
	}
}

// clientStatsCollector provides internal methods for updating client stats.
// Not exported - client updates its own stats.
type clientStatsCollector struct {
	commands          atomic.Uint64
	errors            atomic.Uint64
	connectionErrors  atomic.Uint64
	serverErrors      atomic.Uint64
	loadingRetries    atomic.Uint64
	scriptReloads     atomic.Uint64
	transactions      atomic.Uint64
	transactionAborts atomic.Uint64
	subscriptions     atomic.Uint64
}

func newClientStatsCollector() *clientStatsCollector {
	return &clientStatsCollector{}
}

func (c *clientStatsCollector) recordCommand(err error) {
	c.commands.Add(1)
	c.recordError(err)
}

func (c *clientStatsCollector) recordError(err error) {
	if err == nil {
		return
	}
	c.errors.Add(1)
	switch {
	case IsConnectionError(err):
		c.connectionErrors.Add(1)
	case IsServerError(err, ""):
		c.serverErrors.Add(1)
	}
}

func (c *clientStatsCollector) recordLoadingRetry() {
	c.loadingRetries.Add(1)
}

func (c *clientStatsCollector) recordScriptReload() {
	c.scriptReloads.Add(1)
}

func (c *clientStatsCollector) recordTransaction(committed bool) {
	c.transactions.Add(1)
	if !committed {
		c.transactionAborts.Add(1)
	}
}

func (c *clientStatsCollector) recordSubscription() {
	c.subscriptions.Add(1)
}

func (c *clientStatsCollector) snapshot() ClientStats {
	return ClientStats{
		Commands:          c.commands.Load(),
		Errors:            c.errors.Load(),
		ConnectionErrors:  c.connectionErrors.Load(),
		ServerErrors:      c.serverErrors.Load(),
		LoadingRetries:    c.loadingRetries.Load(),
		ScriptReloads:     c.scriptReloads.Load(),
		Transactions:      c.transactions.Load(),
		TransactionAborts: c.transactionAborts.Load(),
		Subscriptions:     c.subscriptions.Load(),
	}
}
