// Package metrics exports client statistics to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pior/redis"
)

// Source is the part of *redis.Client read by the collector.
type Source interface {
	Addr() string
	Stats() redis.ClientStats
	PoolStats() redis.PoolStats
	CircuitBreakerState() redis.CircuitBreakerState
}

// Collector is a prometheus.Collector reading client and pool statistics on
// each scrape.
type Collector struct {
	sources []Source

	commands          *prometheus.Desc
	errors            *prometheus.Desc
	loadingRetries    *prometheus.Desc
	scriptReloads     *prometheus.Desc
	transactions      *prometheus.Desc
	subscriptions     *prometheus.Desc
	circuitState      *prometheus.Desc
	poolConnections   *prometheus.Desc
	poolCreated       *prometheus.Desc
	poolDestroyed     *prometheus.Desc
	poolAcquires      *prometheus.Desc
	poolAcquireWaits  *prometheus.Desc
	poolAcquireErrors *prometheus.Desc
	poolWaitSeconds   *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector for the given clients.
func NewCollector(sources ...Source) *Collector {
	server := []string{"server"}
	return &Collector{
		sources: sources,

		commands: prometheus.NewDesc("redis_commands_total",
			"Total number of commands executed", server, nil),
		errors: prometheus.NewDesc("redis_errors_total",
			"Total number of failed commands", []string{"server", "type"}, nil),
		loadingRetries: prometheus.NewDesc("redis_loading_retries_total",
			"Retries after the server replied LOADING", server, nil),
		scriptReloads: prometheus.NewDesc("redis_script_reloads_total",
			"Script cache reloads after the server replied NOSCRIPT", server, nil),
		transactions: prometheus.NewDesc("redis_transactions_total",
			"Transactions completed", []string{"server", "status"}, nil),
		subscriptions: prometheus.NewDesc("redis_subscriptions_total",
			"Subscriptions opened", server, nil),
		circuitState: prometheus.NewDesc("redis_circuit_breaker_state",
			"Circuit breaker state (0=closed, 1=half-open, 2=open)", server, nil),
		poolConnections: prometheus.NewDesc("redis_pool_connections",
			"Connection pool statistics", []string{"server", "state"}, nil),
		poolCreated: prometheus.NewDesc("redis_pool_connections_created_total",
			"Total connections created", server, nil),
		poolDestroyed: prometheus.NewDesc("redis_pool_connections_destroyed_total",
			"Total connections destroyed", server, nil),
		poolAcquires: prometheus.NewDesc("redis_pool_acquires_total",
			"Total connection acquires", server, nil),
		poolAcquireWaits: prometheus.NewDesc("redis_pool_acquire_waits_total",
			"Connection acquires that had to wait", server, nil),
		poolAcquireErrors: prometheus.NewDesc("redis_pool_acquire_errors_total",
			"Failed connection acquires", server, nil),
		poolWaitSeconds: prometheus.NewDesc("redis_pool_acquire_wait_seconds_total",
			"Total time spent waiting for a connection", server, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.commands, c.errors, c.loadingRetries, c.scriptReloads, c.transactions,
		c.subscriptions, c.circuitState, c.poolConnections, c.poolCreated,
		c.poolDestroyed, c.poolAcquires, c.poolAcquireWaits, c.poolAcquireErrors,
		c.poolWaitSeconds,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, src := range c.sources {
		addr := src.Addr()
		stats := src.Stats()
		pool := src.PoolStats()

		counter := func(d *prometheus.Desc, v uint64, labels ...string) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), append([]string{addr}, labels...)...)
		}
		gauge := func(d *prometheus.Desc, v float64, labels ...string) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, append([]string{addr}, labels...)...)
		}

		counter(c.commands, stats.Commands)
		counter(c.errors, stats.ConnectionErrors, "connection")
		counter(c.errors, stats.ServerErrors, "server")
		counter(c.errors, stats.Errors-stats.ConnectionErrors-stats.ServerErrors, "other")
		counter(c.loadingRetries, stats.LoadingRetries)
		counter(c.scriptReloads, stats.ScriptReloads)
		counter(c.transactions, stats.Transactions-stats.TransactionAborts, "committed")
		counter(c.transactions, stats.TransactionAborts, "aborted")
		counter(c.subscriptions, stats.Subscriptions)

		gauge(c.circuitState, float64(src.CircuitBreakerState()))

		gauge(c.poolConnections, float64(pool.TotalConns), "total")
		gauge(c.poolConnections, float64(pool.ActiveConns), "active")
		gauge(c.poolConnections, float64(pool.IdleConns), "idle")
		counter(c.poolCreated, pool.CreatedConns)
		counter(c.poolDestroyed, pool.DestroyedConns)
		counter(c.poolAcquires, pool.AcquireCount)
		counter(c.poolAcquireWaits, pool.AcquireWaitCount)
		counter(c.poolAcquireErrors, pool.AcquireErrors)
		ch <- prometheus.MustNewConstMetric(c.poolWaitSeconds, prometheus.CounterValue,
			float64(pool.AcquireWaitTimeNs)/1e9, addr)
	}
}
