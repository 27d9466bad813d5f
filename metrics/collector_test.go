package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/require"

	"github.com/pior/redis"
)

type fakeSource struct {
	stats redis.ClientStats
	pool  redis.PoolStats
	state redis.CircuitBreakerState
}

func (f *fakeSource) Addr() string                                   { return "cache:6379" }
func (f *fakeSource) Stats() redis.ClientStats                       { return f.stats }
func (f *fakeSource) PoolStats() redis.PoolStats                     { return f.pool }
func (f *fakeSource) CircuitBreakerState() redis.CircuitBreakerState { return f.state }

func TestCollector(t *testing.T) {
	src := &fakeSource{
		stats: redis.ClientStats{
			Commands:          10,
			Errors:            4,
			ConnectionErrors:  1,
			ServerErrors:      2,
			Transactions:      3,
			TransactionAborts: 1,
		},
		pool: redis.PoolStats{
			TotalConns:   3,
			ActiveConns:  1,
			IdleConns:    2,
			CreatedConns: 5,
		},
		state: gobreaker.StateOpen,
	}

	c := NewCollector(src)
	registry := prometheus.NewRegistry()
	require.NoError(t, registry.Register(c))

	expected := `
# HELP redis_commands_total Total number of commands executed
# TYPE redis_commands_total counter
redis_commands_total{server="cache:6379"} 10
# HELP redis_errors_total Total number of failed commands
# TYPE redis_errors_total counter
redis_errors_total{server="cache:6379",type="connection"} 1
redis_errors_total{server="cache:6379",type="other"} 1
redis_errors_total{server="cache:6379",type="server"} 2
# HELP redis_transactions_total Transactions completed
# TYPE redis_transactions_total counter
redis_transactions_total{server="cache:6379",status="aborted"} 1
redis_transactions_total{server="cache:6379",status="committed"} 2
# HELP redis_circuit_breaker_state Circuit breaker state (0=closed, 1=half-open, 2=open)
# TYPE redis_circuit_breaker_state gauge
redis_circuit_breaker_state{server="cache:6379"} 2
# HELP redis_pool_connections Connection pool statistics
# TYPE redis_pool_connections gauge
redis_pool_connections{server="cache:6379",state="active"} 1
redis_pool_connections{server="cache:6379",state="idle"} 2
redis_pool_connections{server="cache:6379",state="total"} 3
`
	err := testutil.GatherAndCompare(registry, strings.NewReader(expected),
		"redis_commands_total",
		"redis_errors_total",
		"redis_transactions_total",
		"redis_circuit_breaker_state",
		"redis_pool_connections",
	)
	require.NoError(t, err)
}

func TestCollectorLint(t *testing.T) {
	problems, err := testutil.CollectAndLint(NewCollector(&fakeSource{}))
	require.NoError(t, err)
	require.Empty(t, problems)
}

func TestCollectorCount(t *testing.T) {
	c := NewCollector(&fakeSource{})
	require.Equal(t, 19, testutil.CollectAndCount(c))
}
