package redis

import (
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/pior/redis/resp"
)

// CircuitBreaker guards the server against requests while it is failing.
// *gobreaker.CircuitBreaker[resp.Value] implements it.
type CircuitBreaker interface {
	Execute(req func() (resp.Value, error)) (resp.Value, error)
	State() gobreaker.State
	Counts() gobreaker.Counts
}

// CircuitBreakerState is the state of a circuit breaker.
type CircuitBreakerState = gobreaker.State

// NewCircuitBreakerConfig returns a function that creates circuit breakers
// for a server. The breaker trips when at least 3 requests were made in the
// interval and 60% of them failed.
//
// Only connection errors count as failures: error replies and cancellations
// say nothing about the health of the server.
func NewCircuitBreakerConfig(maxRequests uint32, interval, timeout time.Duration) func(string) CircuitBreaker {
	return func(serverAddr string) CircuitBreaker {
		settings := gobreaker.Settings{
			Name:        serverAddr,
			MaxRequests: maxRequests,
			Interval:    interval,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
			IsSuccessful: func(err error) bool {
				return err == nil || !IsConnectionError(err)
			},
		}
		return gobreaker.NewCircuitBreaker[resp.Value](settings)
	}
}
