// Package coarsetime provides a clock that is cheap to read and accurate to
// within Resolution. Pools use it to stamp releases and measure idle time.
package coarsetime

import (
	"sync"
	"sync/atomic"
	"time"
)

// Resolution is the interval at which the clock is refreshed.
const Resolution = 50 * time.Millisecond

var (
	now   atomic.Int64 // unix nanoseconds
	start sync.Once
)

func run() {
	now.Store(time.Now().UnixNano())

	ticker := time.NewTicker(Resolution)
	go func() {
		for t := range ticker.C {
			now.Store(t.UnixNano())
		}
	}()
}

// Now returns the current coarse time. The refresh goroutine starts on the
// first call.
func Now() time.Time {
	start.Do(run)
	return time.Unix(0, now.Load())
}
