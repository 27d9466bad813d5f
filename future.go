package redis

import (
	"context"
	"sync"
)

// Future is the pending result of a command queued in a transaction. It is
// resolved exactly once: by Transaction.Complete with the command result,
// or with ErrTransactionCanceled when the transaction does not run.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) resolve(value T, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// Done returns a channel closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Resolved reports whether the future has a result.
func (f *Future[T]) Resolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future is resolved or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the result of a resolved future. It returns
// ErrTransactionPending when the transaction has not completed yet.
func (f *Future[T]) Result() (T, error) {
	if !f.Resolved() {
		var zero T
		return zero, ErrTransactionPending
	}
	return f.value, f.err
}
