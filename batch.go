package redis

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/pior/redis/resp"
)

// BatchExecutor runs several requests in one round trip. Client implements
// it.
type BatchExecutor interface {
	ExecuteBatch(ctx context.Context, requests [][]resp.Value) ([]resp.Value, error)
}

var _ BatchExecutor = (*Client)(nil)

// ExecuteBatch pipelines requests on one connection: they are written and
// flushed together, then the replies are read in order.
//
// Replies are returned in request order, error frames included. Requests
// answered with LOADING or NOSCRIPT are retried one at a time through the
// usual recovery. I/O failures fail the whole batch.
//
// The circuit breaker state is checked but the batch is not recorded in it.
func (c *Client) ExecuteBatch(ctx context.Context, requests [][]resp.Value) ([]resp.Value, error) {
	if len(requests) == 0 {
		return nil, nil
	}
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	if c.circuitBreaker != nil && c.circuitBreaker.State() == gobreaker.StateOpen {
		return nil, gobreaker.ErrOpenState
	}

	replies, err := c.executeBatch(ctx, requests)
	for range requests {
		c.stats.recordCommand(err)
	}
	return replies, err
}

func (c *Client) executeBatch(ctx context.Context, requests [][]resp.Value) (replies []resp.Value, err error) {
	res, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		c.release(res, err)
	}()
	conn := res.Value()

	for _, args := range requests {
		if err := conn.Write(args); err != nil {
			return nil, err
		}
	}
	if err := conn.Flush(ctx); err != nil {
		return nil, err
	}

	replies = make([]resp.Value, len(requests))
	for i := range requests {
		if replies[i], err = conn.Receive(ctx, nil); err != nil {
			return nil, err
		}
	}

	for i, v := range replies {
		if !v.IsError() || (v.ErrorType() != resp.ErrorTypeLoading && v.ErrorType() != resp.ErrorTypeNoScript) {
			continue
		}
		v, err := c.run(ctx, conn, requests[i], nil)
		var se *ServerError
		switch {
		case err == nil:
			replies[i] = v
		case errors.As(err, &se):
			replies[i] = resp.Error(se.Type, se.Message)
		default:
			return nil, err
		}
	}
	return replies, nil
}

// Pipeline runs commands of the same type in one round trip and extracts
// their results. The first error reply fails the call.
func Pipeline[T any](ctx context.Context, e BatchExecutor, cmds ...Command[T]) ([]T, error) {
	requests := make([][]resp.Value, len(cmds))
	for i, cmd := range cmds {
		requests[i] = cmd.Args
	}

	replies, err := e.ExecuteBatch(ctx, requests)
	if err != nil {
		return nil, err
	}

	out := make([]T, len(cmds))
	for i, v := range replies {
		if v.IsError() {
			return nil, newServerError(v)
		}
		if out[i], err = cmds[i].Result(v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Item is a key and value written by MultiSet.
type Item struct {
	Key   string
	Value []byte
	TTL   time.Duration // zero means no expiration
}

// BatchCommands provides multi-key operations pipelined over a
// BatchExecutor. Client embeds it.
type BatchCommands struct {
	executor BatchExecutor
}

// NewBatchCommands creates a new BatchCommands instance.
func NewBatchCommands(executor BatchExecutor) *BatchCommands {
	return &BatchCommands{executor: executor}
}

// MultiGet returns the values of keys in order, Unspecified for missing
// keys.
func (b *BatchCommands) MultiGet(ctx context.Context, keys ...string) ([]Optional[[]byte], error) {
	if len(keys) == 0 {
		return nil, nil
	}
	cmds := make([]Command[Optional[[]byte]], len(keys))
	for i, k := range keys {
		cmds[i] = NewGetCommand(k)
	}
	return Pipeline(ctx, b.executor, cmds...)
}

// MultiSet stores items. It fails on the first rejected write.
func (b *BatchCommands) MultiSet(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	cmds := make([]Command[bool], len(items))
	for i, item := range items {
		cmds[i] = NewSetCommand(item.Key, item.Value, SetOptions{Expiration: item.TTL})
	}
	_, err := Pipeline(ctx, b.executor, cmds...)
	return err
}

// MultiDelete removes keys with one DEL per key and returns how many
// existed.
func (b *BatchCommands) MultiDelete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	cmds := make([]Command[int64], len(keys))
	for i, k := range keys {
		cmds[i] = NewDeleteCommand(k)
	}
	counts, err := Pipeline(ctx, b.executor, cmds...)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	return total, nil
}
