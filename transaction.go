package redis

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pior/redis/resp"
)

type queuedCommand struct {
	args    []resp.Value
	resolve func(resp.Value, error)
}

// Transaction queues commands to run atomically with MULTI/EXEC, optionally
// guarded by WATCHed keys.
//
// Results are delivered through the futures returned by Queue. Once
// Complete returns, every future is resolved. Close must be called when
// the results are no longer used: it cancels the futures of a transaction
// that never completed, and releases pooled payload buffers.
type Transaction struct {
	client *Client

	mu      sync.Mutex
	done    bool
	watched []string
	queued  []queuedCommand

	buffers *resp.PooledBuffers // nil unless Config.UseBufferPool
}

// CreateTransaction starts an empty transaction. No connection is used
// until Complete.
func (c *Client) CreateTransaction() *Transaction {
	tx := &Transaction{client: c}
	if c.config.UseBufferPool {
		tx.buffers = resp.NewPooledBuffers()
	}
	return tx
}

// Watch adds keys to WATCH before the transaction starts. The transaction
// aborts if any of them changes before EXEC.
func (tx *Transaction) Watch(keys ...string) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.done {
		return ErrTransactionDone
	}
	tx.watched = append(tx.watched, keys...)
	return nil
}

// Queue adds a command to the transaction and returns its pending result.
func Queue[T any](tx *Transaction, cmd Command[T]) (*Future[T], error) {
	f := newFuture[T]()
	err := tx.enqueue(queuedCommand{
		args: cmd.Args,
		resolve: func(v resp.Value, err error) {
			if err != nil {
				var zero T
				f.resolve(zero, err)
				return
			}
			f.resolve(cmd.Result(v))
		},
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (tx *Transaction) enqueue(q queuedCommand) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.done {
		return ErrTransactionDone
	}
	tx.queued = append(tx.queued, q)
	return nil
}

// Complete runs the transaction on a dedicated connection: WATCH, MULTI,
// the queued commands, then EXEC.
//
// It returns false when a watched key changed; every future is then
// resolved with ErrTransactionCanceled. On success, each future receives
// the result of its own command, including error replies that only concern
// that command. On any other failure the futures are canceled and the
// error is returned.
//
// Complete can only be called once.
func (tx *Transaction) Complete(ctx context.Context) (bool, error) {
	tx.mu.Lock()
	if tx.done {
		tx.mu.Unlock()
		return false, ErrTransactionDone
	}
	tx.done = true
	queued := tx.queued
	watched := tx.watched
	tx.mu.Unlock()

	c := tx.client
	if c.closed.Load() {
		cancelAll(queued)
		return false, ErrClientClosed
	}

	committed, err := tx.run(ctx, watched, queued)
	if err != nil {
		cancelAll(queued)
		c.stats.recordError(err)
		return false, err
	}

	c.stats.recordTransaction(committed)
	return committed, nil
}

func (tx *Transaction) run(ctx context.Context, watched []string, queued []queuedCommand) (committed bool, err error) {
	c := tx.client

	res, err := c.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer func() {
		c.release(res, err)
	}()
	conn := res.Value()

	var bufs resp.BufferPool
	if tx.buffers != nil {
		bufs = tx.buffers
	}

	if len(watched) > 0 {
		if _, err := c.run(ctx, conn, NewCommand(OKResult, "WATCH", keys(watched)...).Args, nil); err != nil {
			return false, err
		}
	}

	if err := tx.send(ctx, conn, queued); err != nil {
		tx.discard(ctx, conn)
		return false, err
	}

	// MULTI and each queued command are acknowledged before EXEC replies.
	// A command rejected at queue time makes EXEC fail with EXECABORT.
	queueErrs := make([]error, len(queued))
	for i := -1; i < len(queued); i++ {
		v, err := conn.Receive(ctx, bufs)
		if err != nil {
			return false, err
		}
		if v.IsError() {
			if i < 0 {
				// MULTI rejected: the commands ran outside a transaction
				// and the connection state is unknown.
				conn.MarkDisconnected()
				return false, newServerError(v)
			}
			queueErrs[i] = newServerError(v)
		}
	}

	reply, err := conn.Receive(ctx, bufs)
	if err != nil {
		return false, err
	}

	switch {
	case reply.IsNull():
		cancelAll(queued)
		return false, nil

	case reply.IsError():
		execErr := newServerError(reply)
		for i, q := range queued {
			if queueErrs[i] != nil {
				q.resolve(resp.Value{}, queueErrs[i])
			} else {
				q.resolve(resp.Value{}, execErr)
			}
		}
		return false, execErr

	case reply.Kind() != resp.KindArray || reply.Len() != len(queued):
		conn.MarkDisconnected()
		return false, errUnexpectedReply(reply)
	}

	for i, item := range reply.Items() {
		if item.IsError() {
			queued[i].resolve(resp.Value{}, newServerError(item))
			continue
		}
		queued[i].resolve(item, nil)
	}
	return true, nil
}

// send writes MULTI, the queued commands and EXEC in one flush.
func (tx *Transaction) send(ctx context.Context, conn *Connection, queued []queuedCommand) error {
	if err := conn.Write(NewCommand(OKResult, "MULTI").Args); err != nil {
		return err
	}
	for _, q := range queued {
		if err := conn.Write(q.args); err != nil {
			return err
		}
	}
	if err := conn.Write(NewCommand(ValueResult, "EXEC").Args); err != nil {
		return err
	}
	return conn.Flush(ctx)
}

// discard aborts a transaction whose commands could not all be sent. The
// connection is not reused afterwards.
func (tx *Transaction) discard(ctx context.Context, conn *Connection) {
	defer conn.MarkDisconnected()

	if !conn.Connected() {
		return
	}
	if err := conn.Send(ctx, NewCommand(OKResult, "DISCARD").Args); err != nil {
		slog.Warn("redis: failed to discard transaction", "error", err)
	}
}

// Close cancels the futures of a transaction that was not completed and
// releases its pooled buffers. Payloads returned by the futures must not be
// used after Close when Config.UseBufferPool is set.
func (tx *Transaction) Close() {
	tx.mu.Lock()
	queued := tx.queued
	wasDone := tx.done
	tx.done = true
	tx.mu.Unlock()

	if !wasDone {
		cancelAll(queued)
	}
	if tx.buffers != nil {
		tx.buffers.Release()
	}
}

func cancelAll(queued []queuedCommand) {
	for _, q := range queued {
		q.resolve(resp.Value{}, ErrTransactionCanceled)
	}
}
