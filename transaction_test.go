package redis

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTransaction_Atomicity(t *testing.T) {
	srv, client := newServerAndClient(t)
	ctx := context.Background()

	tx := client.CreateTransaction()
	defer tx.Close()

	before, err := Queue(tx, NewGetCommand("key"))
	require.NoError(t, err)
	set, err := Queue(tx, NewSetCommand("key", []byte("val"), SetOptions{}))
	require.NoError(t, err)
	after, err := Queue(tx, NewGetCommand("key"))
	require.NoError(t, err)

	_, err = before.Result()
	require.ErrorIs(t, err, ErrTransactionPending)
	require.Zero(t, srv.CountCommands("MULTI"), "nothing is sent before Complete")

	committed, err := tx.Complete(ctx)
	require.NoError(t, err)
	require.True(t, committed)

	v1, err := before.Result()
	require.NoError(t, err)
	require.False(t, v1.HasValue())

	ok, err := set.Result()
	require.NoError(t, err)
	require.True(t, ok)

	v2, err := after.Result()
	require.NoError(t, err)
	require.Equal(t, "val", string(v2.Value()))

	value, err := client.Get(ctx, "key")
	require.NoError(t, err)
	require.Equal(t, "val", string(value.Value()))

	stats := client.Stats()
	require.Equal(t, uint64(1), stats.Transactions)
	require.Equal(t, uint64(0), stats.TransactionAborts)
}

func TestTransaction_WatchAbort(t *testing.T) {
	srv, client := newServerAndClient(t)
	other := newTestClient(t, srv.Addr())
	ctx := context.Background()

	_, err := client.Set(ctx, "k", []byte("initial"), SetOptions{})
	require.NoError(t, err)

	tx := client.CreateTransaction()
	defer tx.Close()
	require.NoError(t, tx.Watch("k"))

	set, err := Queue(tx, NewSetCommand("k", []byte("from transaction"), SetOptions{}))
	require.NoError(t, err)
	get, err := Queue(tx, NewGetCommand("k"))
	require.NoError(t, err)

	srv.OnExec(func() {
		_, _ = other.Set(context.Background(), "k", []byte("from other client"), SetOptions{})
	})

	committed, err := tx.Complete(ctx)
	require.NoError(t, err)
	require.False(t, committed)

	_, err = set.Result()
	require.ErrorIs(t, err, ErrTransactionCanceled)
	_, err = get.Result()
	require.ErrorIs(t, err, ErrTransactionCanceled)

	value, err := client.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "from other client", string(value.Value()))

	require.Equal(t, uint64(1), client.Stats().TransactionAborts)
}

func TestTransaction_WatchUnchanged(t *testing.T) {
	_, client := newServerAndClient(t)
	ctx := context.Background()

	tx := client.CreateTransaction()
	defer tx.Close()
	require.NoError(t, tx.Watch("a", "b"))

	n, err := Queue(tx, NewRPushCommand("a", []byte("x")))
	require.NoError(t, err)

	committed, err := tx.Complete(ctx)
	require.NoError(t, err)
	require.True(t, committed)

	length, err := n.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), length)
}

func TestTransaction_CommandErrorStaysOnItsResult(t *testing.T) {
	_, client := newServerAndClient(t)
	ctx := context.Background()

	_, err := client.Set(ctx, "str", []byte("x"), SetOptions{})
	require.NoError(t, err)

	tx := client.CreateTransaction()
	defer tx.Close()

	push, err := Queue(tx, NewLPushCommand("str", []byte("a")))
	require.NoError(t, err)
	get, err := Queue(tx, NewGetCommand("str"))
	require.NoError(t, err)

	committed, err := tx.Complete(ctx)
	require.NoError(t, err)
	require.True(t, committed)

	_, err = push.Result()
	require.True(t, IsServerError(err, "WRONGTYPE"), "got %v", err)

	value, err := get.Result()
	require.NoError(t, err)
	require.Equal(t, "x", string(value.Value()))
}

func TestTransaction_ExecAbort(t *testing.T) {
	srv, client := newServerAndClient(t)
	ctx := context.Background()

	tx := client.CreateTransaction()
	defer tx.Close()

	bad, err := Queue(tx, NewCommand(ValueResult, "NOPE"))
	require.NoError(t, err)
	set, err := Queue(tx, NewSetCommand("k", []byte("v"), SetOptions{}))
	require.NoError(t, err)

	committed, err := tx.Complete(ctx)
	require.False(t, committed)
	require.True(t, IsServerError(err, "EXECABORT"), "got %v", err)

	_, err = bad.Result()
	require.True(t, IsServerError(err, "ERR"), "got %v", err)
	_, err = set.Result()
	require.True(t, IsServerError(err, "EXECABORT"), "got %v", err)

	// nothing was applied and the connection is still usable
	value, err := client.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, value.HasValue())
	require.Equal(t, 1, srv.Connections())
}

func TestTransaction_Empty(t *testing.T) {
	_, client := newServerAndClient(t)

	tx := client.CreateTransaction()
	defer tx.Close()

	committed, err := tx.Complete(context.Background())
	require.NoError(t, err)
	require.True(t, committed)
}

func TestTransaction_CloseBeforeComplete(t *testing.T) {
	srv, client := newServerAndClient(t)

	tx := client.CreateTransaction()
	f, err := Queue(tx, NewSetCommand("k", []byte("v"), SetOptions{}))
	require.NoError(t, err)

	tx.Close()

	require.True(t, f.Resolved())
	_, err = f.Result()
	require.ErrorIs(t, err, ErrTransactionCanceled)

	_, err = Queue(tx, NewGetCommand("k"))
	require.ErrorIs(t, err, ErrTransactionDone)
	require.ErrorIs(t, tx.Watch("k"), ErrTransactionDone)

	_, err = tx.Complete(context.Background())
	require.ErrorIs(t, err, ErrTransactionDone)

	require.Empty(t, srv.Commands())
}

func TestTransaction_CompleteOnce(t *testing.T) {
	_, client := newServerAndClient(t)
	ctx := context.Background()

	tx := client.CreateTransaction()
	defer tx.Close()

	f, err := Queue(tx, NewSetCommand("k", []byte("v"), SetOptions{}))
	require.NoError(t, err)

	committed, err := tx.Complete(ctx)
	require.NoError(t, err)
	require.True(t, committed)

	_, err = tx.Complete(ctx)
	require.ErrorIs(t, err, ErrTransactionDone)

	_, err = Queue(tx, NewGetCommand("k"))
	require.ErrorIs(t, err, ErrTransactionDone)

	// Close after Complete keeps the results
	tx.Close()
	ok, err := f.Result()
	require.NoError(t, err)
	require.True(t, ok)
}

func TestTransaction_BufferPool(t *testing.T) {
	_, client := newServerAndClient(t, func(c *Config) { c.UseBufferPool = true })
	ctx := context.Background()

	_, err := client.Set(ctx, "k", []byte("pooled payload"), SetOptions{})
	require.NoError(t, err)

	tx := client.CreateTransaction()
	get, err := Queue(tx, NewGetCommand("k"))
	require.NoError(t, err)

	committed, err := tx.Complete(ctx)
	require.NoError(t, err)
	require.True(t, committed)
	require.Positive(t, tx.buffers.Rented())

	value, err := get.Result()
	require.NoError(t, err)
	require.Equal(t, "pooled payload", string(value.Value()))

	tx.Close()
	require.Zero(t, tx.buffers.Rented())
}

func TestTransaction_ConnectionLost(t *testing.T) {
	addr := startScriptedServer(t, func(conn net.Conn, requests *requestReader) {
		requests.Next() // MULTI
	})
	client := newTestClient(t, addr)

	tx := client.CreateTransaction()
	defer tx.Close()
	f, err := Queue(tx, NewSetCommand("k", []byte("v"), SetOptions{}))
	require.NoError(t, err)

	committed, err := tx.Complete(context.Background())
	require.False(t, committed)
	require.True(t, IsConnectionError(err), "got %v", err)

	_, err = f.Result()
	require.ErrorIs(t, err, ErrTransactionCanceled)
	require.Equal(t, uint64(1), client.PoolStats().DestroyedConns)
}

func TestFuture_Wait(t *testing.T) {
	f := newFuture[int]()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, f.Resolved())

	go f.resolve(42, nil)

	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, v)

	// resolved exactly once
	f.resolve(7, ErrTransactionCanceled)
	v, err = f.Result()
	require.NoError(t, err)
	require.Equal(t, 42, v)

	select {
	case <-f.Done():
	default:
		t.Fatal("done channel not closed")
	}
}
