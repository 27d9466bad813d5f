package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pior/redis/resp"
)

func TestClient_ExecuteBatch(t *testing.T) {
	srv, client := newServerAndClient(t)
	ctx := context.Background()

	replies, err := client.ExecuteBatch(ctx, [][]resp.Value{
		NewSetCommand("a", []byte("1"), SetOptions{}).Args,
		NewGetCommand("a").Args,
		NewLLenCommand("a").Args,
		NewGetCommand("missing").Args,
	})
	require.NoError(t, err)
	require.Len(t, replies, 4)
	require.Equal(t, "OK", replies[0].Text())
	require.Equal(t, "1", replies[1].Text())
	require.True(t, replies[2].IsError())
	require.Equal(t, "WRONGTYPE", replies[2].ErrorType())
	require.True(t, replies[3].IsNull())

	require.Equal(t, 1, srv.Connections())
	require.Equal(t, uint64(4), client.Stats().Commands)

	replies, err = client.ExecuteBatch(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, replies)
}

func TestClient_ExecuteBatchRetriesLoading(t *testing.T) {
	srv, client := newServerAndClient(t, func(c *Config) {
		c.LoadingRetryDelayMin = time.Millisecond
		c.LoadingRetryDelayMax = time.Millisecond
	})
	srv.SetLoading(2)

	replies, err := client.ExecuteBatch(context.Background(), [][]resp.Value{
		NewPingCommand().Args,
		NewPingCommand().Args,
		NewPingCommand().Args,
	})
	require.NoError(t, err)
	for _, v := range replies {
		require.Equal(t, "PONG", v.Text())
	}
	require.Equal(t, 5, srv.CountCommands("PING"))
}

func TestBatchCommands(t *testing.T) {
	_, client := newServerAndClient(t)
	ctx := context.Background()

	err := client.MultiSet(ctx, []Item{
		{Key: "a", Value: []byte("1")},
		{Key: "b", Value: []byte("2"), TTL: time.Minute},
	})
	require.NoError(t, err)

	values, err := client.MultiGet(ctx, "a", "missing", "b")
	require.NoError(t, err)
	require.Equal(t, []Optional[[]byte]{
		Some([]byte("1")),
		Unspecified[[]byte](),
		Some([]byte("2")),
	}, values)

	n, err := client.MultiDelete(ctx, "a", "b", "missing")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	values, err = client.MultiGet(ctx)
	require.NoError(t, err)
	require.Nil(t, values)
}

func TestPipeline_ErrorReply(t *testing.T) {
	_, client := newServerAndClient(t)
	ctx := context.Background()

	_, err := Execute(ctx, client, NewLPushCommand("list", []byte("x")))
	require.NoError(t, err)

	_, err = client.MultiGet(ctx, "list")
	require.True(t, IsServerError(err, "WRONGTYPE"), "got %v", err)
}
