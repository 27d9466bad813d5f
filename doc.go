// Package redis is a client for Redis servers speaking RESP2.
//
// A Client owns a pool of connections to one server. Every command checks a
// connection out for its whole round trip, so replies are never multiplexed:
//
//	client, err := redis.NewClient(redis.Config{Address: "localhost:6379"})
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	_, err = client.Set(ctx, "key", []byte("value"), redis.SetOptions{Expiration: time.Minute})
//	value, err := client.Get(ctx, "key")
//
// Commands are values of type Command[T]: the request arguments plus the
// function extracting a T from the reply. Execute runs one on any Executor.
// Pipeline and the Multi* methods send several commands in one round trip.
//
// A server still loading its dataset (LOADING) is retried with exponential
// backoff, and scripts evicted from the server cache (NOSCRIPT) are loaded
// again before one more attempt.
//
// CreateTransaction groups commands in MULTI/EXEC with optional WATCH keys.
// Subscribe holds a connection for the messages of one channel until
// Unsubscribe or Close.
package redis
