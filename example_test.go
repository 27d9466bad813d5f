package redis_test

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/pior/redis"
	"github.com/pior/redis/resp"
)

func ExampleClient() {
	client, err := redis.NewClient(redis.Config{
		Address:  "localhost:6379",
		Password: "secret",
		Database: 2,
		MaxSize:  10,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	ctx := context.Background()

	// Store a value for one minute, only if the key does not exist yet
	created, err := client.Set(ctx, "user:123", []byte("John"), redis.SetOptions{
		Expiration: time.Minute,
		Condition:  redis.IfNotExists,
	})
	if err != nil {
		log.Printf("Set failed: %v", err)
		return
	}
	fmt.Printf("Created: %v\n", created)

	value, err := client.Get(ctx, "user:123")
	if err != nil {
		log.Printf("Get failed: %v", err)
		return
	}
	if value.HasValue() {
		fmt.Printf("Got value: %s\n", value.Value())
	}

	// Any command can be built and executed with its own result type
	length, err := redis.Execute(ctx, client, redis.NewRPushCommand("queue", []byte("job-1"), []byte("job-2")))
	if err != nil {
		log.Printf("RPUSH failed: %v", err)
		return
	}
	fmt.Printf("Queue length: %d\n", length)

	// Error replies are returned as *redis.ServerError
	_, err = redis.Execute(ctx, client, redis.NewLLenCommand("user:123"))
	if redis.IsServerError(err, "WRONGTYPE") {
		fmt.Println("user:123 is not a list")
	}
}

func ExampleClient_Eval() {
	client, err := redis.NewClient(redis.Config{
		Address:        "localhost:6379",
		UseScriptCache: true,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	// The script is loaded once, then called with EVALSHA. It is loaded
	// again if the server flushes its script cache.
	v, err := client.Eval(context.Background(),
		"return redis.call('INCRBY', KEYS[1], ARGV[1])",
		[]string{"counter"}, resp.ValueOf(5))
	if err != nil {
		log.Printf("Eval failed: %v", err)
		return
	}
	fmt.Printf("Counter: %d\n", v.Int())
}

func ExampleClient_MultiGet() {
	client, err := redis.NewClient(redis.Config{Address: "localhost:6379"})
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	ctx := context.Background()

	// All writes are sent in a single round trip
	err = client.MultiSet(ctx, []redis.Item{
		{Key: "a", Value: []byte("1")},
		{Key: "b", Value: []byte("2"), TTL: time.Hour},
	})
	if err != nil {
		log.Printf("MultiSet failed: %v", err)
		return
	}

	values, err := client.MultiGet(ctx, "a", "b", "c")
	if err != nil {
		log.Printf("MultiGet failed: %v", err)
		return
	}
	for i, v := range values {
		fmt.Printf("value %d: found=%v %s\n", i, v.HasValue(), v.Value())
	}
}

func ExampleTransaction() {
	client, err := redis.NewClient(redis.Config{Address: "localhost:6379"})
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	ctx := context.Background()

	tx := client.CreateTransaction()
	defer tx.Close()

	// Abort if another client changes the balance before EXEC
	if err := tx.Watch("balance"); err != nil {
		log.Fatal(err)
	}

	set, err := redis.Queue(tx, redis.NewSetCommand("balance", []byte("100"), redis.SetOptions{}))
	if err != nil {
		log.Fatal(err)
	}
	entries, err := redis.Queue(tx, redis.NewRPushCommand("ledger", []byte("+100")))
	if err != nil {
		log.Fatal(err)
	}

	committed, err := tx.Complete(ctx)
	if err != nil {
		log.Printf("Transaction failed: %v", err)
		return
	}
	if !committed {
		// Every queued result is now redis.ErrTransactionCanceled
		_, err := set.Result()
		fmt.Printf("Aborted: %v\n", errors.Is(err, redis.ErrTransactionCanceled))
		return
	}

	ok, _ := set.Result()
	n, _ := entries.Result()
	fmt.Printf("Set: %v, ledger entries: %d\n", ok, n)
}

func ExampleSubscription() {
	client, err := redis.NewClient(redis.Config{Address: "localhost:6379"})
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	ctx := context.Background()

	// The subscription holds its own connection until it is closed
	sub, err := client.Subscribe(ctx, "news")
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		// Unsubscribes, and gives the connection back to the pool
		_ = sub.Shutdown(context.Background())
	}()

	for range 3 {
		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		payload, err := sub.Message(waitCtx)
		cancel()
		if errors.Is(err, context.DeadlineExceeded) {
			// The subscription survives a canceled wait
			continue
		}
		if err != nil {
			log.Printf("Subscription failed: %v", err)
			return
		}
		fmt.Printf("Message on %s: %s\n", sub.Channel(), payload)
	}
}

func ExampleNewCircuitBreakerConfig() {
	client, err := redis.NewClient(redis.Config{
		Address: "localhost:6379",
		// Trips after consecutive connection errors. Error replies from the
		// server do not count as failures.
		NewCircuitBreaker: redis.NewCircuitBreakerConfig(3, time.Minute, 10*time.Second),
	})
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	if err := client.Ping(context.Background()); err != nil {
		log.Printf("Ping failed: %v", err)
	}
	fmt.Printf("Circuit breaker: %s\n", client.CircuitBreakerState())
}

func ExampleClient_Stats() {
	client, err := redis.NewClient(redis.Config{Address: "localhost:6379"})
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	_, _ = client.Get(context.Background(), "key")

	stats := client.Stats()
	fmt.Printf("Commands: %d, errors: %d, loading retries: %d\n",
		stats.Commands, stats.Errors, stats.LoadingRetries)

	pool := client.PoolStats()
	fmt.Printf("Connections: total=%d idle=%d active=%d\n",
		pool.TotalConns, pool.IdleConns, pool.ActiveConns)
}
