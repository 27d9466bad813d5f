package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pior/redis"
	"github.com/pior/redis/metrics"
)

type OperationType string

const (
	CacheHit    OperationType = "cache-hit"
	CacheMiss   OperationType = "cache-miss"
	SetDelete   OperationType = "set-delete"
	Transaction OperationType = "transaction"
	Batch       OperationType = "batch"
	All         OperationType = "all"
)

type BenchmarkResult struct {
	Operation    OperationType
	Duration     time.Duration
	TotalOps     int64
	Failures     int64
	AvgLatency   time.Duration
	OpsPerSecond float64
}

func main() {
	var (
		operation   = flag.String("operation", "all", "Operation type: cache-hit, cache-miss, set-delete, transaction, batch, or all")
		duration    = flag.Duration("duration", 5*time.Second, "Duration to run benchmarks")
		concurrency = flag.Int("concurrency", 4, "Number of concurrent workers")
		addr        = flag.String("addr", "localhost:6379", "Server address")
		maxSize     = flag.Int("max-size", 16, "Maximum number of connections")
		pool        = flag.String("pool", "channel", "Pool implementation: channel, puddle or commons")
		metricsAddr = flag.String("metrics", "", "Serve Prometheus metrics on this address, e.g. :9100")
		breaker     = flag.Bool("circuit-breaker", false, "Guard the server with a circuit breaker")
	)
	flag.Parse()

	config := redis.Config{
		Address: *addr,
		MaxSize: int32(*maxSize),
	}
	switch *pool {
	case "channel":
	case "puddle":
		config.Pool = redis.NewPuddlePool
	case "commons":
		config.Pool = redis.NewCommonsPool
	default:
		log.Fatalf("Unknown pool: %s", *pool)
	}
	if *breaker {
		config.NewCircuitBreaker = redis.NewCircuitBreakerConfig(3, 10*time.Second, 5*time.Second)
	}

	client, err := redis.NewClient(config)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	if *metricsAddr != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(metrics.NewCollector(client))
		go func() {
			http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			log.Printf("Serving metrics on %s/metrics", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("metrics server: %v", err)
			}
		}()
	}

	fmt.Printf("Redis Benchmark Tool\n")
	fmt.Printf("====================\n")
	fmt.Printf("Operation: %s, duration: %v, concurrency: %d, pool: %s\n\n", *operation, *duration, *concurrency, *pool)

	fmt.Print("Testing connection...")
	if err := client.Ping(context.Background()); err != nil {
		fmt.Printf(" failed: %v\n", err)
		return
	}
	fmt.Println(" success!")

	operations := []OperationType{OperationType(*operation)}
	if OperationType(*operation) == All {
		operations = []OperationType{CacheHit, CacheMiss, SetDelete, Transaction, Batch}
	}
	for _, op := range operations {
		work, ok := workloads[op]
		if !ok {
			log.Fatalf("Unknown operation: %s", op)
		}
		printResult(run(client, op, work, *duration, *concurrency))
	}

	stats := client.PoolStats()
	fmt.Printf("\nPool: created=%d destroyed=%d acquires=%d waits=%d\n",
		stats.CreatedConns, stats.DestroyedConns, stats.AcquireCount, stats.AcquireWaitCount)
}

type workload func(ctx context.Context, client *redis.Client, worker int, i int64) error

var workloads = map[OperationType]workload{
	CacheHit: func(ctx context.Context, client *redis.Client, worker int, i int64) error {
		v, err := client.Get(ctx, "bench:hit")
		if err != nil {
			return err
		}
		if !v.HasValue() {
			_, err = client.Set(ctx, "bench:hit", []byte("cache-hit-value"), redis.SetOptions{})
		}
		return err
	},
	CacheMiss: func(ctx context.Context, client *redis.Client, worker int, i int64) error {
		_, err := client.Get(ctx, "bench:miss:"+strconv.FormatInt(i, 10))
		return err
	},
	SetDelete: func(ctx context.Context, client *redis.Client, worker int, i int64) error {
		key := "bench:set:" + strconv.Itoa(worker)
		if _, err := client.Set(ctx, key, []byte(strconv.FormatInt(i, 10)), redis.SetOptions{Expiration: time.Minute}); err != nil {
			return err
		}
		_, err := client.Delete(ctx, key)
		return err
	},
	Transaction: func(ctx context.Context, client *redis.Client, worker int, i int64) error {
		key := "bench:tx:" + strconv.Itoa(worker)
		tx := client.CreateTransaction()
		defer tx.Close()

		if _, err := redis.Queue(tx, redis.NewSetCommand(key, []byte("value"), redis.SetOptions{})); err != nil {
			return err
		}
		get, err := redis.Queue(tx, redis.NewGetCommand(key))
		if err != nil {
			return err
		}
		if _, err := tx.Complete(ctx); err != nil {
			return err
		}
		_, err = get.Result()
		return err
	},
	Batch: func(ctx context.Context, client *redis.Client, worker int, i int64) error {
		prefix := "bench:batch:" + strconv.Itoa(worker) + ":"
		items := make([]redis.Item, 10)
		keys := make([]string, len(items))
		for n := range items {
			keys[n] = prefix + strconv.Itoa(n)
			items[n] = redis.Item{Key: keys[n], Value: []byte(strconv.FormatInt(i, 10)), TTL: time.Minute}
		}
		if err := client.MultiSet(ctx, items); err != nil {
			return err
		}
		_, err := client.MultiGet(ctx, keys...)
		return err
	},
}

func run(client *redis.Client, op OperationType, work workload, duration time.Duration, concurrency int) BenchmarkResult {
	var totalOps, failures, totalLatency atomic.Int64

	ctx := context.Background()
	start := time.Now()
	var wg sync.WaitGroup

	for worker := range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Since(start) < duration {
				opStart := time.Now()
				err := work(ctx, client, worker, totalOps.Add(1))
				totalLatency.Add(int64(time.Since(opStart)))
				if err != nil {
					failures.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	elapsed := time.Since(start)
	result := BenchmarkResult{
		Operation: op,
		Duration:  elapsed,
		TotalOps:  totalOps.Load(),
		Failures:  failures.Load(),
	}
	if result.TotalOps > 0 {
		result.AvgLatency = time.Duration(totalLatency.Load() / result.TotalOps)
		result.OpsPerSecond = float64(result.TotalOps) / elapsed.Seconds()
	}
	return result
}

func printResult(r BenchmarkResult) {
	fmt.Printf("\n--- %s ---\n", r.Operation)
	fmt.Printf("Total operations: %d (failures: %d)\n", r.TotalOps, r.Failures)
	fmt.Printf("Average latency:  %v\n", r.AvgLatency)
	fmt.Printf("Throughput:       %.0f ops/sec\n", r.OpsPerSecond)
}
