package redis

import (
	"context"
	"time"
)

// Querier is the set of key-value operations shared by Client and Commands.
// Code depending on it can be tested against a fake.
type Querier interface {
	Ping(ctx context.Context) error
	Get(ctx context.Context, key string) (Optional[[]byte], error)
	Set(ctx context.Context, key string, value []byte, opts SetOptions) (bool, error)
	Delete(ctx context.Context, keys ...string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, keys ...string) (int64, error)
	Publish(ctx context.Context, channel string, message []byte) (int64, error)
}
