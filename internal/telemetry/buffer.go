package telemetry

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultBufferKey      = "telemetry:samples"
	DefaultBufferCapacity = 10000
)

// Buffer is a bounded FIFO of serialized samples. Push adds at the head and
// evicts the oldest entries beyond capacity; Drain removes from the tail and
// returns entries oldest first.
type Buffer interface {
	Push(ctx context.Context, entry []byte) error
	Drain(ctx context.Context, max int) ([][]byte, error)
	Len(ctx context.Context) (int64, error)
	Capacity() int
}

type RedisBuffer struct {
	redis    *redis.Client
	key      string
	capacity int
}

func NewRedisBuffer(redisClient *redis.Client, key string, capacity int) *RedisBuffer {
	if key == "" {
		key = DefaultBufferKey
	}
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &RedisBuffer{
		redis:    redisClient,
		key:      key,
		capacity: capacity,
	}
}

func (b *RedisBuffer) Capacity() int {
	return b.capacity
}

func (b *RedisBuffer) Push(ctx context.Context, entry []byte) error {
	pipe := b.redis.Pipeline()
	pipe.LPush(ctx, b.key, entry)
	pipe.LTrim(ctx, b.key, 0, int64(b.capacity-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push sample: %w", err)
	}
	return nil
}

func (b *RedisBuffer) Drain(ctx context.Context, max int) ([][]byte, error) {
	if max <= 0 {
		return nil, nil
	}

	var rangeCmd *redis.StringSliceCmd
	_, err := b.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		rangeCmd = pipe.LRange(ctx, b.key, int64(-max), -1)
		pipe.LTrim(ctx, b.key, 0, int64(-max-1))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("drain samples: %w", err)
	}

	values := rangeCmd.Val()
	entries := make([][]byte, 0, len(values))
	for i := len(values) - 1; i >= 0; i-- {
		entries = append(entries, []byte(values[i]))
	}
	return entries, nil
}

func (b *RedisBuffer) Len(ctx context.Context) (int64, error) {
	n, err := b.redis.LLen(ctx, b.key).Result()
	if err != nil {
		return 0, fmt.Errorf("buffer length: %w", err)
	}
	return n, nil
}
