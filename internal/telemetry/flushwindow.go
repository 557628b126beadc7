package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultFlushInterval = 60 * time.Second
	DefaultFlushKey      = "telemetry:rollup:last_flushed_at"
)

// claimFlushScript sets KEYS[1] to ARGV[1] (unix ms) and returns 1 when the
// stored timestamp is absent or more than ARGV[2] ms older; otherwise 0.
var claimFlushScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local last = tonumber(redis.call('GET', KEYS[1]))
if last and now - last <= tonumber(ARGV[2]) then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1])
return 1
`)

// FlushWindow guards the durable flush cadence. The check and the claim run
// as one script, so concurrent claimers cannot both win the same window.
type FlushWindow struct {
	redis    *redis.Client
	key      string
	interval time.Duration
}

func NewFlushWindow(redisClient *redis.Client, key string, interval time.Duration) *FlushWindow {
	if key == "" {
		key = DefaultFlushKey
	}
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &FlushWindow{redis: redisClient, key: key, interval: interval}
}

func (w *FlushWindow) Claim(ctx context.Context, now time.Time) (bool, error) {
	res, err := claimFlushScript.Run(ctx, w.redis, []string{w.key},
		now.UnixMilli(), w.interval.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("claim flush window: %w", err)
	}
	return res == 1, nil
}

func (w *FlushWindow) LastFlushedAt(ctx context.Context) (time.Time, bool, error) {
	v, err := w.redis.Get(ctx, w.key).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read flush window: %w", err)
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse flush window: %w", err)
	}
	return time.UnixMilli(ms).UTC(), true, nil
}
