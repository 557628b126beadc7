package telemetry

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/eleven-am/tutor-backend/internal/shared"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultLiveTTL  = 5 * time.Minute
	liveKeyPrefix   = "telemetry:live:"
	liveIndexSuffix = "index"
)

// mergeLiveScript adds one bucket to a live entry. Counters and sums are
// incremented, max/min keep the extreme, avg is recomputed from the sums.
// KEYS: entry, index. ARGV: count, success, error, req bytes, resp bytes,
// elapsed, max, min, endpoint, method, ttl ms.
var mergeLiveScript = redis.NewScript(`
local key = KEYS[1]
local count = redis.call('HINCRBY', key, 'count', ARGV[1])
redis.call('HINCRBY', key, 'success_count', ARGV[2])
redis.call('HINCRBY', key, 'error_count', ARGV[3])
redis.call('HINCRBY', key, 'total_request_bytes', ARGV[4])
redis.call('HINCRBY', key, 'total_response_bytes', ARGV[5])
local elapsed = redis.call('HINCRBY', key, 'total_elapsed_ms', ARGV[6])
local max = tonumber(redis.call('HGET', key, 'max_elapsed_ms'))
if not max or tonumber(ARGV[7]) > max then
	redis.call('HSET', key, 'max_elapsed_ms', ARGV[7])
end
local min = tonumber(redis.call('HGET', key, 'min_elapsed_ms'))
if not min or tonumber(ARGV[8]) < min then
	redis.call('HSET', key, 'min_elapsed_ms', ARGV[8])
end
redis.call('HSET', key, 'avg_elapsed_ms', tostring(elapsed / count))
redis.call('HSET', key, 'endpoint', ARGV[9])
redis.call('HSET', key, 'method', ARGV[10])
redis.call('PEXPIRE', key, ARGV[11])
redis.call('SADD', KEYS[2], key)
redis.call('PEXPIRE', KEYS[2], ARGV[11])
return count
`)

type LiveEntry struct {
	Endpoint       string  `json:"endpoint"`
	Method         string  `json:"method"`
	Count          int64   `json:"count"`
	SuccessCount   int64   `json:"success_count"`
	ErrorCount     int64   `json:"error_count"`
	TotalInbound   int64   `json:"total_inbound"`
	TotalOutbound  int64   `json:"total_outbound"`
	TotalElapsedMs int64   `json:"total_elapsed_ms"`
	MaxElapsedMs   int64   `json:"max_elapsed_ms"`
	MinElapsedMs   int64   `json:"min_elapsed_ms"`
	AvgElapsedMs   float64 `json:"avg_elapsed_ms"`
}

type LiveView struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewLiveView(redisClient *redis.Client, ttl time.Duration) *LiveView {
	if ttl <= 0 {
		ttl = DefaultLiveTTL
	}
	return &LiveView{redis: redisClient, ttl: ttl}
}

func liveEntryKey(k DimensionKey) string {
	return liveKeyPrefix + k.Method + ":" + k.Endpoint
}

func liveIndexKey() string {
	return liveKeyPrefix + liveIndexSuffix
}

func (v *LiveView) Merge(ctx context.Context, buckets []*Bucket) error {
	for _, b := range buckets {
		err := mergeLiveScript.Run(ctx, v.redis,
			[]string{liveEntryKey(b.Key), liveIndexKey()},
			b.Count,
			b.SuccessCount,
			b.ErrorCount,
			b.TotalRequestBytes,
			b.TotalResponseBytes,
			b.TotalElapsedMs,
			b.MaxElapsedMs,
			b.MinElapsedMs,
			b.Key.Endpoint,
			b.Key.Method,
			v.ttl.Milliseconds(),
		).Err()
		if err != nil {
			return fmt.Errorf("merge live entry %s: %w", b.Key, err)
		}
	}
	return nil
}

func (v *LiveView) Get(ctx context.Context, key DimensionKey) (*LiveEntry, error) {
	data, err := v.redis.HGetAll(ctx, liveEntryKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("get live entry: %w", err)
	}
	if len(data) == 0 {
		return nil, shared.ErrNotFound
	}
	return parseLiveEntry(data), nil
}

// List returns every unexpired entry, pruning index members whose entry has
// already expired.
func (v *LiveView) List(ctx context.Context) ([]*LiveEntry, error) {
	members, err := v.redis.SMembers(ctx, liveIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list live index: %w", err)
	}

	entries := make([]*LiveEntry, 0, len(members))
	var stale []any
	for _, member := range members {
		data, err := v.redis.HGetAll(ctx, member).Result()
		if err != nil {
			return nil, fmt.Errorf("get live entry: %w", err)
		}
		if len(data) == 0 {
			stale = append(stale, member)
			continue
		}
		entries = append(entries, parseLiveEntry(data))
	}

	if len(stale) > 0 {
		v.redis.SRem(ctx, liveIndexKey(), stale...)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Endpoint != entries[j].Endpoint {
			return entries[i].Endpoint < entries[j].Endpoint
		}
		return entries[i].Method < entries[j].Method
	})
	return entries, nil
}

func parseLiveEntry(data map[string]string) *LiveEntry {
	e := &LiveEntry{
		Endpoint: data["endpoint"],
		Method:   data["method"],
	}
	e.Count, _ = strconv.ParseInt(data["count"], 10, 64)
	e.SuccessCount, _ = strconv.ParseInt(data["success_count"], 10, 64)
	e.ErrorCount, _ = strconv.ParseInt(data["error_count"], 10, 64)
	e.TotalInbound, _ = strconv.ParseInt(data["total_request_bytes"], 10, 64)
	e.TotalOutbound, _ = strconv.ParseInt(data["total_response_bytes"], 10, 64)
	e.TotalElapsedMs, _ = strconv.ParseInt(data["total_elapsed_ms"], 10, 64)
	e.MaxElapsedMs, _ = strconv.ParseInt(data["max_elapsed_ms"], 10, 64)
	e.MinElapsedMs, _ = strconv.ParseInt(data["min_elapsed_ms"], 10, 64)
	if e.Count > 0 {
		e.AvgElapsedMs = float64(e.TotalElapsedMs) / float64(e.Count)
	}
	return e
}
