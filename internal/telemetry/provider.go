package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Config struct {
	BufferKey      string
	BufferCapacity int
	QueueSize      int
	BatchSize      int
	TickInterval   time.Duration
	FlushInterval  time.Duration
	LiveTTL        time.Duration
}

func ProvideMetrics(reg *prometheus.Registry) *Metrics {
	return NewMetrics(reg)
}

func ProvideBuffer(redisClient *redis.Client, cfg Config) *RedisBuffer {
	return NewRedisBuffer(redisClient, cfg.BufferKey, cfg.BufferCapacity)
}

func ProvideCollector(lc fx.Lifecycle, buffer *RedisBuffer, cfg Config, metrics *Metrics, logger *slog.Logger) *Collector {
	c := NewCollector(CollectorConfig{
		Buffer:    buffer,
		QueueSize: cfg.QueueSize,
		Metrics:   metrics,
		Log:       logger,
	})
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return c.Close()
		},
	})
	return c
}

func ProvideLiveView(redisClient *redis.Client, cfg Config) *LiveView {
	return NewLiveView(redisClient, cfg.LiveTTL)
}

func ProvideRollupStore(db *gorm.DB) *RollupStore {
	return NewRollupStore(db)
}

func ProvideFlushWindow(redisClient *redis.Client, cfg Config) *FlushWindow {
	return NewFlushWindow(redisClient, "", cfg.FlushInterval)
}

type AggregatorParams struct {
	fx.In

	Buffer  *RedisBuffer
	Live    *LiveView
	Rollups *RollupStore
	Window  *FlushWindow
	Config  Config
	Metrics *Metrics
	Logger  *slog.Logger
}

func ProvideAggregator(lc fx.Lifecycle, p AggregatorParams) *Aggregator {
	a := NewAggregator(AggregatorConfig{
		Buffer:    p.Buffer,
		LiveView:  p.Live,
		Rollups:   p.Rollups,
		Window:    p.Window,
		BatchSize: p.Config.BatchSize,
		Interval:  p.Config.TickInterval,
		Metrics:   p.Metrics,
		Log:       p.Logger,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			a.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return a.Close()
		},
	})
	return a
}

func ProvideHandler(collector *Collector, live *LiveView, rollups *RollupStore, window *FlushWindow, logger *slog.Logger) *Handler {
	return NewHandler(collector, live, rollups, window, logger.With("handler", "telemetry"))
}

var Module = fx.Options(
	fx.Provide(
		ProvideMetrics,
		ProvideBuffer,
		ProvideCollector,
		ProvideLiveView,
		ProvideRollupStore,
		ProvideFlushWindow,
		ProvideAggregator,
		ProvideHandler,
	),
	fx.Invoke(func(*Aggregator) {}),
)
