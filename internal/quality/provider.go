package quality

import (
	"context"
	"log/slog"
	"time"

	"github.com/eleven-am/tutor-backend/internal/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

type Config struct {
	StateTTL          time.Duration
	RoutineInterval   time.Duration
	SecondaryInterval time.Duration
	AlertCooldown     time.Duration
	ProducerRate      float64
	ProducerBurst     int
	LiveKitAPIKey     string
	LiveKitAPISecret  string
}

func ProvideMetrics(reg *prometheus.Registry) *Metrics {
	return NewMetrics(reg)
}

func ProvideStateStore(redisClient *redis.Client, cfg Config) *StateStore {
	return NewStateStore(redisClient, cfg.StateTTL)
}

func ProvideRegistry(metrics *Metrics) *Registry {
	return NewRegistry(metrics)
}

func ProvideGateway(lc fx.Lifecycle, store *StateStore, registry *Registry, cfg Config, metrics *Metrics, logger *slog.Logger) *Gateway {
	g := NewGateway(GatewayConfig{
		Store:             store,
		Registry:          registry,
		Gate:              ratelimit.NewGate(nil),
		RoutineInterval:   cfg.RoutineInterval,
		SecondaryInterval: cfg.SecondaryInterval,
		AlertCooldown:     cfg.AlertCooldown,
		StateTTL:          cfg.StateTTL,
		Metrics:           metrics,
		Log:               logger,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			g.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return g.Close()
		},
	})
	return g
}

func ProvideHandler(gateway *Gateway, store *StateStore, registry *Registry, cfg Config, metrics *Metrics, logger *slog.Logger) *Handler {
	return NewHandler(gateway, store, registry, cfg.ProducerRate, cfg.ProducerBurst, metrics, logger.With("handler", "quality"))
}

func ProvideWebhookHandler(store *StateStore, gateway *Gateway, cfg Config, logger *slog.Logger) *WebhookHandler {
	return NewWebhookHandler(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, store, gateway, logger.With("handler", "livekit_webhook"))
}

var Module = fx.Options(
	fx.Provide(
		ProvideMetrics,
		ProvideStateStore,
		ProvideRegistry,
		ProvideGateway,
		ProvideHandler,
		ProvideWebhookHandler,
	),
)
