package bootstrap

import (
	"log/slog"
	"os"

	"github.com/eleven-am/tutor-backend/internal/quality"
	"github.com/eleven-am/tutor-backend/internal/telemetry"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

type HandlerParams struct {
	fx.In

	TelemetryHandler *telemetry.Handler
	QualityHandler   *quality.Handler
	WebhookHandler   *quality.WebhookHandler
	Registry         *prometheus.Registry
}

func RegisterRoutes(e *echo.Echo, params HandlerParams) {
	api := e.Group("/v1")

	params.TelemetryHandler.RegisterRoutes(api.Group("/telemetry"))

	qualityGroup := api.Group("/quality")
	params.QualityHandler.RegisterRoutes(qualityGroup)
	params.WebhookHandler.RegisterRoutes(qualityGroup)

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(params.Registry, promhttp.HandlerOpts{})))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func ProvideLogger(cfg *Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
}

var HandlersModule = fx.Options(
	fx.Provide(ProvideLogger),
	fx.Invoke(RegisterRoutes),
)
