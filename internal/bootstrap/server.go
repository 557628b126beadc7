package bootstrap

import (
	"context"
	"net/http"

	"github.com/eleven-am/tutor-backend/internal/quality"
	"github.com/eleven-am/tutor-backend/internal/telemetry"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
)

var defaultCORSConfig = middleware.CORSConfig{
	AllowOrigins: []string{"*"},
	AllowMethods: []string{
		http.MethodGet,
		http.MethodHead,
		http.MethodPost,
		http.MethodOptions,
	},
	AllowHeaders: []string{
		"Accept",
		"Authorization",
		"Content-Type",
		"X-Requested-With",
		telemetry.ActorHeader,
	},
	MaxAge: 86400,
}

// Requests under these prefixes produce no telemetry samples. The quality
// websockets are long-lived and would report their lifetime as latency.
var untrackedPrefixes = []string{
	"/metrics",
	"/health",
	"/v1/telemetry",
	"/v1/quality/ws",
	"/v1/quality/observe",
}

func NewEchoServer(collector *telemetry.Collector) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(telemetry.Middleware(telemetry.MiddlewareConfig{
		Collector:    collector,
		SkipPrefixes: untrackedPrefixes,
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(defaultCORSConfig))
	return e
}

func StartServer(lc fx.Lifecycle, e *echo.Echo, cfg *Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := e.Start(cfg.ServerAddr); err != nil && err != http.ErrServerClosed {
					e.Logger.Fatal(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return e.Shutdown(ctx)
		},
	})
}

var ServerModule = fx.Options(
	fx.Provide(NewEchoServer),
	fx.Invoke(StartServer),
)

func Run() {
	fx.New(
		InfrastructureModule,
		telemetry.Module,
		quality.Module,
		StoresModule,
		ServerModule,
		HealthModule,
		HandlersModule,
	).Run()
}
