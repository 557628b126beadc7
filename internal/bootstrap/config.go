package bootstrap

import (
	"os"
	"strconv"
	"time"

	"github.com/eleven-am/tutor-backend/internal/quality"
	"github.com/eleven-am/tutor-backend/internal/telemetry"
)

type Config struct {
	ServerAddr string
	LogLevel   string

	DatabaseDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LiveKitAPIKey    string
	LiveKitAPISecret string

	TelemetryBufferKey      string
	TelemetryBufferCapacity int
	TelemetryQueueSize      int
	TelemetryBatchSize      int
	TelemetryTickInterval   time.Duration
	TelemetryFlushInterval  time.Duration
	TelemetryLiveTTL        time.Duration

	QualityStateTTL          time.Duration
	QualityRoutineInterval   time.Duration
	QualitySecondaryInterval time.Duration
	QualityAlertCooldown     time.Duration
	QualityProducerRate      float64
	QualityProducerBurst     int
}

func LoadConfig() *Config {
	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		DatabaseDSN: getEnv("DATABASE_DSN", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		LiveKitAPIKey:    getEnv("LIVEKIT_API_KEY", ""),
		LiveKitAPISecret: getEnv("LIVEKIT_API_SECRET", ""),

		TelemetryBufferKey:      getEnv("TELEMETRY_BUFFER_KEY", telemetry.DefaultBufferKey),
		TelemetryBufferCapacity: getEnvInt("TELEMETRY_BUFFER_CAPACITY", telemetry.DefaultBufferCapacity),
		TelemetryQueueSize:      getEnvInt("TELEMETRY_QUEUE_SIZE", 0),
		TelemetryBatchSize:      getEnvInt("TELEMETRY_BATCH_SIZE", telemetry.DefaultBatchSize),
		TelemetryTickInterval:   getEnvDuration("TELEMETRY_TICK_INTERVAL", telemetry.DefaultTickInterval),
		TelemetryFlushInterval:  getEnvDuration("TELEMETRY_FLUSH_INTERVAL", telemetry.DefaultFlushInterval),
		TelemetryLiveTTL:        getEnvDuration("TELEMETRY_LIVE_TTL", telemetry.DefaultLiveTTL),

		QualityStateTTL:          getEnvDuration("QUALITY_STATE_TTL", quality.DefaultStateTTL),
		QualityRoutineInterval:   getEnvDuration("QUALITY_ROUTINE_INTERVAL", quality.DefaultRoutineInterval),
		QualitySecondaryInterval: getEnvDuration("QUALITY_SECONDARY_INTERVAL", quality.DefaultSecondaryInterval),
		QualityAlertCooldown:     getEnvDuration("QUALITY_ALERT_COOLDOWN", quality.DefaultAlertCooldown),
		QualityProducerRate:      getEnvFloat("QUALITY_PRODUCER_RATE", quality.DefaultProducerRate),
		QualityProducerBurst:     getEnvInt("QUALITY_PRODUCER_BURST", quality.DefaultProducerBurst),
	}
}

func ProvideTelemetryConfig(cfg *Config) telemetry.Config {
	return telemetry.Config{
		BufferKey:      cfg.TelemetryBufferKey,
		BufferCapacity: cfg.TelemetryBufferCapacity,
		QueueSize:      cfg.TelemetryQueueSize,
		BatchSize:      cfg.TelemetryBatchSize,
		TickInterval:   cfg.TelemetryTickInterval,
		FlushInterval:  cfg.TelemetryFlushInterval,
		LiveTTL:        cfg.TelemetryLiveTTL,
	}
}

func ProvideQualityConfig(cfg *Config) quality.Config {
	return quality.Config{
		StateTTL:          cfg.QualityStateTTL,
		RoutineInterval:   cfg.QualityRoutineInterval,
		SecondaryInterval: cfg.QualitySecondaryInterval,
		AlertCooldown:     cfg.QualityAlertCooldown,
		ProducerRate:      cfg.QualityProducerRate,
		ProducerBurst:     cfg.QualityProducerBurst,
		LiveKitAPIKey:     cfg.LiveKitAPIKey,
		LiveKitAPISecret:  cfg.LiveKitAPISecret,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
