package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/eleven-am/tutor-backend/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var endpoints = []struct {
	path   string
	method string
}{
	{"/v1/lessons/:id", http.MethodGet},
	{"/v1/lessons", http.MethodPost},
	{"/v1/sessions/:id/join", http.MethodPost},
	{"/v1/quality/sessions/:session_id/participants/:participant_id", http.MethodPost},
}

func main() {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	count := 500
	if v := os.Getenv("SEED_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			count = n
		}
	}

	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
			os.Exit(1)
		}
		if err := telemetry.NewRollupStore(db).Migrate(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to migrate: %v\n", err)
			os.Exit(1)
		}
	}

	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer client.Close()

	collector := telemetry.NewCollector(telemetry.CollectorConfig{
		Buffer:    telemetry.NewRedisBuffer(client, os.Getenv("TELEMETRY_BUFFER_KEY"), 0),
		QueueSize: count,
		Log:       slog.New(slog.NewTextHandler(os.Stderr, nil)),
	})

	now := time.Now().UTC()
	for i := 0; i < count; i++ {
		ep := endpoints[rand.Intn(len(endpoints))]
		status := http.StatusOK
		if rand.Intn(20) == 0 {
			status = http.StatusInternalServerError
		}
		collector.Collect(telemetry.Sample{
			Endpoint:      ep.path,
			Method:        ep.method,
			RequestBytes:  int64(rand.Intn(2048)),
			ResponseBytes: int64(rand.Intn(8192)),
			ElapsedMs:     int64(5 + rand.Intn(400)),
			StatusCode:    status,
			Timestamp:     now.Add(-time.Duration(rand.Intn(3600)) * time.Second),
			ActorID:       fmt.Sprintf("tutor_%d", rand.Intn(10)),
		})
	}

	if err := collector.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to flush samples: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Seeded %d telemetry samples into %s\n", count, redisAddr)
}
