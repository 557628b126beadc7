package main

import (
	"github.com/eleven-am/tutor-backend/internal/bootstrap"
)

// @title Tutor Telemetry API
// @version 1.0.0
// @description Request telemetry and live connection quality for tutoring sessions

// @host api.tutor.example.com
// @BasePath /v1

func main() {
	bootstrap.Run()
}
