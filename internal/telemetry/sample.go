package telemetry

import (
	"encoding/json"
	"time"
)

type Sample struct {
	Endpoint      string    `json:"endpoint"`
	Method        string    `json:"method"`
	RequestBytes  int64     `json:"request_bytes"`
	ResponseBytes int64     `json:"response_bytes"`
	ElapsedMs     int64     `json:"elapsed_ms"`
	StatusCode    int       `json:"status_code"`
	Timestamp     time.Time `json:"timestamp"`
	ActorID       string    `json:"actor_id,omitempty"`
}

type DimensionKey struct {
	Endpoint string `json:"endpoint"`
	Method   string `json:"method"`
}

func (s Sample) Key() DimensionKey {
	return DimensionKey{Endpoint: s.Endpoint, Method: s.Method}
}

func (s Sample) IsError() bool {
	return s.StatusCode >= 400
}

func (k DimensionKey) String() string {
	return k.Method + " " + k.Endpoint
}

func encodeSample(s Sample) ([]byte, error) {
	return json.Marshal(s)
}

func decodeSample(data []byte) (Sample, error) {
	var s Sample
	err := json.Unmarshal(data, &s)
	return s, err
}
