package telemetry

import "sort"

// Bucket accumulates the samples of one dimension key within a single tick.
type Bucket struct {
	Key                DimensionKey `json:"key"`
	Count              int64        `json:"count"`
	SuccessCount       int64        `json:"success_count"`
	ErrorCount         int64        `json:"error_count"`
	TotalRequestBytes  int64        `json:"total_request_bytes"`
	TotalResponseBytes int64        `json:"total_response_bytes"`
	TotalElapsedMs     int64        `json:"total_elapsed_ms"`
	MaxElapsedMs       int64        `json:"max_elapsed_ms"`
	MinElapsedMs       int64        `json:"min_elapsed_ms"`
}

func (b *Bucket) Add(s Sample) {
	if b.Count == 0 || s.ElapsedMs > b.MaxElapsedMs {
		b.MaxElapsedMs = s.ElapsedMs
	}
	if b.Count == 0 || s.ElapsedMs < b.MinElapsedMs {
		b.MinElapsedMs = s.ElapsedMs
	}
	b.Count++
	if s.IsError() {
		b.ErrorCount++
	} else {
		b.SuccessCount++
	}
	b.TotalRequestBytes += s.RequestBytes
	b.TotalResponseBytes += s.ResponseBytes
	b.TotalElapsedMs += s.ElapsedMs
}

func (b *Bucket) AvgElapsedMs() float64 {
	if b.Count == 0 {
		return 0
	}
	return float64(b.TotalElapsedMs) / float64(b.Count)
}

// GroupSamples builds one bucket per distinct key, ordered by key for
// deterministic downstream writes.
func GroupSamples(samples []Sample) []*Bucket {
	byKey := make(map[DimensionKey]*Bucket)
	for _, s := range samples {
		key := s.Key()
		b, ok := byKey[key]
		if !ok {
			b = &Bucket{Key: key}
			byKey[key] = b
		}
		b.Add(s)
	}

	buckets := make([]*Bucket, 0, len(byKey))
	for _, b := range byKey {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Key.Endpoint != buckets[j].Key.Endpoint {
			return buckets[i].Key.Endpoint < buckets[j].Key.Endpoint
		}
		return buckets[i].Key.Method < buckets[j].Key.Method
	})
	return buckets
}
