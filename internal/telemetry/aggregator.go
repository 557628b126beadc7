package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	DefaultBatchSize    = 100
	DefaultTickInterval = 5 * time.Second
)

var ErrTickInProgress = errors.New("aggregator tick already in progress")

type LiveSink interface {
	Merge(ctx context.Context, buckets []*Bucket) error
}

type RollupWriter interface {
	Upsert(ctx context.Context, hour time.Time, buckets []*Bucket) error
}

type FlushClaimer interface {
	Claim(ctx context.Context, now time.Time) (bool, error)
}

type AggregatorConfig struct {
	Buffer    Buffer
	LiveView  LiveSink
	Rollups   RollupWriter
	Window    FlushClaimer
	BatchSize int
	Interval  time.Duration
	Clock     clock.Clock
	Metrics   *Metrics
	Log       *slog.Logger
}

type TickResult struct {
	Processed int           `json:"processed"`
	Duration  time.Duration `json:"duration"`
	Flushed   bool          `json:"flushed"`
}

func (r TickResult) DurationMs() int64 {
	return r.Duration.Milliseconds()
}

// Aggregator drains the sample buffer in fixed-size batches, publishes the
// grouped buckets to the live view, and adds them to the hourly rollup when
// the flush window is due. Samples drained by a failing tick are lost.
type Aggregator struct {
	buffer    Buffer
	live      LiveSink
	rollups   RollupWriter
	window    FlushClaimer
	batchSize int
	interval  time.Duration
	clock     clock.Clock
	metrics   *Metrics
	logger    *slog.Logger

	tickMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewAggregator(cfg AggregatorConfig) *Aggregator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultTickInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Aggregator{
		buffer:    cfg.Buffer,
		live:      cfg.LiveView,
		rollups:   cfg.Rollups,
		window:    cfg.Window,
		batchSize: cfg.BatchSize,
		interval:  cfg.Interval,
		clock:     cfg.Clock,
		metrics:   cfg.Metrics,
		logger:    cfg.Log.With("component", "aggregator"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Tick processes one batch. It returns ErrTickInProgress without doing any
// work when another tick is still running.
func (a *Aggregator) Tick(ctx context.Context) (result TickResult, err error) {
	if !a.tickMu.TryLock() {
		a.logger.Warn("skipping tick, previous tick still running")
		return TickResult{}, ErrTickInProgress
	}
	defer a.tickMu.Unlock()

	start := a.clock.Now()

	entries, err := a.buffer.Drain(ctx, a.batchSize)
	if err != nil {
		a.metrics.ticks.WithLabelValues(tickError).Inc()
		a.logger.Error("drain failed", "error", err)
		return TickResult{}, err
	}
	if len(entries) == 0 {
		a.metrics.ticks.WithLabelValues(tickEmpty).Inc()
		return TickResult{}, nil
	}

	result.Processed = len(entries)
	defer func() {
		result.Duration = a.clock.Since(start)
		a.metrics.processed.Add(float64(result.Processed))
		a.metrics.tickDuration.Observe(result.Duration.Seconds())
	}()

	samples := make([]Sample, 0, len(entries))
	for _, entry := range entries {
		s, err := decodeSample(entry)
		if err != nil {
			a.metrics.dropped.WithLabelValues(dropUndecodable).Inc()
			a.logger.Warn("skipping undecodable sample", "error", err)
			continue
		}
		samples = append(samples, s)
	}

	buckets := GroupSamples(samples)
	if len(buckets) == 0 {
		a.metrics.ticks.WithLabelValues(tickOK).Inc()
		return result, nil
	}

	if err := a.live.Merge(ctx, buckets); err != nil {
		a.metrics.ticks.WithLabelValues(tickError).Inc()
		a.logger.Error("live view update failed", "error", err, "samples", len(samples))
		return result, err
	}

	flushed, err := a.flush(ctx, start, buckets)
	result.Flushed = flushed
	if err != nil {
		a.metrics.ticks.WithLabelValues(tickError).Inc()
		return result, err
	}

	a.metrics.ticks.WithLabelValues(tickOK).Inc()
	a.logger.Debug("tick complete",
		"samples", len(samples),
		"buckets", len(buckets),
		"flushed", flushed)
	return result, nil
}

func (a *Aggregator) flush(ctx context.Context, now time.Time, buckets []*Bucket) (bool, error) {
	due, err := a.window.Claim(ctx, now)
	if err != nil {
		a.metrics.flushes.WithLabelValues(flushError).Inc()
		a.logger.Error("flush window claim failed", "error", err)
		return false, err
	}
	if !due {
		a.metrics.flushes.WithLabelValues(flushSkipped).Inc()
		return false, nil
	}

	if err := a.rollups.Upsert(ctx, now, buckets); err != nil {
		a.metrics.flushes.WithLabelValues(flushError).Inc()
		a.logger.Error("hourly rollup upsert failed", "error", err, "buckets", len(buckets))
		return false, err
	}

	a.metrics.flushes.WithLabelValues(flushOK).Inc()
	return true, nil
}

// Run ticks on a single timer until ctx is done. Ticks never overlap since
// they run on this goroutine; ticks missed while one is running are dropped
// by the ticker.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := a.clock.Ticker(a.interval)
	defer ticker.Stop()

	a.logger.Info("aggregator started", "interval", a.interval, "batch_size", a.batchSize)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("aggregator stopped")
			return
		case <-ticker.C:
			a.Tick(ctx)
		}
	}
}

func (a *Aggregator) Start() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.Run(a.ctx)
	}()
}

func (a *Aggregator) Close() error {
	a.cancel()
	a.wg.Wait()
	return nil
}
