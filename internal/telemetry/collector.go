package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultQueueSize   = 4096
	defaultPushTimeout = 2 * time.Second
)

type CollectorConfig struct {
	Buffer      Buffer
	QueueSize   int
	Workers     int
	PushTimeout time.Duration
	Metrics     *Metrics
	Log         *slog.Logger
}

// Collector is the fire-and-forget write path into the sample buffer.
// Collect never blocks and never fails; encoding and storage happen on
// background workers and any error there is logged and dropped.
type Collector struct {
	buffer      Buffer
	queue       chan Sample
	pushTimeout time.Duration
	metrics     *Metrics
	logger      *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewCollector(cfg CollectorConfig) *Collector {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = defaultPushTimeout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	c := &Collector{
		buffer:      cfg.Buffer,
		queue:       make(chan Sample, cfg.QueueSize),
		pushTimeout: cfg.PushTimeout,
		metrics:     cfg.Metrics,
		logger:      cfg.Log.With("component", "collector"),
		done:        make(chan struct{}),
	}

	c.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go c.worker()
	}
	return c
}

func (c *Collector) Collect(s Sample) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.queue <- s:
		c.metrics.collected.Inc()
	default:
		c.metrics.dropped.WithLabelValues(dropQueueFull).Inc()
		c.logger.Debug("collector queue full, dropping sample", "endpoint", s.Endpoint)
	}
}

func (c *Collector) Size(ctx context.Context) (int64, error) {
	return c.buffer.Len(ctx)
}

func (c *Collector) Capacity() int {
	return c.buffer.Capacity()
}

// Close stops accepting samples and waits for queued ones to be pushed.
func (c *Collector) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	c.wg.Wait()
	return nil
}

func (c *Collector) worker() {
	defer c.wg.Done()

	for {
		select {
		case s := <-c.queue:
			c.push(s)
		case <-c.done:
			for {
				select {
				case s := <-c.queue:
					c.push(s)
				default:
					return
				}
			}
		}
	}
}

func (c *Collector) push(s Sample) {
	defer func() {
		if r := recover(); r != nil {
			c.metrics.dropped.WithLabelValues(dropPushFailed).Inc()
			c.logger.Error("panic while pushing sample", "panic", r)
		}
	}()

	data, err := encodeSample(s)
	if err != nil {
		c.metrics.dropped.WithLabelValues(dropEncodeFailed).Inc()
		c.logger.Error("encode sample", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.pushTimeout)
	defer cancel()

	if err := c.buffer.Push(ctx, data); err != nil {
		c.metrics.dropped.WithLabelValues(dropPushFailed).Inc()
		c.logger.Error("push sample", "error", err)
	}
}
