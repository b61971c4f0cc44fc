package health

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/battletimer/go/internal/broadcast"
)

// MetricsCollector records the outcome of every publish.
type MetricsCollector interface {
	RecordPublish(event string, success bool, duration time.Duration)
}

// NoOpMetricsCollector discards everything.
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordPublish(string, bool, time.Duration) {}

// Counters is an in-process MetricsCollector read by the health checker.
type Counters struct {
	published atomic.Uint64
	failed    atomic.Uint64

	mu          sync.Mutex
	lastPublish time.Time
	lastFailure time.Time
	slowest     time.Duration
}

func (c *Counters) RecordPublish(_ string, success bool, duration time.Duration) {
	now := time.Now()
	if success {
		c.published.Add(1)
	} else {
		c.failed.Add(1)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if success {
		c.lastPublish = now
	} else {
		c.lastFailure = now
	}
	if duration > c.slowest {
		c.slowest = duration
	}
}

// PublishStats is a point-in-time copy of Counters.
type PublishStats struct {
	Published   uint64
	Failed      uint64
	LastPublish time.Time
	LastFailure time.Time
	Slowest     time.Duration
}

func (c *Counters) Snapshot() PublishStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return PublishStats{
		Published:   c.published.Load(),
		Failed:      c.failed.Load(),
		LastPublish: c.lastPublish,
		LastFailure: c.lastFailure,
		Slowest:     c.slowest,
	}
}

// MetricPublisher wraps a Publisher with metrics collection.
type MetricPublisher struct {
	publisher broadcast.Publisher
	metrics   MetricsCollector
	clock     clockwork.Clock
}

func NewMetricPublisher(publisher broadcast.Publisher, metrics MetricsCollector) *MetricPublisher {
	return &MetricPublisher{
		publisher: publisher,
		metrics:   metrics,
		clock:     clockwork.NewRealClock(),
	}
}

func (p *MetricPublisher) Publish(ctx context.Context, room, event string, payload any) error {
	start := p.clock.Now()

	err := p.publisher.Publish(ctx, room, event, payload)

	p.metrics.RecordPublish(event, err == nil, p.clock.Since(start))
	return err
}
