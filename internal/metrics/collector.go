package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventServerRegistered   EventType = "server_registered"
	EventServerDeregistered EventType = "server_deregistered"
	EventServerAcquired     EventType = "server_acquired"
	EventServerReleased     EventType = "server_released"
	EventAcquireFailed      EventType = "acquire_failed"
	EventResponseCompleted  EventType = "response_completed"
	EventHealthChanged      EventType = "health_changed"
)

type MetricEvent struct {
	Type              EventType
	Timestamp         time.Time
	Server            string
	Duration          time.Duration
	StatusCode        int
	Healthy           bool
	ActiveConnections int
	Reason            string
}

type Collector struct {
	eventCh    chan MetricEvent
	metrics    *Metrics
	prometheus *Prometheus
	logger     *slog.Logger
}

type Option func(*Collector)

// WithPrometheus mirrors every processed event into the given sink.
func WithPrometheus(p *Prometheus) Option {
	return func(c *Collector) {
		c.prometheus = p
	}
}

func NewCollector(bufferSize int, logger *slog.Logger, opts ...Option) *Collector {
	c := &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Collector) EventChannel() chan<- MetricEvent {
	return c.eventCh
}

// Emit queues an event without blocking; events are dropped when the buffer is full.
func (c *Collector) Emit(event MetricEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
		c.logger.Debug("Metrics buffer full, dropping event", slog.String("type", string(event.Type)))
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventServerRegistered:
		c.metrics.RecordRegistration(event.Server, event.Healthy)

	case EventServerDeregistered:
		c.metrics.RecordDeregistration(event.Server)

	case EventServerAcquired:
		c.metrics.RecordAcquisition(event.Server, event.ActiveConnections)

	case EventServerReleased:
		c.metrics.RecordRelease(event.Server, event.ActiveConnections)

	case EventAcquireFailed:
		c.metrics.RecordAcquireFailure(event.Reason)

	case EventResponseCompleted:
		c.metrics.RecordResponse(event.Server, event.Duration, event.StatusCode)

	case EventHealthChanged:
		c.metrics.UpdateHealthStatus(event.Server, event.Healthy)
	}

	if c.prometheus != nil {
		c.prometheus.Observe(event)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot(selector string) Snapshot {
	return c.metrics.Snapshot(selector)
}
