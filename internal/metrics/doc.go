// Package metrics provides asynchronous metrics collection for the server pool.
//
// Pool operations emit MetricEvent values through Collector.Emit, which never
// blocks: when the buffer is full the event is dropped. A single goroutine
// started with Collector.Start folds events into a Metrics store that tracks:
//   - registrations and deregistrations
//   - acquisitions, releases and active connections per server
//   - acquire failures by reason
//   - response times with percentiles (P50, P95, P99) and status codes
//   - health status
//
// The store is exposed as JSON through Collector.Handler. When a Prometheus
// sink is attached with WithPrometheus, the same events also feed counters,
// gauges and a histogram on a private registry served by Prometheus.Handler.
//
// Example usage:
//
//	prom := metrics.NewPrometheus("serverpool")
//	collector := metrics.NewCollector(1000, logger, metrics.WithPrometheus(prom))
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:   metrics.EventServerAcquired,
//		Server: "10.0.0.1:8080",
//	})
//
//	snapshot := collector.Snapshot("least-conn")
//
// On context cancellation the collector drains queued events before exiting.
package metrics
