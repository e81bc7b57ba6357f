package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus exposes pool events as Prometheus series on a private registry.
type Prometheus struct {
	registry *prometheus.Registry

	Acquisitions      *prometheus.CounterVec
	AcquireFailures   *prometheus.CounterVec
	Registrations     *prometheus.CounterVec
	ActiveConnections *prometheus.GaugeVec
	ServerHealthy     *prometheus.GaugeVec
	ResponseDuration  *prometheus.HistogramVec
}

func NewPrometheus(namespace string) *Prometheus {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	factory := promauto.With(registry)

	return &Prometheus{
		registry: registry,

		Acquisitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "acquisitions_total",
				Help:      "Total number of successful server acquisitions",
			},
			[]string{"server"},
		),

		AcquireFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "acquire_failures_total",
				Help:      "Total number of failed acquisitions by reason",
			},
			[]string{"reason"},
		),

		Registrations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registry_changes_total",
				Help:      "Total number of pool membership changes",
			},
			[]string{"change"},
		),

		ActiveConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_connections",
				Help:      "Active connections per server",
			},
			[]string{"server"},
		),

		ServerHealthy: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "server_healthy",
				Help:      "Server health (0=DOWN, 1=UP)",
			},
			[]string{"server"},
		),

		ResponseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "response_duration_seconds",
				Help:      "Proxied response duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"server"},
		),
	}
}

func (p *Prometheus) Observe(event MetricEvent) {
	switch event.Type {
	case EventServerRegistered:
		p.Registrations.WithLabelValues("registered").Inc()
		p.ServerHealthy.WithLabelValues(event.Server).Set(boolToFloat(event.Healthy))
		p.ActiveConnections.WithLabelValues(event.Server).Set(0)

	case EventServerDeregistered:
		p.Registrations.WithLabelValues("deregistered").Inc()
		p.ServerHealthy.DeleteLabelValues(event.Server)
		p.ActiveConnections.DeleteLabelValues(event.Server)

	case EventServerAcquired:
		p.Acquisitions.WithLabelValues(event.Server).Inc()
		p.ActiveConnections.WithLabelValues(event.Server).Set(float64(event.ActiveConnections))

	case EventServerReleased:
		p.ActiveConnections.WithLabelValues(event.Server).Set(float64(event.ActiveConnections))

	case EventAcquireFailed:
		p.AcquireFailures.WithLabelValues(event.Reason).Inc()

	case EventResponseCompleted:
		p.ResponseDuration.WithLabelValues(event.Server).Observe(event.Duration.Seconds())

	case EventHealthChanged:
		p.ServerHealthy.WithLabelValues(event.Server).Set(boolToFloat(event.Healthy))
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
