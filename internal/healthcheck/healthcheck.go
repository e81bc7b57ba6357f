package healthcheck

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/angeloszaimis/serverpool/internal/backend"
	"github.com/angeloszaimis/serverpool/internal/circuitbreaker"
	"github.com/angeloszaimis/serverpool/internal/metrics"
)

const (
	DefaultPath    = "/health"
	DefaultTimeout = 5 * time.Second
)

// ServerLister provides the servers currently registered in the pool.
type ServerLister interface {
	Servers() []*backend.Server
}

type Checker struct {
	servers   ServerLister
	interval  time.Duration
	path      string
	client    *http.Client
	logger    *slog.Logger
	collector *metrics.Collector
	breakers  *circuitbreaker.Registry
}

type Option func(*Checker)

func WithPath(path string) Option {
	return func(c *Checker) {
		if path != "" {
			c.path = path
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Checker) {
		if timeout > 0 {
			c.client.Timeout = timeout
		}
	}
}

func WithCollector(collector *metrics.Collector) Option {
	return func(c *Checker) {
		c.collector = collector
	}
}

// WithBreakers closes a server's breaker once its probe succeeds again.
func WithBreakers(breakers *circuitbreaker.Registry) Option {
	return func(c *Checker) {
		c.breakers = breakers
	}
}

func New(servers ServerLister, interval time.Duration, logger *slog.Logger, opts ...Option) *Checker {
	c := &Checker{
		servers:  servers,
		interval: interval,
		path:     DefaultPath,
		client:   &http.Client{Timeout: DefaultTimeout},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run probes every registered server once immediately and then on every tick
// until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.CheckAll(ctx)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Health checker stopped")
			return
		case <-ticker.C:
			c.CheckAll(ctx)
		}
	}
}

// CheckAll probes the current servers concurrently and waits for every probe.
func (c *Checker) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, server := range c.servers.Servers() {
		wg.Add(1)
		go func(server *backend.Server) {
			defer wg.Done()
			c.check(ctx, server)
		}(server)
	}
	wg.Wait()
}

func (c *Checker) check(ctx context.Context, server *backend.Server) {
	healthy, reason := c.probe(ctx, server)
	if ctx.Err() != nil {
		return
	}

	if !server.SetHealthy(healthy) {
		return
	}

	if healthy {
		c.logger.Info("Server is back up", slog.String("server", server.Address()))
		if c.breakers != nil {
			c.breakers.Reset(server.Address())
		}
	} else {
		c.logger.Warn("Server is down",
			slog.String("server", server.Address()),
			slog.String("reason", reason))
	}

	if c.collector != nil {
		c.collector.Emit(metrics.MetricEvent{
			Type:    metrics.EventHealthChanged,
			Server:  server.Address(),
			Healthy: healthy,
			Reason:  reason,
		})
	}
}

func (c *Checker) probe(ctx context.Context, server *backend.Server) (bool, string) {
	target, err := backend.ParseAddress(server.Address())
	if err != nil {
		return false, err.Error()
	}
	target.Path = c.path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return false, err.Error()
	}

	res, err := c.client.Do(req)
	if err != nil {
		return false, err.Error()
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return false, res.Status
	}
	return true, ""
}
