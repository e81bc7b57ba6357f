package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/angeloszaimis/serverpool/config"
	"github.com/angeloszaimis/serverpool/internal/admin"
	"github.com/angeloszaimis/serverpool/internal/circuitbreaker"
	"github.com/angeloszaimis/serverpool/internal/discovery"
	"github.com/angeloszaimis/serverpool/internal/handler"
	"github.com/angeloszaimis/serverpool/internal/healthcheck"
	"github.com/angeloszaimis/serverpool/internal/loadbalancer"
	"github.com/angeloszaimis/serverpool/internal/metrics"
	"github.com/angeloszaimis/serverpool/internal/middleware"
	"github.com/angeloszaimis/serverpool/internal/selector"
)

type app struct {
	cfg *config.Config
	log *slog.Logger

	collector  *metrics.Collector
	prometheus *metrics.Prometheus
	balancer   *loadbalancer.LoadBalancer
	breakers   *circuitbreaker.Registry
	proxy      *handler.ProxyHandler
	checker    *healthcheck.Checker
	limiter    *middleware.RateLimiter
}

func newApp(cfg *config.Config, log *slog.Logger) (*app, error) {
	sel, err := selector.New(selector.Kind(cfg.Selector.Type))
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:        cfg,
		log:        log,
		prometheus: metrics.NewPrometheus(cfg.Metrics.Namespace),
	}
	a.collector = metrics.NewCollector(cfg.Metrics.BufferSize, log, metrics.WithPrometheus(a.prometheus))

	if cfg.CircuitBreaker.Enabled {
		a.breakers = circuitbreaker.NewRegistry(cfg.CircuitBreaker.Threshold, cfg.CircuitBreaker.ParsedResetTimeout())
	}

	a.balancer = loadbalancer.New(sel, log,
		loadbalancer.WithCollector(a.collector),
		loadbalancer.OnDeregister(a.forget))

	a.proxy = handler.New(log, a.balancer,
		handler.WithCollector(a.collector),
		handler.WithBreakers(a.breakers))

	if cfg.HealthCheck.Enabled {
		a.checker = healthcheck.New(a.balancer, cfg.HealthCheck.ParsedInterval(), log,
			healthcheck.WithPath(cfg.HealthCheck.Path),
			healthcheck.WithTimeout(cfg.HealthCheck.ParsedTimeout()),
			healthcheck.WithCollector(a.collector),
			healthcheck.WithBreakers(a.breakers))
	}

	if cfg.RateLimit.Enabled {
		a.limiter = middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, log)
	}

	// discovery owns pool membership when enabled
	if !cfg.Discovery.Enabled {
		if err := a.balancer.Sync(cfg.BackendSpecs()); err != nil {
			return nil, fmt.Errorf("register backends: %w", err)
		}
	}

	return a, nil
}

// start launches the background workers; they stop with ctx.
func (a *app) start(ctx context.Context) error {
	a.collector.Start(ctx)

	if a.checker != nil {
		go a.checker.Run(ctx)
	}
	if a.limiter != nil {
		go a.limiter.Run(ctx)
	}

	if a.cfg.Discovery.Enabled {
		source, err := discovery.NewEtcdSource(
			a.cfg.Discovery.Endpoints,
			a.cfg.Discovery.Prefix,
			a.cfg.Discovery.ParsedDialTimeout(),
			a.log)
		if err != nil {
			return err
		}

		go func() {
			defer source.Close()
			if err := source.Run(ctx, a.balancer); err != nil && ctx.Err() == nil {
				a.log.Error("Discovery stopped", slog.Any("err", err))
			}
		}()
	}

	return nil
}

// reload applies a changed configuration file to the running pool.
func (a *app) reload(cfg *config.Config) {
	if cfg.Selector.Type != a.cfg.Selector.Type {
		a.log.Warn("Selector change requires a restart",
			slog.String("running", a.cfg.Selector.Type),
			slog.String("configured", cfg.Selector.Type))
	}

	if a.cfg.Discovery.Enabled {
		return
	}

	if err := a.balancer.Sync(cfg.BackendSpecs()); err != nil {
		a.log.Error("Failed to apply reloaded backends", slog.Any("err", err))
	}
}

func (a *app) forget(address string) {
	if a.breakers != nil {
		a.breakers.Forget(address)
	}
	if a.proxy != nil {
		a.proxy.Forget(address)
	}
}

func (a *app) adminHandler() http.Handler {
	opts := []admin.Option{admin.WithMiddleware(middleware.RequestLogger(a.log))}
	if a.cfg.Admin.JWTSecret != "" {
		opts = append(opts, admin.WithJWT(a.cfg.Admin.JWTSecret))
	}
	return admin.New(a.balancer, a.log, opts...)
}
