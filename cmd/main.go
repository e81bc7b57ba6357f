package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/angeloszaimis/serverpool/config"
	"github.com/angeloszaimis/serverpool/internal/httpserver"
	"github.com/angeloszaimis/serverpool/pkg/logger"
)

func main() {
	configFile := flag.String("config", "", "path to config.yaml (default: search ./config and .)")
	flag.Parse()

	loader := config.NewLoader(config.WithConfigFile(*configFile))
	cfg, err := loader.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.AddSource, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, loader, log); err != nil {
		log.Error("Server pool stopped with error", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, loader *config.Loader, log *slog.Logger) error {
	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}

	if err := a.start(ctx); err != nil {
		return err
	}
	loader.Watch(a.reload)

	log.Info("Server pool ready",
		slog.String("selector", cfg.Selector.Type),
		slog.Int("servers", a.balancer.Len()))

	servers := make([]*httpserver.Server, 0, 2)

	srv, err := httpserver.New(cfg.Server.Address, setupRouter(a),
		httpserver.WithName("proxy"),
		httpserver.WithLogger(log))
	if err != nil {
		return err
	}
	servers = append(servers, srv)

	if cfg.Admin.Enabled {
		adminSrv, err := httpserver.New(cfg.Admin.Address, a.adminHandler(),
			httpserver.WithName("admin"),
			httpserver.WithLogger(log))
		if err != nil {
			return err
		}
		servers = append(servers, adminSrv)
	}

	srvErrCh := make(chan error, len(servers))
	for _, s := range servers {
		go func(s *httpserver.Server) {
			srvErrCh <- s.Start()
		}(s)
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case runErr = <-srvErrCh:
		if runErr != nil {
			log.Error("Server failed", slog.Any("err", runErr))
		}
	}

	for _, s := range servers {
		if err := s.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	}

	return runErr
}
