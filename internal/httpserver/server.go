package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

const (
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 15 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// Server wraps http.Server with address validation and graceful shutdown.
type Server struct {
	name            string
	server          *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

type Option func(*Server)

func WithName(name string) Option {
	return func(s *Server) {
		s.name = name
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithTimeouts(read, write, idle time.Duration) Option {
	return func(s *Server) {
		s.server.ReadTimeout = read
		s.server.WriteTimeout = write
		s.server.IdleTimeout = idle
	}
}

func WithShutdownTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.shutdownTimeout = timeout
	}
}

// New validates addr and builds a server for handler.
func New(addr string, handler http.Handler, opts ...Option) (*Server, error) {
	if err := ValidateAddress(addr); err != nil {
		return nil, err
	}

	s := &Server{
		name: "http",
		server: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  defaultReadTimeout,
			WriteTimeout: defaultWriteTimeout,
			IdleTimeout:  defaultIdleTimeout,
		},
		shutdownTimeout: defaultShutdownTimeout,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Server) Addr() string {
	return s.server.Addr
}

// Start listens on the configured address. It returns nil once the server is
// shut down cleanly.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

func (s *Server) Serve(listener net.Listener) error {
	s.logger.Info("Server listening",
		slog.String("server", s.name),
		slog.String("address", listener.Addr().String()))

	err := s.server.Serve(listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, bounded by the shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	s.logger.Info("Server shutting down", slog.String("server", s.name))
	return s.server.Shutdown(shutdownCtx)
}

// Run serves on listener until ctx is cancelled, then shuts down.
func (s *Server) Run(ctx context.Context, listener net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Serve(listener)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := s.Shutdown(context.Background()); err != nil {
			return err
		}
		return <-errCh
	}
}

// ValidateAddress accepts host:port listen addresses with an optional host.
func ValidateAddress(addr string) error {
	return validation.Validate(addr, validation.Required, validation.By(validateHostPort))
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if err := validation.Validate(port, validation.Required, is.Port); err != nil {
		return validation.NewError("validation_invalid_port", "must be a valid port")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}
