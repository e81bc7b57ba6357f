package loadbalancer

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/angeloszaimis/serverpool/internal/backend"
	"github.com/angeloszaimis/serverpool/internal/metrics"
	"github.com/angeloszaimis/serverpool/internal/selector"
)

type LoadBalancer struct {
	selector     selector.Selector
	logger       *slog.Logger
	collector    *metrics.Collector
	onDeregister []func(address string)

	// serializes reconciliation from config reloads and discovery
	syncMutex sync.Mutex
}

type Option func(*LoadBalancer)

func WithCollector(c *metrics.Collector) Option {
	return func(lb *LoadBalancer) {
		lb.collector = c
	}
}

// OnDeregister registers a callback invoked with the address of every server
// leaving the pool, including those dropped by Clear.
func OnDeregister(fn func(address string)) Option {
	return func(lb *LoadBalancer) {
		lb.onDeregister = append(lb.onDeregister, fn)
	}
}

func New(sel selector.Selector, logger *slog.Logger, opts ...Option) *LoadBalancer {
	lb := &LoadBalancer{
		selector: sel,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(lb)
	}
	return lb
}

func (lb *LoadBalancer) Strategy() selector.Kind {
	return lb.selector.Kind()
}

func (lb *LoadBalancer) Servers() []*backend.Server {
	return lb.selector.Servers()
}

func (lb *LoadBalancer) Len() int {
	return lb.selector.Len()
}

// Lookup returns the registered server with the given address.
func (lb *LoadBalancer) Lookup(address string) (*backend.Server, error) {
	for _, s := range lb.selector.Servers() {
		if s.Address() == address {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", selector.ErrNotFound, address)
}

func (lb *LoadBalancer) Register(server *backend.Server) error {
	if err := lb.selector.Register(server); err != nil {
		lb.logger.Warn("Failed to register server", slog.Any("err", err))
		return err
	}

	lb.logger.Info("Server registered",
		slog.String("address", server.Address()),
		slog.Int("servers", lb.selector.Len()))

	lb.emit(metrics.MetricEvent{
		Type:    metrics.EventServerRegistered,
		Server:  server.Address(),
		Healthy: server.IsHealthy(),
	})
	return nil
}

func (lb *LoadBalancer) Deregister(address string) error {
	if err := lb.selector.Deregister(address); err != nil {
		lb.logger.Warn("Failed to deregister server", slog.Any("err", err))
		return err
	}

	lb.logger.Info("Server deregistered",
		slog.String("address", address),
		slog.Int("servers", lb.selector.Len()))

	lb.deregistered(address)
	return nil
}

func (lb *LoadBalancer) Clear() {
	removed := lb.selector.Clear()

	lb.logger.Info("Server pool cleared", slog.Int("removed", len(removed)))

	for _, s := range removed {
		lb.deregistered(s.Address())
	}
}

func (lb *LoadBalancer) Acquire() (*backend.Server, error) {
	server, err := lb.selector.Acquire()
	if err != nil {
		lb.logger.Debug("Acquire failed",
			slog.String("selector", string(lb.selector.Kind())),
			slog.Any("err", err))
		lb.emit(metrics.MetricEvent{
			Type:   metrics.EventAcquireFailed,
			Reason: FailureReason(err),
		})
		return nil, err
	}

	lb.emit(metrics.MetricEvent{
		Type:              metrics.EventServerAcquired,
		Server:            server.Address(),
		ActiveConnections: server.ActiveConnections(),
	})
	return server, nil
}

func (lb *LoadBalancer) Release(server *backend.Server) {
	if server == nil {
		return
	}

	lb.selector.Release(server)

	lb.emit(metrics.MetricEvent{
		Type:              metrics.EventServerReleased,
		Server:            server.Address(),
		ActiveConnections: server.ActiveConnections(),
	})
}

// Do acquires a server, runs fn against it and releases the server afterwards,
// even when fn fails or panics.
func (lb *LoadBalancer) Do(fn func(*backend.Server) error) error {
	server, err := lb.Acquire()
	if err != nil {
		return err
	}
	defer lb.Release(server)

	return fn(server)
}

// Sync reconciles the pool with the desired set of servers. Servers whose
// address and capacity are unchanged keep their runtime state.
func (lb *LoadBalancer) Sync(specs []backend.Spec) error {
	lb.syncMutex.Lock()
	defer lb.syncMutex.Unlock()

	desired := make(map[string]backend.Spec, len(specs))
	for _, spec := range specs {
		desired[spec.Address] = spec
	}

	var errs []error
	kept := make(map[string]bool)

	for _, s := range lb.selector.Servers() {
		spec, ok := desired[s.Address()]
		if ok && sameCapacity(s, spec) {
			kept[s.Address()] = true
			continue
		}
		if err := lb.Deregister(s.Address()); err != nil {
			errs = append(errs, err)
		}
	}

	added := 0
	for _, spec := range specs {
		if kept[spec.Address] {
			continue
		}
		if err := lb.Register(spec.Server()); err != nil {
			errs = append(errs, err)
			continue
		}
		kept[spec.Address] = true
		added++
	}

	lb.logger.Info("Server pool synced",
		slog.Int("desired", len(specs)),
		slog.Int("added", added),
		slog.Int("servers", lb.selector.Len()))

	return errors.Join(errs...)
}

// FailureReason classifies an acquire error into a short metric label.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, selector.ErrEmpty):
		return "empty"
	case errors.Is(err, selector.ErrNoHealthyServer):
		return "no_healthy_server"
	default:
		return "other"
	}
}

func (lb *LoadBalancer) deregistered(address string) {
	lb.emit(metrics.MetricEvent{
		Type:   metrics.EventServerDeregistered,
		Server: address,
	})
	for _, fn := range lb.onDeregister {
		fn(address)
	}
}

func (lb *LoadBalancer) emit(event metrics.MetricEvent) {
	if lb.collector != nil {
		lb.collector.Emit(event)
	}
}

func sameCapacity(s *backend.Server, spec backend.Spec) bool {
	capacity, ok := s.Capacity()
	if spec.Capacity > 0 {
		return ok && capacity == spec.Capacity
	}
	return !ok
}

// HTTPStatus maps pool errors to the status code the HTTP surfaces answer with.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, selector.ErrEmpty), errors.Is(err, selector.ErrNoHealthyServer):
		return http.StatusServiceUnavailable
	case errors.Is(err, selector.ErrDuplicateAddress):
		return http.StatusConflict
	case errors.Is(err, selector.ErrCapacityExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, selector.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, selector.ErrInvalidServer):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
