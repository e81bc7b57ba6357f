package handler

import (
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"strings"
	"sync"
	"time"

	"github.com/angeloszaimis/serverpool/internal/backend"
	"github.com/angeloszaimis/serverpool/internal/circuitbreaker"
	"github.com/angeloszaimis/serverpool/internal/loadbalancer"
	"github.com/angeloszaimis/serverpool/internal/metrics"
)

const BackendHeader = "X-Backend-Server"

type ProxyHandler struct {
	logger    *slog.Logger
	balancer  *loadbalancer.LoadBalancer
	collector *metrics.Collector
	breakers  *circuitbreaker.Registry

	mutex   sync.RWMutex
	proxies map[string]*httputil.ReverseProxy
}

type Option func(*ProxyHandler)

func WithCollector(collector *metrics.Collector) Option {
	return func(h *ProxyHandler) {
		h.collector = collector
	}
}

func WithBreakers(breakers *circuitbreaker.Registry) Option {
	return func(h *ProxyHandler) {
		h.breakers = breakers
	}
}

func New(logger *slog.Logger, balancer *loadbalancer.LoadBalancer, opts ...Option) *ProxyHandler {
	h := &ProxyHandler{
		logger:   logger,
		balancer: balancer,
		proxies:  make(map[string]*httputil.ReverseProxy),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientIP := extractClientIP(r)

	server, err := h.balancer.Acquire()
	if err != nil {
		h.logger.Warn("No server available",
			slog.String("client", clientIP),
			slog.Any("err", err))
		http.Error(w, "No healthy server available", loadbalancer.HTTPStatus(err))
		return
	}
	defer h.balancer.Release(server)

	var breaker *circuitbreaker.Breaker
	if h.breakers != nil {
		breaker = h.breakers.Get(server.Address())
		if !breaker.Allow() {
			h.logger.Warn("Circuit open, rejecting request",
				slog.String("client", clientIP),
				slog.String("server", server.Address()))
			http.Error(w, "Server temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
	}

	proxy, err := h.proxyFor(server)
	if err != nil {
		h.logger.Error("Invalid server address",
			slog.String("server", server.Address()),
			slog.Any("err", err))
		http.Error(w, "Bad gateway", http.StatusBadGateway)
		return
	}

	h.logger.Debug("Forwarding request",
		slog.String("client", clientIP),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("server", server.Address()))

	w.Header().Set(BackendHeader, server.Address())

	start := time.Now()
	wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
	proxy.ServeHTTP(wrapped, r)
	duration := time.Since(start)

	if breaker != nil {
		h.recordOutcome(server, breaker, wrapped.statusCode)
	}

	h.emit(metrics.MetricEvent{
		Type:       metrics.EventResponseCompleted,
		Server:     server.Address(),
		Duration:   duration,
		StatusCode: wrapped.statusCode,
	})
}

// Forget drops the cached proxy of a server that left the pool.
func (h *ProxyHandler) Forget(address string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	delete(h.proxies, address)
}

// recordOutcome feeds the breaker. An open breaker gates the server through
// Allow and leaves its health flag alone, so the half-open trial can still
// reach it once the reset timeout has passed.
func (h *ProxyHandler) recordOutcome(server *backend.Server, breaker *circuitbreaker.Breaker, statusCode int) {
	if statusCode < http.StatusInternalServerError {
		if breaker.RecordSuccess() {
			h.logger.Info("Circuit closed",
				slog.String("server", server.Address()))
		}
		return
	}

	if breaker.RecordFailure() {
		h.logger.Warn("Circuit opened",
			slog.String("server", server.Address()),
			slog.Int("failures", breaker.Failures()))
	}
}

func (h *ProxyHandler) proxyFor(server *backend.Server) (*httputil.ReverseProxy, error) {
	address := server.Address()

	h.mutex.RLock()
	proxy, exists := h.proxies[address]
	h.mutex.RUnlock()

	if exists {
		return proxy, nil
	}

	target, err := backend.ParseAddress(address)
	if err != nil {
		return nil, err
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if proxy, exists = h.proxies[address]; exists {
		return proxy, nil
	}

	proxy = httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		h.logger.Warn("Proxy error",
			slog.String("server", address),
			slog.Any("err", err))
		w.WriteHeader(http.StatusBadGateway)
	}
	h.proxies[address] = proxy
	return proxy, nil
}

func (h *ProxyHandler) emit(event metrics.MetricEvent) {
	if h.collector != nil {
		h.collector.Emit(event)
	}
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
