package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/angeloszaimis/serverpool/internal/backend"
	"github.com/angeloszaimis/serverpool/internal/loadbalancer"
	"github.com/angeloszaimis/serverpool/internal/middleware"
)

// API is the management REST surface over the server pool.
type API struct {
	balancer    *loadbalancer.LoadBalancer
	logger      *slog.Logger
	middlewares []middleware.Middleware
	handler     http.Handler
}

type Option func(*API)

// WithJWT protects every route with an HS256 bearer token.
func WithJWT(secret string) Option {
	return func(a *API) {
		a.middlewares = append(a.middlewares, middleware.JWTAuth(secret, a.logger))
	}
}

func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(a *API) {
		a.middlewares = append(a.middlewares, mws...)
	}
}

func New(balancer *loadbalancer.LoadBalancer, logger *slog.Logger, opts ...Option) *API {
	a := &API{
		balancer: balancer,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/servers", a.handleList)
	mux.HandleFunc("POST /api/servers", a.handleRegister)
	mux.HandleFunc("DELETE /api/servers", a.handleDeregister)
	mux.HandleFunc("DELETE /api/servers/all", a.handleClear)
	mux.HandleFunc("PUT /api/servers/health", a.handleSetHealth)
	mux.HandleFunc("POST /api/servers/acquire", a.handleAcquire)
	mux.HandleFunc("POST /api/servers/release", a.handleRelease)

	for _, opt := range opts {
		opt(a)
	}
	a.handler = middleware.Chain(mux, a.middlewares...)
	return a
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}

type serverView struct {
	Address           string `json:"address"`
	Capacity          *int   `json:"capacity,omitempty"`
	Healthy           bool   `json:"healthy"`
	ActiveConnections int    `json:"active_connections"`
}

type listResponse struct {
	Selector string       `json:"selector"`
	Count    int          `json:"count"`
	Servers  []serverView `json:"servers"`
}

func viewOf(s *backend.Server) serverView {
	v := serverView{
		Address:           s.Address(),
		Healthy:           s.IsHealthy(),
		ActiveConnections: s.ActiveConnections(),
	}
	if capacity, ok := s.Capacity(); ok {
		v.Capacity = &capacity
	}
	return v
}

func (a *API) handleList(w http.ResponseWriter, _ *http.Request) {
	servers := a.balancer.Servers()

	views := make([]serverView, 0, len(servers))
	for _, s := range servers {
		views = append(views, viewOf(s))
	}

	jsonOK(w, http.StatusOK, listResponse{
		Selector: string(a.balancer.Strategy()),
		Count:    len(views),
		Servers:  views,
	})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var spec backend.Spec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		jsonErr(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if spec.Address == "" {
		jsonErr(w, "address is required", http.StatusBadRequest)
		return
	}
	if spec.Capacity < 0 {
		jsonErr(w, "capacity must not be negative", http.StatusBadRequest)
		return
	}

	server := spec.Server()
	if err := a.balancer.Register(server); err != nil {
		jsonErr(w, err.Error(), loadbalancer.HTTPStatus(err))
		return
	}

	a.logger.Info("Admin registered server", slog.String("address", spec.Address))
	jsonOK(w, http.StatusCreated, viewOf(server))
}

func (a *API) handleDeregister(w http.ResponseWriter, r *http.Request) {
	address, ok := requireAddress(w, r)
	if !ok {
		return
	}

	if err := a.balancer.Deregister(address); err != nil {
		jsonErr(w, err.Error(), loadbalancer.HTTPStatus(err))
		return
	}

	a.logger.Info("Admin deregistered server", slog.String("address", address))
	jsonOK(w, http.StatusOK, map[string]string{"status": "deregistered"})
}

func (a *API) handleClear(w http.ResponseWriter, _ *http.Request) {
	removed := a.balancer.Len()
	a.balancer.Clear()

	a.logger.Info("Admin cleared pool", slog.Int("removed", removed))
	jsonOK(w, http.StatusOK, map[string]int{"removed": removed})
}

func (a *API) handleSetHealth(w http.ResponseWriter, r *http.Request) {
	address, ok := requireAddress(w, r)
	if !ok {
		return
	}

	healthy, err := strconv.ParseBool(r.URL.Query().Get("healthy"))
	if err != nil {
		jsonErr(w, "healthy query parameter must be a boolean", http.StatusBadRequest)
		return
	}

	server, err := a.balancer.Lookup(address)
	if err != nil {
		jsonErr(w, err.Error(), loadbalancer.HTTPStatus(err))
		return
	}

	if server.SetHealthy(healthy) {
		a.logger.Info("Admin changed server health",
			slog.String("address", address),
			slog.Bool("healthy", healthy))
	}
	jsonOK(w, http.StatusOK, viewOf(server))
}

func (a *API) handleAcquire(w http.ResponseWriter, _ *http.Request) {
	server, err := a.balancer.Acquire()
	if err != nil {
		jsonErr(w, err.Error(), loadbalancer.HTTPStatus(err))
		return
	}
	jsonOK(w, http.StatusOK, viewOf(server))
}

func (a *API) handleRelease(w http.ResponseWriter, r *http.Request) {
	address, ok := requireAddress(w, r)
	if !ok {
		return
	}

	server, err := a.balancer.Lookup(address)
	if err != nil {
		jsonErr(w, err.Error(), loadbalancer.HTTPStatus(err))
		return
	}

	a.balancer.Release(server)
	jsonOK(w, http.StatusOK, viewOf(server))
}

func requireAddress(w http.ResponseWriter, r *http.Request) (string, bool) {
	address := r.URL.Query().Get("address")
	if address == "" {
		jsonErr(w, "address query parameter is required", http.StatusBadRequest)
		return "", false
	}
	return address, true
}

func jsonOK(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	jsonOK(w, code, map[string]string{"error": msg})
}

