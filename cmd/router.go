package main

import (
	"net/http"

	"github.com/angeloszaimis/serverpool/internal/middleware"
)

func setupRouter(a *app) *http.ServeMux {
	mux := http.NewServeMux()

	mws := []middleware.Middleware{middleware.RequestLogger(a.log)}
	if a.limiter != nil {
		mws = append(mws, a.limiter.Middleware)
	}

	mux.Handle("/", middleware.Chain(a.proxy, mws...))
	mux.HandleFunc("GET /metrics", a.collector.Handler(string(a.balancer.Strategy())))
	mux.Handle("GET /metrics/prometheus", a.prometheus.Handler())

	return mux
}
