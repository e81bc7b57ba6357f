// Testbackend is a small upstream used to exercise the server pool by hand.
// Every response carries a fresh request UUID and the backend's name, and the
// health endpoint can be flipped at runtime to watch the pool react.
//
// Usage:
//
//	go run ./cmd/testbackend -port 8081 -name a
//	curl -X PUT localhost:8081/health?state=down
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/angeloszaimis/serverpool/internal/httpserver"
	"github.com/angeloszaimis/serverpool/pkg/logger"
)

type reply struct {
	ID     string `json:"id"`
	Server string `json:"server"`
	Method string `json:"method"`
	Path   string `json:"path"`
}

func main() {
	port := flag.Int("port", 8081, "port to listen on")
	name := flag.String("name", "", "name reported in responses (default: the listen address)")
	delay := flag.Duration("delay", 0, "artificial latency added to every response")
	flag.Parse()

	addr := fmt.Sprintf(":%d", *port)
	if *name == "" {
		*name = addr
	}

	log := logger.New("info", false, "dev")

	var healthy atomic.Bool
	healthy.Store(true)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("PUT /health", func(w http.ResponseWriter, r *http.Request) {
		healthy.Store(r.URL.Query().Get("state") != "down")
		log.Info("Health toggled", "healthy", healthy.Load())
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if *delay > 0 {
			time.Sleep(*delay)
		}

		resp := reply{
			ID:     uuid.NewString(),
			Server: *name,
			Method: r.Method,
			Path:   r.URL.Path,
		}
		log.Info("request", "id", resp.ID, "method", r.Method, "path", r.URL.Path, "from", r.RemoteAddr)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	srv, err := httpserver.New(addr, mux, httpserver.WithName("testbackend"), httpserver.WithLogger(log))
	if err != nil {
		log.Error("invalid address", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}
	_ = srv.Shutdown(context.Background())
}
