package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL  = 10 * time.Minute
	cleanupInterval = 5 * time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token bucket per client IP.
type RateLimiter struct {
	rps    rate.Limit
	burst  int
	logger *slog.Logger

	mutex   sync.Mutex
	entries map[string]*limiterEntry
}

func NewRateLimiter(rps float64, burst int, logger *slog.Logger) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		logger:  logger,
		entries: make(map[string]*limiterEntry),
	}
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.Allow(ip) {
			rl.logger.Warn("Rate limit exceeded",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path))
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) Allow(ip string) bool {
	rl.mutex.Lock()
	entry, ok := rl.entries[ip]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.entries[ip] = entry
	}
	entry.lastSeen = time.Now()
	rl.mutex.Unlock()

	return entry.limiter.Allow()
}

// Run evicts idle clients periodically until ctx is cancelled.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.evictIdle(now.Add(-limiterIdleTTL))
		}
	}
}

func (rl *RateLimiter) evictIdle(before time.Time) int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	evicted := 0
	for ip, entry := range rl.entries {
		if entry.lastSeen.Before(before) {
			delete(rl.entries, ip)
			evicted++
		}
	}
	return evicted
}

func (rl *RateLimiter) Len() int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	return len(rl.entries)
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
