package handler_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/serverpool/internal/backend"
	"github.com/angeloszaimis/serverpool/internal/circuitbreaker"
	"github.com/angeloszaimis/serverpool/internal/handler"
	"github.com/angeloszaimis/serverpool/internal/loadbalancer"
	"github.com/angeloszaimis/serverpool/internal/selector"
)

func hostOf(s *httptest.Server) string {
	return strings.TrimPrefix(s.URL, "http://")
}

var _ = Describe("ProxyHandler", func() {
	var (
		log      *slog.Logger
		lb       *loadbalancer.LoadBalancer
		status   atomic.Int32
		inFlight atomic.Int32
		upstream *httptest.Server
	)

	serve := func(h http.Handler) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hello", nil))
		return rec
	}

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
		lb = loadbalancer.New(selector.NewLeastConnections(), log)
		status.Store(http.StatusOK)

		upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			inFlight.Store(int32(lb.Servers()[0].ActiveConnections()))
			w.WriteHeader(int(status.Load()))
			_, _ = w.Write([]byte("upstream:" + r.URL.Path))
		}))
		Expect(lb.Register(backend.New(hostOf(upstream)))).To(Succeed())
	})

	AfterEach(func() {
		upstream.Close()
	})

	It("should forward the request and name the server", func() {
		rec := serve(handler.New(log, lb))

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(Equal("upstream:/hello"))
		Expect(rec.Header().Get(handler.BackendHeader)).To(Equal(hostOf(upstream)))
	})

	It("should hold the server for the duration of the request only", func() {
		serve(handler.New(log, lb))

		Expect(inFlight.Load()).To(Equal(int32(1)))
		Expect(lb.Servers()[0].ActiveConnections()).To(Equal(0))
	})

	It("should answer 503 when the pool is empty", func() {
		lb.Clear()

		rec := serve(handler.New(log, lb))
		Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
	})

	It("should answer 503 when no server is healthy", func() {
		lb.Servers()[0].SetHealthy(false)

		rec := serve(handler.New(log, lb))
		Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
	})

	It("should answer 502 when the upstream is unreachable", func() {
		lb.Clear()
		Expect(lb.Register(backend.New("127.0.0.1:1"))).To(Succeed())

		rec := serve(handler.New(log, lb))
		Expect(rec.Code).To(Equal(http.StatusBadGateway))
		Expect(lb.Servers()[0].ActiveConnections()).To(Equal(0))
	})

	Context("with circuit breakers", func() {
		var (
			breakers *circuitbreaker.Registry
			h        *handler.ProxyHandler
		)

		BeforeEach(func() {
			breakers = circuitbreaker.NewRegistry(2, time.Hour)
			h = handler.New(log, lb, handler.WithBreakers(breakers))
		})

		It("should reject requests once the breaker opens without touching health", func() {
			status.Store(http.StatusInternalServerError)

			Expect(serve(h).Code).To(Equal(http.StatusInternalServerError))
			Expect(serve(h).Code).To(Equal(http.StatusInternalServerError))
			Expect(breakers.Get(hostOf(upstream)).State()).To(Equal(circuitbreaker.StateOpen))
			Expect(lb.Servers()[0].IsHealthy()).To(BeTrue())

			Expect(serve(h).Code).To(Equal(http.StatusServiceUnavailable))
		})

		It("should recover through the half-open trial without a health checker", func() {
			breakers = circuitbreaker.NewRegistry(1, 50*time.Millisecond)
			h = handler.New(log, lb, handler.WithBreakers(breakers))

			status.Store(http.StatusInternalServerError)
			Expect(serve(h).Code).To(Equal(http.StatusInternalServerError))
			Expect(serve(h).Code).To(Equal(http.StatusServiceUnavailable))

			status.Store(http.StatusOK)
			Eventually(func() int {
				return serve(h).Code
			}).WithTimeout(time.Second).WithPolling(5 * time.Millisecond).Should(Equal(http.StatusOK))

			Expect(breakers.Get(hostOf(upstream)).State()).To(Equal(circuitbreaker.StateClosed))
			Expect(serve(h).Code).To(Equal(http.StatusOK))
		})

		It("should reopen when the half-open trial fails", func() {
			breakers = circuitbreaker.NewRegistry(1, 50*time.Millisecond)
			h = handler.New(log, lb, handler.WithBreakers(breakers))

			status.Store(http.StatusInternalServerError)
			Expect(serve(h).Code).To(Equal(http.StatusInternalServerError))

			time.Sleep(80 * time.Millisecond)
			Expect(serve(h).Code).To(Equal(http.StatusInternalServerError))
			Expect(breakers.Get(hostOf(upstream)).State()).To(Equal(circuitbreaker.StateOpen))
			Expect(serve(h).Code).To(Equal(http.StatusServiceUnavailable))
		})

		It("should reject requests while the breaker is open", func() {
			b := breakers.Get(hostOf(upstream))
			b.RecordFailure()
			b.RecordFailure()

			Expect(serve(h).Code).To(Equal(http.StatusServiceUnavailable))
			Expect(lb.Servers()[0].ActiveConnections()).To(Equal(0))
		})

		It("should reset the failure count on success", func() {
			status.Store(http.StatusInternalServerError)
			serve(h)
			status.Store(http.StatusOK)
			serve(h)

			Expect(breakers.Get(hostOf(upstream)).Failures()).To(BeZero())
		})
	})

	Describe("Forget", func() {
		It("should keep serving after the cached proxy is dropped", func() {
			h := handler.New(log, lb)
			Expect(serve(h).Code).To(Equal(http.StatusOK))

			h.Forget(hostOf(upstream))
			Expect(serve(h).Code).To(Equal(http.StatusOK))
		})
	})
})
