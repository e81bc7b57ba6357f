package admin_test

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/serverpool/internal/admin"
	"github.com/angeloszaimis/serverpool/internal/backend"
	"github.com/angeloszaimis/serverpool/internal/loadbalancer"
	"github.com/angeloszaimis/serverpool/internal/middleware"
	"github.com/angeloszaimis/serverpool/internal/selector"
)

type listBody struct {
	Selector string `json:"selector"`
	Count    int    `json:"count"`
	Servers  []struct {
		Address           string `json:"address"`
		Capacity          *int   `json:"capacity"`
		Healthy           bool   `json:"healthy"`
		ActiveConnections int    `json:"active_connections"`
	} `json:"servers"`
}

var _ = Describe("API", func() {
	var (
		log *slog.Logger
		lb  *loadbalancer.LoadBalancer
		api *admin.API
	)

	do := func(method, target, body string) *httptest.ResponseRecorder {
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, httptest.NewRequest(method, target, reader))
		return rec
	}

	list := func() listBody {
		rec := do(http.MethodGet, "/api/servers", "")
		Expect(rec.Code).To(Equal(http.StatusOK))

		var body listBody
		Expect(json.NewDecoder(rec.Body).Decode(&body)).To(Succeed())
		return body
	}

	errorOf := func(rec *httptest.ResponseRecorder) string {
		var body map[string]string
		Expect(json.NewDecoder(rec.Body).Decode(&body)).To(Succeed())
		return body["error"]
	}

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
		lb = loadbalancer.New(selector.NewLeastConnections(), log)
		api = admin.New(lb, log)
	})

	Describe("POST /api/servers", func() {
		It("should register a server", func() {
			rec := do(http.MethodPost, "/api/servers", `{"address":"10.0.0.1:80","capacity":3}`)
			Expect(rec.Code).To(Equal(http.StatusCreated))

			body := list()
			Expect(body.Selector).To(Equal("least-conn"))
			Expect(body.Count).To(Equal(1))
			Expect(body.Servers[0].Address).To(Equal("10.0.0.1:80"))
			Expect(*body.Servers[0].Capacity).To(Equal(3))
			Expect(body.Servers[0].Healthy).To(BeTrue())
		})

		DescribeTable("rejects bad input",
			func(payload string, status int) {
				Expect(do(http.MethodPost, "/api/servers", payload).Code).To(Equal(status))
			},
			Entry("invalid JSON", `{`, http.StatusBadRequest),
			Entry("missing address", `{"capacity":1}`, http.StatusBadRequest),
			Entry("negative capacity", `{"address":"a:80","capacity":-1}`, http.StatusBadRequest),
		)

		It("should answer 409 for a duplicate address", func() {
			do(http.MethodPost, "/api/servers", `{"address":"a:80"}`)

			rec := do(http.MethodPost, "/api/servers", `{"address":"a:80"}`)
			Expect(rec.Code).To(Equal(http.StatusConflict))
			Expect(errorOf(rec)).To(ContainSubstring("already registered"))
		})

		It("should answer 422 once the pool is full", func() {
			for i := 0; i < selector.MaxServers; i++ {
				Expect(do(http.MethodPost, "/api/servers", fmt.Sprintf(`{"address":"10.0.0.%d:80"}`, i)).Code).
					To(Equal(http.StatusCreated))
			}

			rec := do(http.MethodPost, "/api/servers", `{"address":"10.0.0.99:80"}`)
			Expect(rec.Code).To(Equal(http.StatusUnprocessableEntity))
			Expect(list().Count).To(Equal(selector.MaxServers))
		})
	})

	Describe("DELETE /api/servers", func() {
		It("should deregister a server", func() {
			do(http.MethodPost, "/api/servers", `{"address":"a:80"}`)

			Expect(do(http.MethodDelete, "/api/servers?address=a:80", "").Code).To(Equal(http.StatusOK))
			Expect(list().Count).To(BeZero())
		})

		It("should answer 404 for an unknown address", func() {
			Expect(do(http.MethodDelete, "/api/servers?address=a:80", "").Code).To(Equal(http.StatusNotFound))
		})

		It("should require the address parameter", func() {
			Expect(do(http.MethodDelete, "/api/servers", "").Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("DELETE /api/servers/all", func() {
		It("should clear the pool", func() {
			do(http.MethodPost, "/api/servers", `{"address":"a:80"}`)
			do(http.MethodPost, "/api/servers", `{"address":"b:80"}`)

			rec := do(http.MethodDelete, "/api/servers/all", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"removed":2`))
			Expect(list().Count).To(BeZero())
		})
	})

	Describe("PUT /api/servers/health", func() {
		BeforeEach(func() {
			do(http.MethodPost, "/api/servers", `{"address":"a:80"}`)
		})

		It("should override the health flag", func() {
			Expect(do(http.MethodPut, "/api/servers/health?address=a:80&healthy=false", "").Code).
				To(Equal(http.StatusOK))
			Expect(list().Servers[0].Healthy).To(BeFalse())
		})

		It("should reject a non-boolean value", func() {
			Expect(do(http.MethodPut, "/api/servers/health?address=a:80&healthy=maybe", "").Code).
				To(Equal(http.StatusBadRequest))
		})

		It("should answer 404 for an unknown address", func() {
			Expect(do(http.MethodPut, "/api/servers/health?address=b:80&healthy=true", "").Code).
				To(Equal(http.StatusNotFound))
		})
	})

	Describe("acquire and release", func() {
		It("should answer 503 on an empty pool", func() {
			Expect(do(http.MethodPost, "/api/servers/acquire", "").Code).To(Equal(http.StatusServiceUnavailable))
		})

		It("should answer 503 when every server is down", func() {
			do(http.MethodPost, "/api/servers", `{"address":"a:80"}`)
			do(http.MethodPut, "/api/servers/health?address=a:80&healthy=false", "")

			Expect(do(http.MethodPost, "/api/servers/acquire", "").Code).To(Equal(http.StatusServiceUnavailable))
		})

		It("should track the connection through a drill", func() {
			do(http.MethodPost, "/api/servers", `{"address":"a:80"}`)

			rec := do(http.MethodPost, "/api/servers/acquire", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"active_connections":1`))

			rec = do(http.MethodPost, "/api/servers/release?address=a:80", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"active_connections":0`))
		})

		It("should answer 404 when releasing an unknown address", func() {
			Expect(do(http.MethodPost, "/api/servers/release?address=a:80", "").Code).To(Equal(http.StatusNotFound))
		})
	})

	Context("WithJWT", func() {
		const secret = "admin-secret"

		BeforeEach(func() {
			api = admin.New(lb, log, admin.WithJWT(secret))
		})

		It("should reject unauthenticated requests", func() {
			Expect(do(http.MethodGet, "/api/servers", "").Code).To(Equal(http.StatusUnauthorized))
		})

		It("should accept a signed token", func() {
			token, err := middleware.SignToken(secret, "operator", nil)
			Expect(err).NotTo(HaveOccurred())

			req := httptest.NewRequest(http.MethodGet, "/api/servers", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()
			api.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
		})
	})

	It("should expose servers registered through the pool directly", func() {
		Expect(lb.Register(backend.New("direct:80"))).To(Succeed())
		Expect(list().Servers[0].Address).To(Equal("direct:80"))
		Expect(list().Servers[0].Capacity).To(BeNil())
	})
})
