package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openctemio/sipguard/internal/config"
	"github.com/openctemio/sipguard/internal/infra/http/handler"
	"github.com/openctemio/sipguard/pkg/logger"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestServer(t *testing.T, opts ...handler.HealthHandlerOption) *Server {
	t.Helper()
	cfg := &config.ServerConfig{Host: "127.0.0.1", Port: 9464, ReadTimeout: time.Second, WriteTimeout: time.Second}
	return NewServer(cfg, handler.NewHealthHandler(opts...), logger.NewNop(), false)
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestServer_Routes(t *testing.T) {
	healthy := pingFunc(func(context.Context) error { return nil })
	s := newTestServer(t, handler.WithDependency("database", healthy))

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{name: "liveness", path: "/healthz", wantStatus: http.StatusOK},
		{name: "trailing slash", path: "/healthz/", wantStatus: http.StatusOK},
		{name: "readiness", path: "/readyz", wantStatus: http.StatusOK},
		{name: "metrics", path: "/metrics", wantStatus: http.StatusOK},
		{name: "unknown", path: "/incidents", wantStatus: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, http.MethodGet, tt.path)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}
}

func TestServer_ReadyzReportsFailingDependency(t *testing.T) {
	s := newTestServer(t,
		handler.WithDependency("database", pingFunc(func(context.Context) error { return nil })),
		handler.WithDependency("redis", pingFunc(func(context.Context) error { return errors.New("connection refused") })),
	)

	rec := serve(s, http.MethodGet, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body handler.ReadyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_ready", body.Status)
	assert.Equal(t, "ok", body.Checks["database"].Status)
	assert.Equal(t, "connection refused", body.Checks["redis"].Error)
}

func TestServer_MetricsExposesRequestCounter(t *testing.T) {
	s := newTestServer(t)

	serve(s, http.MethodGet, "/healthz")
	rec := serve(s, http.MethodGet, "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sipguard_http_requests_total")
}

func TestServer_Walk(t *testing.T) {
	s := newTestServer(t)

	var routes []string
	require.NoError(t, s.Router().Walk(func(method, path string) error {
		routes = append(routes, method+" "+path)
		return nil
	}))

	assert.Contains(t, routes, "GET /healthz")
	assert.Contains(t, routes, "GET /readyz")
	assert.Contains(t, routes, "GET /metrics")
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mw("outer"), mw("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}
