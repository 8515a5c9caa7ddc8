package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slowPinger struct{}

func (slowPinger) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func TestHealthHandler_Health(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler().Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}

func TestHealthHandler_Ready(t *testing.T) {
	tests := []struct {
		name       string
		opts       []HealthHandlerOption
		wantStatus int
		wantBody   string
	}{
		{
			name:       "no dependencies",
			wantStatus: http.StatusOK,
			wantBody:   "ready",
		},
		{
			name:       "healthy",
			opts:       []HealthHandlerOption{WithDependency("database", okPinger{})},
			wantStatus: http.StatusOK,
			wantBody:   "ready",
		},
		{
			name: "timeout",
			opts: []HealthHandlerOption{
				WithDependency("database", okPinger{}),
				WithDependency("redis", slowPinger{}),
				WithTimeout(10 * time.Millisecond),
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "not_ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(tt.opts...).Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			require.Equal(t, tt.wantStatus, rec.Code)
			var body ReadyResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantBody, body.Status)
		})
	}
}

func TestHealthHandler_Dependencies(t *testing.T) {
	h := NewHealthHandler(
		WithDependency("redis", okPinger{}),
		WithDependency("database", okPinger{}),
		WithDependency("ignored", nil),
	)
	assert.Equal(t, []string{"database", "redis"}, h.Dependencies())
}
