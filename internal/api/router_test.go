package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicflow/backend/internal/metrics"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLiveness(t *testing.T) {
	h := NewRouter(RouterConfig{Gatherer: prometheus.NewRegistry(), Version: "test"})

	rec := get(t, h, "/health/live")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body LivenessResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "test", body.Version)
}

func TestReadiness(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	dbUp := Check{Name: "postgres", Required: true, Ping: func(context.Context) error { return nil }}
	dbDown := Check{Name: "postgres", Required: true, Ping: func(context.Context) error { return errors.New("refused") }}

	tests := []struct {
		name       string
		checks     []Check
		stopRedis  bool
		wantCode   int
		wantStatus string
	}{
		{name: "all up", checks: []Check{dbUp, RedisCheck(client, false)}, wantCode: http.StatusOK, wantStatus: "ok"},
		{name: "optional redis down", checks: []Check{dbUp, RedisCheck(client, false)}, stopRedis: true, wantCode: http.StatusOK, wantStatus: "degraded"},
		{name: "required db down", checks: []Check{dbDown, RedisCheck(client, false)}, wantCode: http.StatusServiceUnavailable, wantStatus: "error"},
		{name: "no checks", wantCode: http.StatusOK, wantStatus: "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.stopRedis {
				mr.SetError("LOADING")
				defer mr.SetError("")
			}
			h := NewRouter(RouterConfig{Checks: tt.checks, Gatherer: prometheus.NewRegistry()})

			rec := get(t, h, "/health/ready")
			assert.Equal(t, tt.wantCode, rec.Code)

			var body ReadinessResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantStatus, body.Status)
			assert.Len(t, body.Dependencies, len(tt.checks))
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ObserveConflictCheck("free")

	rec := get(t, NewRouter(RouterConfig{Gatherer: reg}), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `clinicflow_scheduling_conflict_checks_total{outcome="free"} 1`), rec.Body.String())
}
