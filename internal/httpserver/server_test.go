package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/elcrypto/pumpguard/internal/config"
)

type fakeHealthChecker struct {
	err error
}

func (f *fakeHealthChecker) HealthCheck(ctx context.Context) error { return f.err }

func TestHealthzReturnsOKWhenStorageHealthy(t *testing.T) {
	s := New(config.HTTPConfig{Host: "127.0.0.1", Port: 0}, &fakeHealthChecker{}, zerolog.Nop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthzReturnsServiceUnavailableWhenStorageDown(t *testing.T) {
	s := New(config.HTTPConfig{Host: "127.0.0.1", Port: 0}, &fakeHealthChecker{err: assertError{}}, zerolog.Nop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	s := New(config.HTTPConfig{Host: "127.0.0.1", Port: 0}, &fakeHealthChecker{}, zerolog.Nop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

type assertError struct{}

func (assertError) Error() string { return "storage down" }
