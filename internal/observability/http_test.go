package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestMetricsRouter_ServesMetricsAndHealth(t *testing.T) {
	reg := prometheus.NewRegistry()
	ticks := prometheus.NewCounter(prometheus.CounterOpts{Name: "chunkstream_ticks_total", Help: "тики"})
	reg.MustRegister(ticks)
	ticks.Add(3)

	router := NewMetricsRouter("chunkstream", reg, reg)

	health := serve(t, router, "/health")
	require.Equal(t, http.StatusOK, health.Code)
	assert.JSONEq(t, `{"status":"ok","service":"chunkstream"}`, health.Body.String())

	metrics := serve(t, router, "/metrics")
	require.Equal(t, http.StatusOK, metrics.Code)
	body := metrics.Body.String()
	assert.Contains(t, body, "chunkstream_ticks_total 3")
	assert.Contains(t, body, `chunkstream_http_request_duration_seconds_count{method="GET",path="/health",status="200"} 1`)
}

func TestHTTPMetrics_CountsErrorsAndReusesRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	router := NewMetricsRouter("chunkstream", reg, reg)

	missing := serve(t, router, "/missing")
	assert.Equal(t, http.StatusNotFound, missing.Code)

	again := NewHTTPMetrics("chunkstream", reg)
	assert.Equal(t, 1.0, testutil.ToFloat64(again.reqErrors.WithLabelValues("GET", "/missing", "404")),
		"повторная регистрация должна вернуть уже существующие метрики")
}
