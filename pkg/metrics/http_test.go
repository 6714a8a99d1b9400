package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPMetricsByRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	m.ObserveRequest(http.MethodGet, "/api/v1/orders/{orderId}", http.StatusOK, 20*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "/api/v1/orders/{orderId}", http.StatusNotFound, 10*time.Millisecond)
	m.ObserveRequest(http.MethodPost, "", http.StatusNotFound, time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	ok, err := counterWithLabels(mfs, "marketplace_http_requests_total", map[string]string{
		"method": "GET", "route": "/api/v1/orders/{orderId}", "status": "200",
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, ok)

	unmatched, err := counterWithLabels(mfs, "marketplace_http_requests_total", map[string]string{
		"method": "POST", "route": "unknown", "status": "404",
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, unmatched)

	sum, err := fetchHistogramSum(mfs, "marketplace_http_request_duration_seconds", "route", "/api/v1/orders/{orderId}")
	require.NoError(t, err)
	assert.InDelta(t, 0.03, sum, 1e-9)
}

func TestNilHTTPMetricsIsNoop(t *testing.T) {
	var m *HTTPMetrics
	assert.Nil(t, NewHTTPMetrics(nil))
	assert.NotPanics(t, func() { m.ObserveRequest(http.MethodGet, "/", http.StatusOK, time.Second) })
}
