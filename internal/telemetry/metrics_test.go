package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aetherflow/internal/resilience"
)

func TestMiddlewareCountsRequests(t *testing.T) {
	m := New()
	h := m.Middleware(func(*http.Request) string { return "/api/v1/owners/{owner}/widget" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))

	for i := 0; i < 2; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/owners/u1/widget", nil))
	}

	got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/api/v1/owners/{owner}/widget", "GET", "418"))
	assert.Equal(t, 2.0, got)
}

func TestRecorders(t *testing.T) {
	m := New()
	m.ObserveAPICall("/charts/pie", "success", 20*time.Millisecond)
	m.RebuildFinished("rebuilt", 3, time.Second)
	m.RebuildFinished("skipped", 0, 0)
	m.TransactionRecorded("create", "Fuel")
	m.ReloadPublished(false)
	m.CacheHit("widget")
	m.CacheMiss("widget")
	m.SetCircuitBreakerState("connectearth", resilience.StateClosed, resilience.StateOpen)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.apiCalls.WithLabelValues("/charts/pie", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rebuilds.WithLabelValues("rebuilt")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rebuilds.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transactions.WithLabelValues("create", "Fuel")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.publishes.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheHits.WithLabelValues("widget")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cbState.WithLabelValues("connectearth")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveAPICall("/transaction", "success", time.Second)
	m.RebuildFinished("failed", 0, 0)
	m.CacheHit("x")
	m.TrackBreaker(resilience.NewBreaker("x", resilience.BreakerConfig{}))

	rec := httptest.NewRecorder()
	m.Middleware(func(*http.Request) string { return "r" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveAPICall("/charts/pie", "server_error", time.Second)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.True(t, strings.Contains(string(body), `aetherflow_connectearth_calls_total{endpoint="/charts/pie",outcome="server_error"} 1`))
	assert.Contains(t, string(body), "go_goroutines")
}
