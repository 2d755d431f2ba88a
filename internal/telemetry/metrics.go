// Package telemetry exposes Prometheus metrics for the API, the reload
// pipeline and the outbound clients.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aetherflow/internal/resilience"
)

const namespace = "aetherflow"

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	apiCalls          *prometheus.CounterVec
	apiDuration       *prometheus.HistogramVec
	rebuilds          *prometheus.CounterVec
	rebuildDuration   prometheus.Histogram
	summaries         prometheus.Histogram
	transactions      *prometheus.CounterVec
	publishes         *prometheus.CounterVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	cbState           *prometheus.GaugeVec
}

// New creates the collectors on a private registry, plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total count of HTTP requests processed by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		apiCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connectearth_calls_total",
			Help:      "Connect Earth API calls by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		apiDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connectearth_call_duration_seconds",
			Help:      "Connect Earth API call latency including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		rebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_rebuilds_total",
			Help:      "Monthly profile rebuilds by result (rebuilt, skipped, failed).",
		}, []string{"result"}),
		rebuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "profile_rebuild_duration_seconds",
			Help:      "Duration of a full profile rebuild for one owner.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		summaries: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "profile_rebuild_months",
			Help:      "Number of non-empty months produced by a rebuild.",
			Buckets:   prometheus.LinearBuckets(0, 2, 13),
		}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Transactions submitted or deleted, by operation and category.",
		}, []string{"operation", "category"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reload_messages_published_total",
			Help:      "Reload messages published to the broker by outcome.",
		}, []string{"outcome"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total cache hits observed.",
		}, []string{"cache"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total cache misses observed.",
		}, []string{"cache"}),
		cbState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cb_state",
			Help:      "Circuit breaker state gauge (0 closed, 1 open, 2 half-open).",
		}, []string{"target"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpDuration,
		m.apiCalls,
		m.apiDuration,
		m.rebuilds,
		m.rebuildDuration,
		m.summaries,
		m.transactions,
		m.publishes,
		m.cacheHits,
		m.cacheMisses,
		m.cbState,
	)

	return m
}

// Registry returns the registry backing Handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and durations. route names the request
// for labelling; it should return a template, not the raw path.
func (m *Metrics) Middleware(route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil {
				next.ServeHTTP(w, r)
				return
			}
			snoop := httpsnoop.CaptureMetrics(next, w, r)
			name := route(r)
			m.httpRequestsTotal.WithLabelValues(name, r.Method, strconv.Itoa(snoop.Code)).Inc()
			m.httpDuration.WithLabelValues(name).Observe(snoop.Duration.Seconds())
		})
	}
}

// ObserveAPICall implements connectearth.Observer.
func (m *Metrics) ObserveAPICall(endpoint, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.apiCalls.WithLabelValues(endpoint, outcome).Inc()
	m.apiDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// RebuildFinished records one reload. result is rebuilt, skipped or failed.
func (m *Metrics) RebuildFinished(result string, months int, d time.Duration) {
	if m == nil {
		return
	}
	m.rebuilds.WithLabelValues(result).Inc()
	if result == "rebuilt" {
		m.rebuildDuration.Observe(d.Seconds())
		m.summaries.Observe(float64(months))
	}
}

// TransactionRecorded counts a submitted or deleted transaction.
func (m *Metrics) TransactionRecorded(operation, category string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(operation, category).Inc()
}

// ReloadPublished counts a reload message publish attempt.
func (m *Metrics) ReloadPublished(success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.publishes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CacheHit(cache string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(cache).Inc()
}

func (m *Metrics) CacheMiss(cache string) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// SetCircuitBreakerState records a breaker transition. It matches
// resilience.BreakerConfig.OnStateChange.
func (m *Metrics) SetCircuitBreakerState(target string, _, to int32) {
	if m == nil {
		return
	}
	m.cbState.WithLabelValues(target).Set(float64(to))
}

// TrackBreaker seeds the gauge with b's current state.
func (m *Metrics) TrackBreaker(b *resilience.Breaker) {
	if m == nil || b == nil {
		return
	}
	m.cbState.WithLabelValues(b.Name()).Set(float64(b.State()))
}
