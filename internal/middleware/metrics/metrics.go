// Package metrics exposes prometheus instrumentation for the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	inFlight      prometheus.Gauge
	CacheEvents   *prometheus.CounterVec
	RefreshEvents prometheus.Counter
	RateLimited   prometheus.Counter
}

// New creates a registry holding the API collectors plus the Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "operadoras_http_requests_total",
				Help: "HTTP requests by route, method and status code",
			},
			[]string{"route", "method", "code"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "operadoras_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "operadoras_http_requests_in_flight",
			Help: "Requests currently being served",
		}),
		CacheEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "operadoras_aggregate_cache_events_total",
				Help: "Aggregate cache lookups by result",
			},
			[]string{"result"},
		),
		RefreshEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "operadoras_dataset_refresh_messages_total",
			Help: "Dataset refresh notifications consumed",
		}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "operadoras_rate_limited_requests_total",
			Help: "Requests rejected by the rate limiter",
		}),
	}
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Instrument wraps the handler serving route.
func (m *Metrics) Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(rw.status)).Inc()
		m.duration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// CacheHit and CacheMiss record aggregate cache lookups.
func (m *Metrics) CacheHit()  { m.CacheEvents.WithLabelValues("hit").Inc() }
func (m *Metrics) CacheMiss() { m.CacheEvents.WithLabelValues("miss").Inc() }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
