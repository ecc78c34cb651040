// Package metrics holds the Prometheus collectors for the API server and the
// query cache. Collectors live on a private registry exposed at /metrics.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rangeos/engine/internal/apierror"
)

const namespace = "rangeos"

// Metrics bundles every collector on its own registry.
type Metrics struct {
	Registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	queryHits          *prometheus.CounterVec
	queryMisses        *prometheus.CounterVec
	queryFetches       *prometheus.CounterVec
	queryFetchDuration *prometheus.HistogramVec
	queryInvalidations *prometheus.CounterVec
}

// New builds and registers the collectors. Process and Go runtime
// collectors are included when withRuntime is true.
func New(withRuntime bool) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"method", "route"}),
		queryHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "cache_hits_total",
			Help:      "Query cache lookups served from cache.",
		}, []string{"resource"}),
		queryMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "cache_misses_total",
			Help:      "Query cache lookups that required a fetch.",
		}, []string{"resource"}),
		queryFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "fetches_total",
			Help:      "Fetches issued by the query cache, by outcome.",
		}, []string{"resource", "outcome"}),
		queryFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of query fetches including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"resource"}),
		queryInvalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "invalidations_total",
			Help:      "Resource key invalidations.",
		}, []string{"resource"}),
	}

	m.Registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.queryHits,
		m.queryMisses,
		m.queryFetches,
		m.queryFetchDuration,
		m.queryInvalidations,
	)
	if withRuntime {
		m.Registry.MustRegister(
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewGoCollector(),
		)
	}
	return m
}

// Handler exposes the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and durations labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		method := strings.ToUpper(r.Method)
		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

// Query returns the recorder handed to query.Config.
func (m *Metrics) Query() *Query { return &Query{m: m} }

// Query implements query.Recorder.
type Query struct{ m *Metrics }

func (q *Query) Hit(resource string)        { q.m.queryHits.WithLabelValues(resource).Inc() }
func (q *Query) Miss(resource string)       { q.m.queryMisses.WithLabelValues(resource).Inc() }
func (q *Query) Invalidate(resource string) { q.m.queryInvalidations.WithLabelValues(resource).Inc() }

func (q *Query) Fetch(resource string, err error, elapsed time.Duration) {
	q.m.queryFetches.WithLabelValues(resource, outcome(err)).Inc()
	q.m.queryFetchDuration.WithLabelValues(resource).Observe(elapsed.Seconds())
}

// outcome buckets fetch errors by HTTP status class.
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	var re *apierror.ResponseError
	if errors.As(err, &re) && re.Response != nil {
		return strconv.Itoa(re.Response.Status/100) + "xx"
	}
	return "error"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
