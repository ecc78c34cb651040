package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rangeos/engine/internal/metrics"
)

// newMetricsServer exposes the worker's registry, which carries the query
// cache counters, plus a liveness probe.
func newMetricsServer(addr string, m *metrics.Metrics) *http.Server {
	r := chi.NewRouter()
	r.Handle("/metrics", m.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
}
