package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rangeos/engine/internal/metrics"
	"github.com/rangeos/engine/internal/query"
	"github.com/rangeos/engine/internal/querykey"
	"github.com/rangeos/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	if _, err := logger.Init("error", "json"); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

func TestMetricsServerExposesQueryCounters(t *testing.T) {
	m := metrics.New(false)
	cache := query.NewClient(query.Config{Recorder: m.Query(), Logger: logger.L()})
	defer cache.Wait()

	key := query.NewKey(querykey.Ranges)
	var fetch query.Fetcher[int] = func(context.Context) (int, error) { return 1, nil }
	_, err := query.Fetch(context.Background(), cache, key, fetch)
	require.NoError(t, err)
	_, err = query.Fetch(context.Background(), cache, key, fetch)
	require.NoError(t, err)
	cache.InvalidateQueries(context.Background(), querykey.Ranges)

	srv := newMetricsServer("127.0.0.1:0", m)
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body := rr.Body.String()
	assert.Contains(t, body, `rangeos_query_cache_misses_total{resource="ranges"} 1`)
	assert.Contains(t, body, `rangeos_query_cache_hits_total{resource="ranges"} 1`)
	assert.Contains(t, body, `rangeos_query_fetches_total{outcome="success",resource="ranges"} 1`)
	assert.Contains(t, body, `rangeos_query_invalidations_total{resource="ranges"} 1`)

	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
