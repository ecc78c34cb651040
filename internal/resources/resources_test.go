package resources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rangeos/engine/internal/apiclient"
	"github.com/rangeos/engine/internal/apierror"
	"github.com/rangeos/engine/internal/mockapi"
	"github.com/rangeos/engine/internal/models"
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

type invalidatorMock struct{ mock.Mock }

func (m *invalidatorMock) InvalidateQueries(_ context.Context, k querykey.Key) { m.Called(k) }

type hits struct {
	mu sync.Mutex
	n  map[string]int
}

func (h *hits) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		h.n[r.Method+" "+r.URL.Path]++
		h.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (h *hits) get(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.n[key]
}

type env struct {
	reg   *Registry
	deps  Deps
	cache *query.Client
	inv   *invalidatorMock
	hits  *hits
}

func newEnv(t *testing.T) *env {
	t.Helper()
	srv, err := mockapi.NewServer(mockapi.Options{Logger: logger.L()})
	require.NoError(t, err)
	h := &hits{n: map[string]int{}}
	ts := httptest.NewServer(h.wrap(srv.Handler()))
	t.Cleanup(ts.Close)

	api, err := apiclient.New(apiclient.Config{BaseURL: ts.URL + "/v1"})
	require.NoError(t, err)
	cache := query.NewClient(query.Config{
		StaleTime:  time.Minute,
		RetryDelay: func(int) time.Duration { return 0 },
		Logger:     logger.L(),
	})
	t.Cleanup(cache.Wait)

	inv := &invalidatorMock{}
	deps := Deps{API: api, Cache: cache, Invalidator: inv, Logger: logger.L()}
	return &env{reg: NewRegistry(deps), deps: deps, cache: cache, inv: inv, hits: h}
}

func displayError(t *testing.T, err error) *apierror.DisplayError {
	t.Helper()
	var de *apierror.DisplayError
	require.True(t, errors.As(err, &de), "want DisplayError, got %T", err)
	return de
}

var scope = Scope{RangeID: mockapi.RangeID, ScenarioID: mockapi.ScenarioID}

func TestListCachesPerOptions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	opts := ListOptions{Params: apiclient.ListParams{Offset: apiclient.Int(0), Limit: apiclient.Int(2)}}

	page, err := e.reg.Scenarios.List(ctx, opts)
	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
	assert.Equal(t, 2, page.TotalPages)
	assert.True(t, page.Enveloped)

	_, err = e.reg.Scenarios.List(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, e.hits.get("GET /v1/content/range/scenarios"))

	// Different options are a different query.
	page, err = e.reg.Scenarios.List(ctx, ListOptions{Params: apiclient.ListParams{Offset: apiclient.Int(2), Limit: apiclient.Int(2)}})
	require.NoError(t, err)
	assert.Len(t, page.Data, 1)
	assert.Equal(t, 2, e.hits.get("GET /v1/content/range/scenarios"))

	// The auth token is not part of the key.
	opts.Params.AuthToken = "secret"
	_, err = e.reg.Scenarios.List(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, e.hits.get("GET /v1/content/range/scenarios"))
}

func TestListBareArrayNormalized(t *testing.T) {
	e := newEnv(t)
	page, err := e.reg.AwsRangeSpecs.List(context.Background(), ListOptions{})
	require.NoError(t, err)
	assert.False(t, page.Enveloped)
	assert.Equal(t, 1, page.TotalPages)
	assert.Equal(t, len(page.Data), page.TotalCount)
	assert.NotEmpty(t, page.Data)
}

func TestScopedResource(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.reg.RangeIPs.List(ctx, ListOptions{})
	de := displayError(t, err)
	assert.Equal(t, apierror.NoStatus, de.Status)
	assert.Equal(t, "An error occurred retrieving the IPs", de.DefaultMessage)

	page, err := e.reg.RangeIPs.In(scope).List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalPages)
	assert.Len(t, page.Data, 2)
}

func TestGetNotFoundIsNormalized(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	r, err := e.reg.Ranges.Get(ctx, mockapi.RangeID)
	require.NoError(t, err)
	assert.Equal(t, "Training Range", r.Name)

	_, err = e.reg.Ranges.Get(ctx, "missing")
	de := displayError(t, err)
	assert.Equal(t, http.StatusNotFound, de.Status)
	assert.Equal(t, "not found", de.Message)
	assert.Equal(t, "An error occurred retrieving the Range", de.DefaultMessage)

	_, err = e.reg.Ranges.Get(ctx, " ")
	de = displayError(t, err)
	assert.Equal(t, apierror.NoStatus, de.Status)
}

func TestChartsAddressedByName(t *testing.T) {
	e := newEnv(t)
	c, err := e.reg.Charts.Get(context.Background(), mockapi.ChartName)
	require.NoError(t, err)
	assert.Equal(t, mockapi.ChartName, c.ID())
	assert.NotEmpty(t, c.Versions)
}

func TestCreateInvalidatesOwnKeyOnSuccess(t *testing.T) {
	e := newEnv(t)
	e.inv.On("InvalidateQueries", querykey.Ranges).Once()

	got, err := e.reg.Ranges.Create(context.Background(), models.RangeCreate{
		Described:     models.Described{Name: "New Range"},
		BootstrapType: "aws",
		Specification: "b1b2c3d4-0001-4997-8f3c-70f0a335d5a3",
	})
	require.NoError(t, err)
	assert.Equal(t, "New Range", got.Name)
	e.inv.AssertExpectations(t)
}

func TestCreateFailureDoesNotInvalidate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// Rejected locally.
	_, err := e.reg.Ranges.Create(ctx, models.RangeCreate{BootstrapType: "aws", Specification: "x"})
	de := displayError(t, err)
	assert.Equal(t, apierror.NoStatus, de.Status)
	assert.Equal(t, "An error occurred creating the Range", de.DefaultMessage)

	// Rejected by the API.
	missing := New[models.Range, models.Described, models.Described](Definition{
		Key: querykey.Ranges, Path: "manage/infrastructure/missing", Singular: "Range", Plural: "Ranges",
	}, e.deps)
	_, err = missing.Create(ctx, models.Described{Name: "x"})
	de = displayError(t, err)
	assert.Equal(t, http.StatusNotFound, de.Status)
	assert.Equal(t, "An error occurred creating the Range", de.DefaultMessage)

	e.inv.AssertNotCalled(t, "InvalidateQueries", mock.Anything)
}

func TestUpdateUsesCannedResponse(t *testing.T) {
	e := newEnv(t)
	e.inv.On("InvalidateQueries", querykey.Ranges).Once()

	got, err := e.reg.Ranges.Update(context.Background(), mockapi.RangeID, models.RangeUpdate{
		Described: models.Described{Name: "anything"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Training Range (updated)", got.Name)
	e.inv.AssertExpectations(t)
}

func TestDeleteSkipInvalidate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.inv.On("InvalidateQueries", querykey.RangeVolumes).Once()

	require.NoError(t, e.reg.RangeVolumes.Delete(ctx, "f1b2c3d4-0001-4997-8f3c-70f0a335d5a3", DeleteOptions{SkipInvalidate: true}))
	e.inv.AssertNotCalled(t, "InvalidateQueries", querykey.RangeVolumes)

	require.NoError(t, e.reg.RangeVolumes.Delete(ctx, "f1b2c3d4-0002-4997-8f3c-70f0a335d5a3", DeleteOptions{}))
	e.inv.AssertExpectations(t)
}

func TestMutationInvalidatesCachedList(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	deps := e.deps
	deps.Invalidator = e.cache
	vols := New[models.RangeVolume, models.RangeVolumeCreate, models.RangeVolumeUpdate](RangeVolumesDef, deps)

	_, err := vols.List(ctx, ListOptions{})
	require.NoError(t, err)
	_, err = vols.Create(ctx, models.RangeVolumeCreate{Described: models.Described{Name: "v"}, Storage: "1Gi"})
	require.NoError(t, err)

	// Stale after invalidation: served from cache, refetched in background.
	_, err = vols.List(ctx, ListOptions{})
	require.NoError(t, err)
	e.cache.Wait()
	assert.Equal(t, 2, e.hits.get("GET /v1/content/range/range-volumes"))
}

func TestVMPowerActions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	vms := e.reg.RangeVMs.In(scope)
	e.inv.On("InvalidateQueries", querykey.RangeResourceVMs)

	vm, err := vms.Start(ctx, "bb12c3d4-0002-4997-8f3c-70f0a335d5a3")
	require.NoError(t, err)
	assert.True(t, vm.Running)

	vm, err = vms.Reboot(ctx, "bb12c3d4-0001-4997-8f3c-70f0a335d5a3")
	require.NoError(t, err)
	assert.True(t, vm.Running)
	e.inv.AssertNumberOfCalls(t, "InvalidateQueries", 3)

	_, err = vms.Reboot(ctx, "missing")
	de := displayError(t, err)
	assert.Equal(t, "An error occurred stopping the VM", de.DefaultMessage)
	e.inv.AssertNumberOfCalls(t, "InvalidateQueries", 3)
}

func TestBackgroundJobs(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	jobs, err := e.reg.BackgroundJobs.List(ctx, mockapi.ScenarioID)
	require.NoError(t, err)
	require.NotEmpty(t, jobs)
	assert.True(t, Pending(jobs))

	jobs, err = e.reg.BackgroundJobs.List(ctx, mockapi.SecondScenarioID)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.False(t, Pending(jobs))

	_, err = e.reg.BackgroundJobs.List(ctx, "")
	de := displayError(t, err)
	assert.Equal(t, "An error occurred retrieving the Background Jobs", de.DefaultMessage)
}

func TestBackgroundJobsPoll(t *testing.T) {
	e := newEnv(t)
	obs := e.reg.BackgroundJobs.Watch(context.Background(), mockapi.ScenarioID, 10*time.Millisecond)
	defer obs.Close()

	require.Eventually(t, func() bool {
		return e.hits.get("POST /v1/graphql") >= 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, obs.Result().HasData)
}

func TestRangeGraph(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	g, err := e.reg.RangeGraph.Get(ctx, mockapi.RangeID)
	require.NoError(t, err)
	assert.NotEmpty(t, g.Resources)

	_, err = e.reg.RangeGraph.Get(ctx, "missing")
	require.Error(t, err)

	scs, err := e.reg.RangeGraph.Scenarios(ctx, mockapi.RangeID)
	require.NoError(t, err)
	assert.Len(t, scs, 2)
}

func TestRangeInvalidationCoversGraphQueries(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.reg.RangeGraph.Get(ctx, mockapi.RangeID)
	require.NoError(t, err)
	_, err = e.reg.RangeGraph.Scenarios(ctx, mockapi.RangeID)
	require.NoError(t, err)
	require.Equal(t, 2, e.hits.get("POST /v1/graphql"))

	_, err = e.reg.RangeGraph.Scenarios(ctx, mockapi.RangeID)
	require.NoError(t, err)
	assert.Equal(t, 2, e.hits.get("POST /v1/graphql"))

	// Stale entries are served once more and refetched in the background.
	e.cache.InvalidateQueries(ctx, querykey.Ranges)
	_, err = e.reg.RangeGraph.Get(ctx, mockapi.RangeID)
	require.NoError(t, err)
	_, err = e.reg.RangeGraph.Scenarios(ctx, mockapi.RangeID)
	require.NoError(t, err)
	e.cache.Wait()
	assert.Equal(t, 4, e.hits.get("POST /v1/graphql"))
}

func TestWatchListPollsOnlyPollingResources(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	opts := ListOptions{ShouldPoll: 10 * time.Millisecond}

	ranges := e.reg.Ranges.WatchList(ctx, opts)
	defer ranges.Close()
	scenarios := e.reg.Scenarios.WatchList(ctx, opts)
	defer scenarios.Close()

	require.Eventually(t, func() bool {
		return e.hits.get("GET /v1/manage/infrastructure/ranges") >= 3 &&
			e.hits.get("GET /v1/content/range/scenarios") == 1
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, e.hits.get("GET /v1/content/range/scenarios"))
}

func TestWatchListSetParams(t *testing.T) {
	e := newEnv(t)
	w := e.reg.Scenarios.WatchList(context.Background(), ListOptions{
		Params: apiclient.ListParams{Offset: apiclient.Int(0), Limit: apiclient.Int(2)},
	})
	defer w.Close()

	require.Eventually(t, func() bool {
		r := w.Result()
		return r.HasData && len(r.Data.Data) == 2
	}, 2*time.Second, 5*time.Millisecond)

	w.SetParams(apiclient.ListParams{Offset: apiclient.Int(2), Limit: apiclient.Int(2)})
	r := w.Result()
	assert.True(t, r.HasData, "previous page stays visible")

	require.Eventually(t, func() bool {
		r := w.Result()
		return r.HasData && !r.IsPreviousData && len(r.Data.Data) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDefinitionsAreUnique(t *testing.T) {
	seen := map[querykey.Key]bool{}
	for _, d := range Definitions() {
		assert.False(t, seen[d.Key], "duplicate key %s", d.Key)
		seen[d.Key] = true
		assert.NotEmpty(t, d.Singular)
		assert.NotEmpty(t, d.Plural)
	}
}
