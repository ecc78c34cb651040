package mockapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/rangeos/engine/internal/apiclient"
	"github.com/rangeos/engine/internal/querykey"
	"github.com/rangeos/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	if _, err := logger.Init("error", "json"); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	s, err := NewServer(Options{Logger: logger.L()})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func fixtureURL(ts *httptest.Server, e CatalogEntry) string {
	p := strings.NewReplacer("{rangeId}", RangeID, "{scenarioId}", ScenarioID).Replace(e.Path)
	return ts.URL + "/v1/" + p
}

func get(t *testing.T, url string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, b
}

func send(t *testing.T, method, url string, body any) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, b
}

func assertUnpaged(t *testing.T, e CatalogEntry, body []byte) {
	t.Helper()
	res := gjson.ParseBytes(body)
	switch e.Paging.Unpaged {
	case UnpagedArray:
		require.True(t, res.IsArray(), "%s: want bare array, got %s", e.Key, body)
		assert.Len(t, res.Array(), e.Count)
	case UnpagedEnvelope:
		require.True(t, res.IsObject(), "%s: want envelope", e.Key)
		assert.EqualValues(t, 1, res.Get("totalPages").Int())
		assert.EqualValues(t, e.Count, res.Get("totalCount").Int())
		assert.Len(t, res.Get("data").Array(), e.Count)
	case UnpagedEnvelopeNoPages:
		require.True(t, res.IsObject(), "%s: want envelope", e.Key)
		assert.False(t, res.Get("totalPages").Exists(), "%s: totalPages must be absent", e.Key)
		assert.Len(t, res.Get("data").Array(), e.Count)
	}
}

func TestCatalogCoversResources(t *testing.T) {
	cat := Catalog()
	keys := map[querykey.Key]bool{}
	for _, e := range cat {
		assert.Greater(t, e.Count, 0, "%s has no records", e.Key)
		assert.Len(t, e.IDs, e.Count)
		keys[e.Key] = true
	}
	for _, k := range []querykey.Key{querykey.Ranges, querykey.RangeIPs, querykey.RangeResourceVMs, querykey.Scenarios, querykey.Charts} {
		assert.True(t, keys[k], "missing fixture %s", k)
	}
}

func TestPagedListTotalPages(t *testing.T) {
	ts := newTestServer(t)

	for _, e := range Catalog() {
		e := e
		for _, limit := range []int{1, 2} {
			t.Run(fmt.Sprintf("%s/limit=%d", e.Key, limit), func(t *testing.T) {
				status, body := get(t, fmt.Sprintf("%s?offset=0&limit=%d", fixtureURL(ts, e), limit))
				require.Equal(t, http.StatusOK, status)

				if !e.Paging.Paged {
					assertUnpaged(t, e, body)
					return
				}
				page, err := apiclient.DecodePage[json.RawMessage](body)
				require.NoError(t, err)
				assert.True(t, page.Enveloped)
				assert.Equal(t, e.Count, page.TotalCount)
				assert.Equal(t, apiclient.TotalPages(e.Count, limit), page.TotalPages)
				if e.Paging.SliceWindow {
					assert.LessOrEqual(t, len(page.Data), limit)
				} else {
					assert.Len(t, page.Data, e.Count)
				}
			})
		}
	}
}

func TestScopedAndImageFixturesPage(t *testing.T) {
	ts := newTestServer(t)
	want := map[querykey.Key]bool{querykey.RangeResourceVMs: true, querykey.RangeIPs: true, querykey.VMImages: true}

	for _, e := range Catalog() {
		if !want[e.Key] {
			continue
		}
		delete(want, e.Key)
		require.True(t, e.Paging.Paged, "%s must honour limit", e.Key)
		require.Greater(t, e.Count, 1)

		_, body := get(t, fixtureURL(ts, e)+"?offset=0&limit=1")
		assert.EqualValues(t, e.Count, gjson.GetBytes(body, "totalPages").Int(), e.Key)
	}
	assert.Empty(t, want)
}

func TestSliceWindowOffsets(t *testing.T) {
	ts := newTestServer(t)
	var scenarios CatalogEntry
	for _, e := range Catalog() {
		if e.Key == querykey.Scenarios {
			scenarios = e
		}
	}
	require.True(t, scenarios.Paging.SliceWindow)

	_, body := get(t, fixtureURL(ts, scenarios)+"?offset=2&limit=2")
	page, err := apiclient.DecodePage[struct {
		UUID string `json:"uuid"`
	}](body)
	require.NoError(t, err)
	require.Len(t, page.Data, scenarios.Count-2)
	assert.Equal(t, scenarios.IDs[2], page.Data[0].UUID)

	_, body = get(t, fixtureURL(ts, scenarios)+"?offset=50&limit=2")
	page, err = apiclient.DecodePage[struct {
		UUID string `json:"uuid"`
	}](body)
	require.NoError(t, err)
	assert.Empty(t, page.Data)
	assert.Equal(t, scenarios.Count, page.TotalCount)
}

func TestUnpagedList(t *testing.T) {
	ts := newTestServer(t)
	for _, e := range Catalog() {
		e := e
		t.Run(string(e.Key), func(t *testing.T) {
			status, body := get(t, fixtureURL(ts, e))
			require.Equal(t, http.StatusOK, status)
			assertUnpaged(t, e, body)

			// Only one of the two params is the same as none.
			_, body = get(t, fixtureURL(ts, e)+"?limit=2")
			assertUnpaged(t, e, body)
		})
	}
}

func TestInvalidPagingParams(t *testing.T) {
	ts := newTestServer(t)
	base := ts.URL + "/v1/content/range/scenarios"

	for _, q := range []string{"?offset=x&limit=2", "?offset=0&limit=0", "?offset=-1&limit=2", "?offset=0&limit=abc"} {
		status, body := get(t, base+q)
		assert.Equal(t, http.StatusBadRequest, status, q)
		assert.True(t, gjson.GetBytes(body, "message").Exists(), q)
	}
}

func TestGetByID(t *testing.T) {
	ts := newTestServer(t)

	status, body := get(t, ts.URL+"/v1/manage/infrastructure/ranges/"+RangeID)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, RangeID, gjson.GetBytes(body, "uuid").String())

	status, body = get(t, ts.URL+"/v1/content/assets/charts/"+ChartName)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, ChartName, gjson.GetBytes(body, "name").String())

	status, body = get(t, ts.URL+"/v1/manage/infrastructure/ranges/does-not-exist")
	assert.Equal(t, http.StatusNotFound, status)
	assert.JSONEq(t, `{"message":"not found"}`, string(body))
}

func TestMutations(t *testing.T) {
	ts := newTestServer(t)
	base := ts.URL + "/v1/manage/infrastructure/ranges"

	status, body := send(t, http.MethodPost, base, map[string]any{"name": "x"})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "New Range", gjson.GetBytes(body, "name").String())

	status, body = send(t, http.MethodPost, base, map[string]any{"description": "no name"})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "name", gjson.GetBytes(body, "errors.0.field").String())

	// Canned update ignores the body.
	status, body = send(t, http.MethodPut, base+"/"+RangeID, map[string]any{"name": "ignored"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Training Range (updated)", gjson.GetBytes(body, "name").String())

	status, body = send(t, http.MethodPut, base+"/other", map[string]any{"name": "ignored"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "New Range", gjson.GetBytes(body, "name").String())

	status, body = send(t, http.MethodDelete, base+"/"+RangeID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{}`, string(body))

	// Fixtures are not a data store.
	_, body = get(t, base)
	assert.EqualValues(t, 3, gjson.GetBytes(body, "totalCount").Int())
}

func TestVMPowerActions(t *testing.T) {
	ts := newTestServer(t)
	base := ts.URL + "/v1/manage/range/" + RangeID + "/scenarios/" + ScenarioID + "/range-vms/"

	status, body := send(t, http.MethodPost, base+"bb12c3d4-0002-4997-8f3c-70f0a335d5a3/start", nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, gjson.GetBytes(body, "running").Bool())
	assert.Equal(t, "Ready", gjson.GetBytes(body, "status").String())

	status, body = send(t, http.MethodPost, base+"bb12c3d4-0001-4997-8f3c-70f0a335d5a3/stop", nil)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, gjson.GetBytes(body, "running").Bool())

	status, _ = send(t, http.MethodPost, base+"missing/start", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestGraphQLBackgroundJobs(t *testing.T) {
	ts := newTestServer(t)
	url := ts.URL + "/v1/graphql"

	status, body := send(t, http.MethodPost, url, apiclient.GraphQLRequest{
		OperationName: "BackgroundJobs",
		Variables:     map[string]any{"scenarioId": ScenarioID},
	})
	require.Equal(t, http.StatusOK, status)
	jobs := gjson.GetBytes(body, "data.backgroundJobs").Array()
	require.NotEmpty(t, jobs)
	for _, j := range jobs {
		assert.Equal(t, ScenarioID, j.Get("scenarioId").String())
	}

	_, body = send(t, http.MethodPost, url, apiclient.GraphQLRequest{
		OperationName: "BackgroundJobs",
		Variables:     map[string]any{"scenarioId": SecondScenarioID},
	})
	assert.JSONEq(t, `{"data":{}}`, string(body))
}

func TestGraphQLOtherOperations(t *testing.T) {
	ts := newTestServer(t)
	url := ts.URL + "/v1/graphql"

	_, body := send(t, http.MethodPost, url, apiclient.GraphQLRequest{OperationName: "Range", Variables: map[string]any{"uuid": RangeID}})
	assert.Equal(t, RangeID, gjson.GetBytes(body, "data.range.uuid").String())
	assert.NotEmpty(t, gjson.GetBytes(body, "data.range.resources").Array())

	_, body = send(t, http.MethodPost, url, apiclient.GraphQLRequest{OperationName: "Scenarios", Variables: map[string]any{"rangeId": RangeID}})
	assert.Len(t, gjson.GetBytes(body, "data.scenarios").Array(), 2)

	_, body = send(t, http.MethodPost, url, apiclient.GraphQLRequest{OperationName: "Range", Variables: map[string]any{"uuid": "nope"}})
	assert.JSONEq(t, `{"data":{}}`, string(body))

	_, body = send(t, http.MethodPost, url, apiclient.GraphQLRequest{OperationName: "Unknown"})
	assert.JSONEq(t, `{"data":{}}`, string(body))

	status, _ := send(t, http.MethodPost, url, json.RawMessage(`"x"`))
	assert.Equal(t, http.StatusOK, status)
}
