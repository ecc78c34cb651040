package query

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rangeos/engine/internal/querykey"
	"github.com/rangeos/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	if _, err := logger.Init("error", "json"); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestClient(t *testing.T, clk *clock) *Client {
	t.Helper()
	cfg := Config{
		StaleTime:  time.Minute,
		CacheTime:  5 * time.Minute,
		RetryDelay: func(int) time.Duration { return 0 },
		Logger:     logger.L(),
	}
	if clk != nil {
		cfg.Now = clk.Now
	}
	c := NewClient(cfg)
	t.Cleanup(c.Wait)
	return c
}

func counter(n *atomic.Int32, values ...string) Fetcher[string] {
	return func(ctx context.Context) (string, error) {
		i := n.Add(1)
		if int(i) <= len(values) {
			return values[i-1], nil
		}
		return values[len(values)-1], nil
	}
}

func TestKeyHashIsStableAndScoped(t *testing.T) {
	a := NewKey(querykey.RangeIPs, map[string]any{"limit": 10, "offset": 0})
	b := NewKey(querykey.RangeIPs, map[string]any{"offset": 0, "limit": 10})
	c := NewKey(querykey.Ranges, map[string]any{"limit": 10, "offset": 0})

	assert.Equal(t, a.Hash(), b.Hash())
	assert.NotEqual(t, a.Hash(), c.Hash())
	assert.Equal(t, querykey.RangeIPs, a.Resource())
	assert.Contains(t, a.Hash(), "range-ips:")
}

func TestFetchMissThenFreshHit(t *testing.T) {
	c := newTestClient(t, nil)
	var n atomic.Int32
	key := NewKey(querykey.Ranges)

	v, err := Fetch(context.Background(), c, key, counter(&n, "one", "two"))
	require.NoError(t, err)
	assert.Equal(t, "one", v)

	v, err = Fetch(context.Background(), c, key, counter(&n, "one", "two"))
	require.NoError(t, err)
	assert.Equal(t, "one", v)
	assert.Equal(t, int32(1), n.Load())
}

func TestFetchDeduplicatesConcurrentMisses(t *testing.T) {
	c := newTestClient(t, nil)
	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(ctx context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	key := NewKey(querykey.RangeResourceVMs, "abc")
	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := Fetch(context.Background(), c, key, fn)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestFetchServesStaleWhileRevalidating(t *testing.T) {
	clk := newClock()
	c := newTestClient(t, clk)
	var n atomic.Int32
	key := NewKey(querykey.Scenarios)
	fn := counter(&n, "old", "new")

	v, err := Fetch(context.Background(), c, key, fn)
	require.NoError(t, err)
	require.Equal(t, "old", v)

	clk.Advance(2 * time.Minute)
	v, err = Fetch(context.Background(), c, key, fn)
	require.NoError(t, err)
	assert.Equal(t, "old", v)

	c.Wait()
	got, ok := GetQueryData[string](c, key)
	require.True(t, ok)
	assert.Equal(t, "new", got)
	assert.Equal(t, int32(2), n.Load())
}

func TestFetchRetriesBeforeFailing(t *testing.T) {
	c := NewClient(Config{Retry: 2, RetryDelay: func(int) time.Duration { return 0 }})
	var calls atomic.Int32
	fn := func(ctx context.Context) (string, error) {
		if calls.Add(1) < 3 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	}

	v, err := Fetch(context.Background(), c, NewKey(querykey.Charts), fn)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, int32(3), calls.Load())

	calls.Store(-10)
	c.Clear()
	_, err = Fetch(context.Background(), c, NewKey(querykey.Charts), fn)
	require.EqualError(t, err, "flaky")
	assert.Equal(t, int32(-7), calls.Load())
}

func TestInvalidateMarksStaleAndRefetchesWatched(t *testing.T) {
	c := newTestClient(t, nil)
	var watched, unwatched atomic.Int32

	obs := Watch(context.Background(), c, NewKey(querykey.RangeIPs, 1), counter(&watched, "a", "b"), WatchOptions{})
	defer obs.Close()
	require.Eventually(t, func() bool { return obs.Result().HasData }, time.Second, time.Millisecond)

	other := NewKey(querykey.RangeIPs, 2)
	_, err := Fetch(context.Background(), c, other, counter(&unwatched, "x", "y"))
	require.NoError(t, err)

	unrelated := NewKey(querykey.Ranges)
	SetQueryData(c, unrelated, "keep")

	c.InvalidateQueries(context.Background(), querykey.RangeIPs)
	c.Wait()

	assert.Equal(t, int32(2), watched.Load())
	assert.Equal(t, "b", obs.Result().Data)
	assert.Equal(t, int32(1), unwatched.Load())

	// The unwatched entry is served stale once, then refreshed.
	v, err := Fetch(context.Background(), c, other, counter(&unwatched, "x", "y"))
	require.NoError(t, err)
	assert.Equal(t, "x", v)
	c.Wait()
	got, _ := GetQueryData[string](c, other)
	assert.Equal(t, "y", got)

	kept, ok := GetQueryData[string](c, unrelated)
	require.True(t, ok)
	assert.Equal(t, "keep", kept)
}

func TestFailedRefetchKeepsPreviousData(t *testing.T) {
	c := newTestClient(t, nil)
	key := NewKey(querykey.Certificates)
	SetQueryData(c, key, "cached")

	boom := errors.New("boom")
	obs := Watch(context.Background(), c, key, func(ctx context.Context) (string, error) {
		return "", boom
	}, WatchOptions{})
	defer obs.Close()

	_, err := obs.Refetch(context.Background())
	require.ErrorIs(t, err, boom)

	r := obs.Result()
	assert.True(t, r.HasData)
	assert.Equal(t, "cached", r.Data)
	assert.ErrorIs(t, r.Err, boom)
	assert.False(t, r.IsFetching)
}

func TestObserverKeepsPreviousDataOnKeySwitch(t *testing.T) {
	c := newTestClient(t, nil)
	page := func(p string, gate <-chan struct{}) Fetcher[string] {
		return func(ctx context.Context) (string, error) {
			if gate != nil {
				<-gate
			}
			return p, nil
		}
	}

	obs := Watch(context.Background(), c, NewKey(querykey.Ranges, 0), page("page-0", nil), WatchOptions{KeepPreviousData: true})
	defer obs.Close()
	require.Eventually(t, func() bool { return obs.Result().Data == "page-0" }, time.Second, time.Millisecond)

	gate := make(chan struct{})
	obs.SetKey(NewKey(querykey.Ranges, 1), page("page-1", gate))

	r := obs.Result()
	assert.True(t, r.HasData)
	assert.True(t, r.IsPreviousData)
	assert.Equal(t, "page-0", r.Data)

	close(gate)
	require.Eventually(t, func() bool {
		r := obs.Result()
		return r.Data == "page-1" && !r.IsPreviousData
	}, time.Second, time.Millisecond)
}

func TestObserverWithoutKeepPreviousDataResets(t *testing.T) {
	c := newTestClient(t, nil)
	gate := make(chan struct{})
	defer close(gate)

	obs := Watch(context.Background(), c, NewKey(querykey.Ranges, 0), func(ctx context.Context) (string, error) {
		return "page-0", nil
	}, WatchOptions{})
	defer obs.Close()
	require.Eventually(t, func() bool { return obs.Result().HasData }, time.Second, time.Millisecond)

	obs.SetKey(NewKey(querykey.Ranges, 1), func(ctx context.Context) (string, error) {
		<-gate
		return "page-1", nil
	})
	r := obs.Result()
	assert.False(t, r.HasData)
	assert.False(t, r.IsPreviousData)
}

func TestObserverPolls(t *testing.T) {
	c := newTestClient(t, nil)
	var n atomic.Int32
	obs := Watch(context.Background(), c, NewKey(querykey.BackgroundJobs), func(ctx context.Context) (int32, error) {
		return n.Add(1), nil
	}, WatchOptions{RefetchInterval: 5 * time.Millisecond})

	require.Eventually(t, func() bool { return n.Load() >= 3 }, 2*time.Second, time.Millisecond)
	obs.Close()

	stopped := n.Load()
	time.Sleep(30 * time.Millisecond)
	c.Wait()
	assert.LessOrEqual(t, n.Load(), stopped+1)

	for range obs.Subscribe() {
	}
}

func TestObserverSubscribeNotifies(t *testing.T) {
	c := newTestClient(t, nil)
	key := NewKey(querykey.VMImages)
	SetQueryData(c, key, "v1")

	obs := Watch(context.Background(), c, key, func(ctx context.Context) (string, error) { return "v1", nil }, WatchOptions{})
	defer obs.Close()

	SetQueryData(c, key, "v2")
	select {
	case <-obs.Subscribe():
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}
	assert.Equal(t, "v2", obs.Result().Data)
}

func TestGCDropsUnusedEntriesOnly(t *testing.T) {
	clk := newClock()
	c := newTestClient(t, clk)

	SetQueryData(c, NewKey(querykey.Ranges, "old"), 1)
	obs := Watch(context.Background(), c, NewKey(querykey.Ranges, "watched"), func(ctx context.Context) (int, error) { return 2, nil }, WatchOptions{})
	defer obs.Close()
	c.Wait()

	clk.Advance(10 * time.Minute)
	SetQueryData(c, NewKey(querykey.Ranges, "recent"), 3)

	assert.Equal(t, 1, c.GC())
	_, ok := GetQueryData[int](c, NewKey(querykey.Ranges, "old"))
	assert.False(t, ok)
	_, ok = GetQueryData[int](c, NewKey(querykey.Ranges, "recent"))
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestRemoveQueries(t *testing.T) {
	c := newTestClient(t, nil)
	SetQueryData(c, NewKey(querykey.RangeVolumes, 1), "a")
	SetQueryData(c, NewKey(querykey.RangeVolumes, 2), "b")
	SetQueryData(c, NewKey(querykey.Ranges), "c")

	assert.Equal(t, 2, c.RemoveQueries(querykey.RangeVolumes))
	assert.Equal(t, 1, c.Len())
}

type memStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	deleted []string
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (s *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data[key]
	return b, ok, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memStore) DeleteResource(_ context.Context, resource string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, resource)
	for k := range s.data {
		if len(k) > len(resource) && k[:len(resource)+1] == resource+":" {
			delete(s.data, k)
		}
	}
	return nil
}

type rangeRow struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

func TestStoreSharesResultsBetweenClients(t *testing.T) {
	store := newMemStore()
	key := NewKey(querykey.Ranges, map[string]int{"limit": 10})

	first := NewClient(Config{Store: store})
	var calls atomic.Int32
	fn := func(ctx context.Context) ([]rangeRow, error) {
		calls.Add(1)
		return []rangeRow{{UUID: "r1", Name: "Range 1"}}, nil
	}
	_, err := Fetch(context.Background(), first, key, fn)
	require.NoError(t, err)

	second := NewClient(Config{Store: store})
	got, err := Fetch(context.Background(), second, key, fn)
	require.NoError(t, err)
	second.Wait()
	assert.Equal(t, []rangeRow{{UUID: "r1", Name: "Range 1"}}, got)
	assert.Equal(t, int32(1), calls.Load())

	second.InvalidateQueries(context.Background(), querykey.Ranges)
	assert.Equal(t, []string{"ranges"}, store.deleted)
	_, ok, _ := store.Get(context.Background(), key.Hash())
	assert.False(t, ok)
}
