package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rangeos/engine/internal/querykey"
)

// Fetcher loads the data for one key.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Invalidator marks every query under a resource key as stale.
type Invalidator interface {
	InvalidateQueries(ctx context.Context, resource querykey.Key)
}

// Recorder receives cache events. metrics.Query implements it.
type Recorder interface {
	Hit(resource string)
	Miss(resource string)
	Fetch(resource string, err error, elapsed time.Duration)
	Invalidate(resource string)
}

type nopRecorder struct{}

func (nopRecorder) Hit(string)                         {}
func (nopRecorder) Miss(string)                        {}
func (nopRecorder) Fetch(string, error, time.Duration) {}
func (nopRecorder) Invalidate(string)                  {}

// Config tunes a Client. Zero values fall back to the defaults below.
type Config struct {
	StaleTime time.Duration
	CacheTime time.Duration
	// Retry is the number of extra attempts after a failed fetch.
	Retry int
	// RetryDelay returns the wait before retry attempt n (starting at 0).
	RetryDelay func(attempt int) time.Duration
	// BackgroundTimeout bounds refetches that have no caller context.
	BackgroundTimeout time.Duration

	Store    Store
	Recorder Recorder
	Logger   *zap.Logger
	Now      func() time.Time
}

const (
	DefaultStaleTime         = 30 * time.Second
	DefaultCacheTime         = 5 * time.Minute
	DefaultBackgroundTimeout = 30 * time.Second
)

// DefaultRetryDelay doubles from one second and caps at thirty.
func DefaultRetryDelay(attempt int) time.Duration {
	d := time.Second << attempt
	if d <= 0 || d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}

type entry struct {
	key       Key
	hash      string
	data      any
	hasData   bool
	err       error
	updatedAt time.Time
	lastUsed  time.Time
	invalid   bool
	fetching  bool
	fetcher   func(ctx context.Context) (any, error)
	observers map[uint64]func()
}

func (e *entry) notify() {
	for _, fn := range e.observers {
		fn()
	}
}

// Client is a keyed result cache with stale-while-revalidate semantics.
// It is safe for concurrent use.
type Client struct {
	cfg    Config
	log    *zap.Logger
	rec    Recorder
	store  Store
	group  singleflight.Group
	bg     sync.WaitGroup
	nextID uint64

	mu      sync.Mutex
	entries map[string]*entry
}

// NewClient creates a Client.
func NewClient(cfg Config) *Client {
	if cfg.StaleTime <= 0 {
		cfg.StaleTime = DefaultStaleTime
	}
	if cfg.CacheTime <= 0 {
		cfg.CacheTime = DefaultCacheTime
	}
	if cfg.Retry < 0 {
		cfg.Retry = 0
	}
	if cfg.RetryDelay == nil {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.BackgroundTimeout <= 0 {
		cfg.BackgroundTimeout = DefaultBackgroundTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	c := &Client{
		cfg:     cfg,
		log:     cfg.Logger,
		rec:     cfg.Recorder,
		store:   cfg.Store,
		entries: make(map[string]*entry),
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.rec == nil {
		c.rec = nopRecorder{}
	}
	return c
}

// Fetch returns the cached value for key or loads it with fn.
//
// A fresh hit is returned as is. A stale or invalidated hit is returned
// immediately and refetched in the background. A miss consults the Store,
// then calls fn synchronously. Concurrent misses for one key share a call.
func Fetch[T any](ctx context.Context, c *Client, key Key, fn Fetcher[T]) (T, error) {
	var zero T
	hash := key.Hash()
	load, decode := erase(fn)

	c.mu.Lock()
	e := c.entryLocked(key, hash)
	e.fetcher = load
	e.lastUsed = c.cfg.Now()
	if e.hasData {
		if v, ok := e.data.(T); ok {
			stale := c.staleLocked(e)
			c.mu.Unlock()
			c.rec.Hit(string(key.Resource()))
			if stale {
				c.refetchInBackground(key, hash, load)
			}
			return v, nil
		}
	}
	c.mu.Unlock()

	if v, ok := c.loadStored(ctx, key, hash, decode); ok {
		if t, ok := v.(T); ok {
			c.rec.Hit(string(key.Resource()))
			return t, nil
		}
	}

	c.rec.Miss(string(key.Resource()))
	v, err := c.fetch(ctx, key, hash, load)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("query %s: cached value has type %T", key, v)
	}
	return t, nil
}

// SetQueryData writes v under key as freshly fetched data.
func SetQueryData[T any](c *Client, key Key, v T) {
	hash := key.Hash()
	c.mu.Lock()
	e := c.entryLocked(key, hash)
	now := c.cfg.Now()
	e.data, e.hasData, e.err = v, true, nil
	e.updatedAt, e.lastUsed = now, now
	e.invalid = false
	e.notify()
	c.mu.Unlock()
}

// GetQueryData reads the cached value for key without fetching.
func GetQueryData[T any](c *Client, key Key) (T, bool) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.Hash()]
	if !ok || !e.hasData {
		return zero, false
	}
	v, ok := e.data.(T)
	return v, ok
}

// InvalidateQueries marks every entry under resource stale. Watched entries
// refetch in the background; the call does not wait for them.
func (c *Client) InvalidateQueries(ctx context.Context, resource querykey.Key) {
	type job struct {
		key  Key
		hash string
		load func(context.Context) (any, error)
	}
	var jobs []job

	c.mu.Lock()
	for hash, e := range c.entries {
		if e.key.Resource() != resource {
			continue
		}
		e.invalid = true
		if len(e.observers) > 0 && e.fetcher != nil {
			jobs = append(jobs, job{key: e.key, hash: hash, load: e.fetcher})
		}
	}
	c.mu.Unlock()

	c.rec.Invalidate(string(resource))
	c.log.Debug("queries invalidated",
		zap.String("resource", string(resource)),
		zap.Int("refetching", len(jobs)),
	)

	if c.store != nil {
		if err := c.store.DeleteResource(ctx, string(resource)); err != nil {
			c.log.Warn("store invalidation failed", zap.String("resource", string(resource)), zap.Error(err))
		}
	}

	for _, j := range jobs {
		c.refetchInBackground(j.key, j.hash, j.load)
	}
}

// RemoveQueries drops every unobserved entry under resource.
func (c *Client) RemoveQueries(resource querykey.Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for hash, e := range c.entries {
		if e.key.Resource() == resource && len(e.observers) == 0 {
			delete(c.entries, hash)
			n++
		}
	}
	return n
}

// GC drops unobserved entries that were not used within CacheTime.
func (c *Client) GC() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.cfg.Now().Add(-c.cfg.CacheTime)
	n := 0
	for hash, e := range c.entries {
		if len(e.observers) == 0 && !e.fetching && e.lastUsed.Before(cutoff) {
			delete(c.entries, hash)
			n++
		}
	}
	return n
}

// RunGC calls GC every interval until ctx is done.
func (c *Client) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = c.cfg.CacheTime
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := c.GC(); n > 0 {
				c.log.Debug("query cache gc", zap.Int("removed", n))
			}
		}
	}
}

// Clear drops all cached data. Observed entries stay registered but empty.
func (c *Client) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for hash, e := range c.entries {
		if len(e.observers) == 0 {
			delete(c.entries, hash)
			continue
		}
		e.hasData, e.data, e.err, e.invalid = false, nil, nil, false
		e.notify()
	}
}

// Len reports the number of cached entries.
func (c *Client) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Wait blocks until background refetches started so far have finished.
func (c *Client) Wait() { c.bg.Wait() }

func (c *Client) entryLocked(key Key, hash string) *entry {
	e, ok := c.entries[hash]
	if !ok {
		e = &entry{key: key, hash: hash, observers: make(map[uint64]func())}
		c.entries[hash] = e
	}
	return e
}

func (c *Client) staleLocked(e *entry) bool {
	return e.invalid || c.cfg.Now().Sub(e.updatedAt) >= c.cfg.StaleTime
}

func (c *Client) refetchInBackground(key Key, hash string, load func(context.Context) (any, error)) {
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.BackgroundTimeout)
		defer cancel()
		if _, err := c.fetch(ctx, key, hash, load); err != nil {
			c.log.Debug("background refetch failed", zap.Stringer("key", key), zap.Error(err))
		}
	}()
}

// fetch runs load once per hash at a time and stores the outcome.
// A failure keeps previously cached data.
func (c *Client) fetch(ctx context.Context, key Key, hash string, load func(context.Context) (any, error)) (any, error) {
	v, err, _ := c.group.Do(hash, func() (any, error) {
		c.mu.Lock()
		e := c.entryLocked(key, hash)
		e.fetching = true
		e.notify()
		c.mu.Unlock()

		start := c.cfg.Now()
		v, err := c.withRetry(ctx, load)
		c.rec.Fetch(string(key.Resource()), err, c.cfg.Now().Sub(start))

		c.mu.Lock()
		e = c.entryLocked(key, hash)
		e.fetching = false
		if err != nil {
			e.err = err
		} else {
			now := c.cfg.Now()
			e.data, e.hasData, e.err = v, true, nil
			e.updatedAt, e.lastUsed = now, now
			e.invalid = false
		}
		e.notify()
		c.mu.Unlock()

		if err == nil {
			c.persist(ctx, key, hash, v)
		}
		return v, err
	})
	return v, err
}

func (c *Client) withRetry(ctx context.Context, load func(context.Context) (any, error)) (any, error) {
	var (
		v   any
		err error
	)
	for attempt := 0; ; attempt++ {
		v, err = load(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= c.cfg.Retry || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		t := time.NewTimer(c.cfg.RetryDelay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, err
		case <-t.C:
		}
	}
}

type storedValue struct {
	At    time.Time       `json:"at"`
	Value json.RawMessage `json:"value"`
}

func (c *Client) persist(ctx context.Context, key Key, hash string, v any) {
	if c.store == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		c.log.Debug("query value not storable", zap.Stringer("key", key), zap.Error(err))
		return
	}
	b, _ := json.Marshal(storedValue{At: c.cfg.Now(), Value: raw})
	if err := c.store.Set(ctx, hash, b, c.cfg.CacheTime); err != nil {
		c.log.Warn("query store write failed", zap.Stringer("key", key), zap.Error(err))
	}
}

func (c *Client) loadStored(ctx context.Context, key Key, hash string, decode func([]byte) (any, error)) (any, bool) {
	if c.store == nil {
		return nil, false
	}
	b, ok, err := c.store.Get(ctx, hash)
	if err != nil {
		c.log.Warn("query store read failed", zap.Stringer("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var sv storedValue
	if err := json.Unmarshal(b, &sv); err != nil {
		return nil, false
	}
	v, err := decode(sv.Value)
	if err != nil {
		return nil, false
	}

	c.mu.Lock()
	e := c.entryLocked(key, hash)
	if !e.hasData || e.updatedAt.Before(sv.At) {
		e.data, e.hasData, e.err = v, true, nil
		e.updatedAt = sv.At
		e.lastUsed = c.cfg.Now()
		e.notify()
	}
	stale := c.staleLocked(e)
	load := e.fetcher
	c.mu.Unlock()

	if stale && load != nil {
		c.refetchInBackground(key, hash, load)
	}
	return v, true
}

// erase turns a typed fetcher into the untyped form stored on entries.
func erase[T any](fn Fetcher[T]) (func(context.Context) (any, error), func([]byte) (any, error)) {
	load := func(ctx context.Context) (any, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	decode := func(b []byte) (any, error) {
		var v T
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
	return load, decode
}
