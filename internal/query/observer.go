package query

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// WatchOptions configure an Observer.
type WatchOptions struct {
	// KeepPreviousData keeps the last resolved data visible while a new key loads.
	KeepPreviousData bool
	// RefetchInterval polls the current key when positive.
	RefetchInterval time.Duration
}

// Result is a snapshot of an observed query.
type Result[T any] struct {
	Data           T
	HasData        bool
	Err            error
	IsFetching     bool
	IsPreviousData bool
	UpdatedAt      time.Time
}

// Observer follows one key at a time, refetching it when it is invalidated
// and optionally on an interval.
type Observer[T any] struct {
	c    *Client
	opts WatchOptions
	log  *zap.Logger

	mu       sync.Mutex
	id       uint64
	key      Key
	hash     string
	fn       Fetcher[T]
	prev     *Result[T]
	closed   bool
	notifyCh chan struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// Watch starts observing key. The first fetch runs in the background unless
// fresh data is already cached. Cancelling ctx has the same effect as Close.
func Watch[T any](ctx context.Context, c *Client, key Key, fn Fetcher[T], opts WatchOptions) *Observer[T] {
	ctx, cancel := context.WithCancel(ctx)
	o := &Observer[T]{
		c:        c,
		opts:     opts,
		log:      c.log,
		notifyCh: make(chan struct{}, 1),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	o.mu.Lock()
	o.attachLocked(key, fn)
	o.mu.Unlock()
	o.ensureFresh()

	go o.loop(ctx)
	return o
}

// Result returns the current snapshot.
func (o *Observer[T]) Result() Result[T] {
	o.mu.Lock()
	hash, prev := o.hash, o.prev
	o.mu.Unlock()

	var r Result[T]
	o.c.mu.Lock()
	if e, ok := o.c.entries[hash]; ok {
		r.Err = e.err
		r.IsFetching = e.fetching
		if e.hasData {
			if v, ok := e.data.(T); ok {
				r.Data, r.HasData, r.UpdatedAt = v, true, e.updatedAt
			}
		}
	}
	o.c.mu.Unlock()

	if !r.HasData && prev != nil {
		r.Data, r.HasData, r.UpdatedAt = prev.Data, true, prev.UpdatedAt
		r.IsPreviousData = true
	}
	return r
}

// Key returns the observed key.
func (o *Observer[T]) Key() Key {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.key
}

// SetKey switches the observer to a new key, e.g. when list options change.
func (o *Observer[T]) SetKey(key Key, fn Fetcher[T]) {
	hash := key.Hash()
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	if hash == o.hash {
		o.fn = fn
		o.mu.Unlock()
		return
	}

	if o.opts.KeepPreviousData {
		o.c.mu.Lock()
		if e, ok := o.c.entries[o.hash]; ok && e.hasData {
			if v, ok := e.data.(T); ok {
				o.prev = &Result[T]{Data: v, HasData: true, UpdatedAt: e.updatedAt}
			}
		}
		o.c.mu.Unlock()
	} else {
		o.prev = nil
	}

	o.detachLocked()
	o.attachLocked(key, fn)
	o.signal()
	o.mu.Unlock()

	o.ensureFresh()
}

// Refetch loads the current key now, regardless of staleness.
func (o *Observer[T]) Refetch(ctx context.Context) (T, error) {
	o.mu.Lock()
	key, hash, fn := o.key, o.hash, o.fn
	o.mu.Unlock()

	var zero T
	load, _ := erase(fn)
	v, err := o.c.fetch(ctx, key, hash, load)
	if err != nil {
		return zero, err
	}
	t, _ := v.(T)
	return t, nil
}

// Subscribe returns a channel that receives a value whenever the observed
// entry changes. It is closed by Close.
func (o *Observer[T]) Subscribe() <-chan struct{} { return o.notifyCh }

// Close stops polling and detaches from the cache.
func (o *Observer[T]) Close() {
	o.cancel()
	<-o.done
}

func (o *Observer[T]) loop(ctx context.Context) {
	defer func() {
		o.mu.Lock()
		o.closed = true
		o.detachLocked()
		close(o.notifyCh)
		o.mu.Unlock()
		close(o.done)
	}()

	if o.opts.RefetchInterval <= 0 {
		<-ctx.Done()
		return
	}

	t := time.NewTicker(o.opts.RefetchInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := o.Refetch(ctx); err != nil && ctx.Err() == nil {
				o.log.Debug("poll failed", zap.Stringer("key", o.Key()), zap.Error(err))
			}
		}
	}
}

func (o *Observer[T]) attachLocked(key Key, fn Fetcher[T]) {
	o.key, o.hash, o.fn = key, key.Hash(), fn
	load, _ := erase(fn)

	o.c.mu.Lock()
	o.c.nextID++
	o.id = o.c.nextID
	e := o.c.entryLocked(key, o.hash)
	e.fetcher = load
	e.lastUsed = o.c.cfg.Now()
	e.observers[o.id] = o.onChange
	o.c.mu.Unlock()
}

func (o *Observer[T]) detachLocked() {
	o.c.mu.Lock()
	if e, ok := o.c.entries[o.hash]; ok {
		delete(e.observers, o.id)
		e.lastUsed = o.c.cfg.Now()
	}
	o.c.mu.Unlock()
}

// onChange runs under the client lock.
func (o *Observer[T]) onChange() {
	o.signal()
}

func (o *Observer[T]) signal() {
	select {
	case o.notifyCh <- struct{}{}:
	default:
	}
}

// ensureFresh fetches the current key in the background when it has no
// data or its data is stale. Once the new key resolves, previous data is
// dropped by the entry taking over in Result.
func (o *Observer[T]) ensureFresh() {
	o.mu.Lock()
	key, hash := o.key, o.hash
	o.mu.Unlock()

	o.c.mu.Lock()
	e := o.c.entryLocked(key, hash)
	need := !e.hasData || o.c.staleLocked(e)
	load := e.fetcher
	o.c.mu.Unlock()

	if need && load != nil {
		o.c.refetchInBackground(key, hash, load)
	}
}
