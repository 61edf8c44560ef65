package diskcache

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Fetcher loads a fresh payload from the origin.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Loader applies the stale-while-revalidate contract on top of a Cache:
// fresh hits return directly, stale hits return immediately and schedule one
// background refresh per key, misses fetch synchronously and write through.
type Loader[T any] struct {
	name    string
	cache   *Cache[T]
	timeout time.Duration

	group singleflight.Group

	mu         sync.Mutex
	refreshing map[string]struct{}
	wg         sync.WaitGroup
}

// NewLoader wraps cache. refreshTimeout bounds every origin fetch; fetches run
// detached from the request that triggered them.
func NewLoader[T any](name string, cache *Cache[T], refreshTimeout time.Duration) *Loader[T] {
	if refreshTimeout <= 0 {
		refreshTimeout = 30 * time.Second
	}
	return &Loader[T]{
		name:       name,
		cache:      cache,
		timeout:    refreshTimeout,
		refreshing: make(map[string]struct{}),
	}
}

// Cache returns the underlying cache.
func (l *Loader[T]) Cache() *Cache[T] {
	return l.cache
}

// Load returns the cached payload for key or fetches it. Origin errors on a miss
// are returned to the caller and never cached.
func (l *Loader[T]) Load(ctx context.Context, key string, fetch Fetcher[T]) (Result[T], error) {
	if res, ok := l.cache.Get(key); ok {
		if res.IsStale {
			l.RefreshAsync(key, fetch)
		}
		return res, nil
	}

	payload, err := l.fetchAndStore(ctx, key, fetch)
	if err != nil {
		return Result[T]{}, err
	}
	return Result[T]{Payload: payload, CachedAt: l.cache.now(), Fetched: true}, nil
}

// Refresh fetches synchronously regardless of cache state and writes through.
func (l *Loader[T]) Refresh(ctx context.Context, key string, fetch Fetcher[T]) (T, error) {
	return l.fetchAndStore(ctx, key, fetch)
}

// RefreshAsync schedules a background refresh unless one is already running
// for key. It reports whether a new refresh was started.
func (l *Loader[T]) RefreshAsync(key string, fetch Fetcher[T]) bool {
	l.mu.Lock()
	if _, busy := l.refreshing[key]; busy {
		l.mu.Unlock()
		return false
	}
	l.refreshing[key] = struct{}{}
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer func() {
			l.mu.Lock()
			delete(l.refreshing, key)
			l.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()

		if _, err := l.fetchAndStore(ctx, key, fetch); err != nil {
			log.Printf("[%s] background refresh of %s failed: %v", l.name, key, err)
		}
	}()
	return true
}

// Wait blocks until all background refreshes have finished.
func (l *Loader[T]) Wait() {
	l.wg.Wait()
}

// fetchAndStore shares one origin fetch between every caller of key. The fetch
// runs detached from the caller that started it and is bounded by the refresh
// timeout; a caller whose own context ends stops waiting without failing the
// others.
func (l *Loader[T]) fetchAndStore(ctx context.Context, key string, fetch Fetcher[T]) (T, error) {
	ch := l.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()
		payload, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		l.cache.Set(key, payload)
		return payload, nil
	})

	var zero T
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
