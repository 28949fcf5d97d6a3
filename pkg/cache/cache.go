package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache is a generic key/value cache.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	Delete(key K)
	Clear()
	Size() int
}

// InMemoryCache is a map-backed Cache. A zero TTL (and a zero default TTL)
// keeps the entry for the lifetime of the process.
type InMemoryCache[K comparable, V any] struct {
	items      map[K]*cacheItem[V]
	mu         sync.RWMutex
	defaultTTL time.Duration
}

type cacheItem[V any] struct {
	value     V
	expiresAt time.Time // zero = never
}

func (i *cacheItem[V]) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && now.After(i.expiresAt)
}

// NewInMemoryCache creates a cache. The background sweeper only runs when
// entries can actually expire.
func NewInMemoryCache[K comparable, V any](defaultTTL time.Duration) *InMemoryCache[K, V] {
	c := &InMemoryCache[K, V]{
		items:      make(map[K]*cacheItem[V]),
		defaultTTL: defaultTTL,
	}
	if defaultTTL > 0 {
		go c.startCleanup()
	}
	return c
}

// Get returns a live entry.
func (c *InMemoryCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[key]
	if !ok || item.expired(time.Now()) {
		var zero V
		return zero, false
	}
	return item.value, true
}

// Set stores value; ttl 0 falls back to the default TTL.
func (c *InMemoryCache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl == 0 {
		ttl = c.defaultTTL
	}
	item := &cacheItem[V]{value: value}
	if ttl > 0 {
		item.expiresAt = time.Now().Add(ttl)
	}
	c.items[key] = item
}

func (c *InMemoryCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *InMemoryCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*cacheItem[V])
}

func (c *InMemoryCache[K, V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *InMemoryCache[K, V]) startCleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.cleanup()
	}
}

func (c *InMemoryCache[K, V]) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, item := range c.items {
		if item.expired(now) {
			delete(c.items, key)
		}
	}
}

// Loader is a get-or-fetch front for a Cache. Concurrent misses for the same
// key share one fetch; failed fetches are not cached.
type Loader[K comparable, V any] struct {
	cache *InMemoryCache[K, V]
	group singleflight.Group
	ttl   time.Duration
}

// NewLoader creates a Loader whose entries live for ttl (0 = forever).
func NewLoader[K comparable, V any](ttl time.Duration) *Loader[K, V] {
	return &Loader[K, V]{
		cache: NewInMemoryCache[K, V](ttl),
		ttl:   ttl,
	}
}

// Get returns the cached value for key, calling fetch on a miss. A caller
// whose ctx is cancelled stops waiting; the shared fetch keeps running for
// the other waiters.
func (l *Loader[K, V]) Get(ctx context.Context, key K, fetch func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := l.cache.Get(key); ok {
		return v, nil
	}

	ch := l.group.DoChan(fmt.Sprint(key), func() (interface{}, error) {
		if v, ok := l.cache.Get(key); ok {
			return v, nil
		}
		v, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		l.cache.Set(key, v, l.ttl)
		return v, nil
	})

	var zero V
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	}
}

// Peek returns a cached value without fetching.
func (l *Loader[K, V]) Peek(key K) (V, bool) {
	return l.cache.Get(key)
}

// Forget drops key so the next Get fetches again.
func (l *Loader[K, V]) Forget(key K) {
	l.cache.Delete(key)
	l.group.Forget(fmt.Sprint(key))
}
