// Package cache keeps recently used sequence listings in memory for the
// length of a run.
//
// Many candidates merge into the same few open sequences, so the matched
// listing is requested again and again. Listings wraps any listing source
// with a bounded LRU so each one is fetched and split once.
package cache

import (
	"container/list"
	"context"
	"sync"
)

// Stats contains cache statistics.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
	MaxSize   int   `json:"max_size"`
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// LRU is a thread-safe least recently used cache. A MaxSize of zero means
// unbounded.
type LRU[K comparable, V any] struct {
	mu      sync.Mutex
	maxSize int
	entries map[K]*list.Element
	order   *list.List
	stats   Stats
}

// NewLRU creates an LRU holding at most maxSize entries.
func NewLRU[K comparable, V any](maxSize int) *LRU[K, V] {
	if maxSize < 0 {
		maxSize = 0
	}
	return &LRU[K, V]{
		maxSize: maxSize,
		entries: make(map[K]*list.Element),
		order:   list.New(),
	}
}

// Get returns the value for key and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}
	c.order.MoveToFront(el)
	c.stats.Hits++
	return el.Value.(*entry[K, V]).value, true
}

// Put stores value under key, evicting the least recently used entry when full.
func (c *LRU[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*entry[K, V]).value = value
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&entry[K, V]{key: key, value: value})
	if c.maxSize > 0 && c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry[K, V]).key)
		c.stats.Evictions++
	}
}

// Len returns the number of entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns a snapshot of the counters.
func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Size = c.order.Len()
	s.MaxSize = c.maxSize
	return s
}

// Source returns the term listing of a sequence.
type Source interface {
	Listing(ctx context.Context, id string) ([]string, error)
}

// Listings memoises a Source. Errors are not remembered.
type Listings struct {
	next Source
	lru  *LRU[string, []string]
}

// NewListings wraps next with an LRU of maxSize listings.
func NewListings(next Source, maxSize int) *Listings {
	return &Listings{next: next, lru: NewLRU[string, []string](maxSize)}
}

// Listing returns the remembered listing for id or asks the wrapped source.
// Callers must not modify the returned slice.
func (l *Listings) Listing(ctx context.Context, id string) ([]string, error) {
	if lines, ok := l.lru.Get(id); ok {
		return lines, nil
	}
	lines, err := l.next.Listing(ctx, id)
	if err != nil {
		return nil, err
	}
	l.lru.Put(id, lines)
	return lines, nil
}

// Stats returns the memo counters.
func (l *Listings) Stats() Stats {
	return l.lru.Stats()
}
