// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// cache.go — bounded in-memory LRU cache used as the fast read tier in
// front of durable vector storage. Contents are best-effort only; the store
// must always be able to rebuild state from durable storage on a miss.

// Package cache provides a concurrent, bounded, exact-LRU in-memory cache.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AndrewDonelson/embedcore/internal/clock"
)

// Options configures a Cache.
type Options struct {
	// MaxEntries bounds the cache; 0 means unbounded.
	MaxEntries int
	// TTL expires entries after the given duration; 0 disables expiry.
	TTL time.Duration
	// Clock drives TTL checks; defaults to the system clock.
	Clock clock.Clock
	// OnEvict, if set, is called for every entry removed by capacity
	// eviction (not by Delete or expiry). It runs with the cache lock
	// held and must not call back into the cache.
	OnEvict func(key string, value any)
}

type entry struct {
	key       string
	value     any
	expiresAt time.Time
	elem      *list.Element
}

// Cache is a mutex-guarded LRU cache. A single lock keeps recency order
// exact: the entry evicted at capacity is always the globally
// least-recently-used one.
type Cache struct {
	mu         sync.Mutex
	items      map[string]*entry
	order      *list.List // front = most recently used
	maxEntries int
	ttl        time.Duration
	clock      clock.Clock
	onEvict    func(key string, value any)
	hits       atomic.Int64
	misses     atomic.Int64
}

// New creates a Cache from opts.
func New(opts Options) *Cache {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	return &Cache{
		items:      make(map[string]*entry),
		order:      list.New(),
		maxEntries: opts.MaxEntries,
		ttl:        opts.TTL,
		clock:      opts.Clock,
		onEvict:    opts.OnEvict,
	}
}

// Get retrieves a value and marks it most recently used.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	if !e.expiresAt.IsZero() && c.clock.Now().After(e.expiresAt) {
		c.remove(e, false)
		c.misses.Add(1)
		return nil, false
	}
	c.order.MoveToFront(e.elem)
	c.hits.Add(1)
	return e.value, true
}

// Set stores value under key. When the cache is at capacity the
// least-recently-used entry is evicted first.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = c.clock.Now().Add(c.ttl)
	}

	if e, ok := c.items[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		c.order.MoveToFront(e.elem)
		return
	}

	if c.maxEntries > 0 && len(c.items) >= c.maxEntries {
		if back := c.order.Back(); back != nil {
			c.remove(back.Value.(*entry), true)
		}
	}

	e := &entry{key: key, value: value, expiresAt: expiresAt}
	e.elem = c.order.PushFront(e)
	c.items[key] = e
}

// Delete removes a key from the cache.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok {
		c.remove(e, false)
	}
}

// Flush removes all entries.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*entry)
	c.order.Init()
}

// Stats holds hit/miss/entry counts.
type Stats struct {
	Hits    int64
	Misses  int64
	Entries int64
}

// Stats returns current statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	entries := int64(len(c.items))
	c.mu.Unlock()
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Entries: entries}
}

// remove must be called with c.mu held.
func (c *Cache) remove(e *entry, evicted bool) {
	delete(c.items, e.key)
	c.order.Remove(e.elem)
	if evicted && c.onEvict != nil {
		c.onEvict(e.key, e.value)
	}
}
