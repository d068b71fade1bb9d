// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resilience

import (
	"sync"
	"time"
)

// DefaultCacheMaxEntries bounds cache memory before an on-write sweep of
// expired entries runs.
const DefaultCacheMaxEntries = 1000

// cacheEntry is one stored value with its expiry.
type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// ResultCache is a short-TTL key/value cache that avoids redundant
// upstream calls for identical lookups.
//
// # Description
//
// This is not a correctness mechanism: callers must tolerate a miss at
// any time. Reads past expiry count as a miss and evict the entry, so a
// stale value is never served past its TTL. When the table exceeds
// MaxEntries, a Put triggers an opportunistic sweep of expired entries.
//
// # Thread Safety
//
// ResultCache is safe for concurrent use. One instance is shared by all
// resolution requests against the same upstream endpoint family.
type ResultCache[V any] struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry[V]
	maxEntries int

	now func() time.Time
}

// NewResultCache creates an empty cache. maxEntries <= 0 falls back to
// DefaultCacheMaxEntries.
func NewResultCache[V any](maxEntries int) *ResultCache[V] {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	return &ResultCache[V]{
		entries:    make(map[string]cacheEntry[V]),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the cached value for key, or ok=false on a miss. An entry
// whose TTL has elapsed is evicted and reported as a miss.
func (c *ResultCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return entry.value, true
}

// Put stores value under key for ttl. A non-positive ttl stores nothing.
func (c *ResultCache[V]) Put(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.sweep()
	}
	c.entries[key] = cacheEntry[V]{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
}

// Len returns the number of stored entries, expired or not.
func (c *ResultCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// sweep removes all expired entries. Callers must hold c.mu.
func (c *ResultCache[V]) sweep() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}
