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
	"fmt"
	"sync"
	"testing"
	"time"
)

// TestResultCache_PutThenGet tests that a freshly stored value is
// returned for the same key.
func TestResultCache_PutThenGet(t *testing.T) {
	c := NewResultCache[string](10)

	c.Put("search:jacket:1:20", "payload", time.Minute)

	got, ok := c.Get("search:jacket:1:20")
	if !ok {
		t.Fatal("Expected a hit immediately after Put")
	}
	if got != "payload" {
		t.Errorf("Expected %q, got %q", "payload", got)
	}
}

// TestResultCache_MissOnUnknownKey tests that an absent key reports a
// miss.
func TestResultCache_MissOnUnknownKey(t *testing.T) {
	c := NewResultCache[string](10)

	if _, ok := c.Get("nope"); ok {
		t.Error("Expected a miss for an unknown key")
	}
}

// TestResultCache_ExpiryWithoutDelete tests that a read past the TTL is
// a miss even though the entry was never explicitly deleted, and that
// the expired entry is evicted by the read.
func TestResultCache_ExpiryWithoutDelete(t *testing.T) {
	c := NewResultCache[int](10)
	clock := newFakeClock()
	c.now = clock.Now

	c.Put("k", 42, 30*time.Second)
	clock.Advance(31 * time.Second)

	if _, ok := c.Get("k"); ok {
		t.Fatal("Expected a miss after the TTL elapsed")
	}
	if c.Len() != 0 {
		t.Errorf("Expired entry should be evicted on read, len = %d", c.Len())
	}
}

// TestResultCache_NonPositiveTTLStoresNothing tests that a zero or
// negative TTL is a no-op.
func TestResultCache_NonPositiveTTLStoresNothing(t *testing.T) {
	c := NewResultCache[int](10)

	c.Put("k", 1, 0)
	c.Put("k2", 2, -time.Second)

	if c.Len() != 0 {
		t.Errorf("Expected empty cache, len = %d", c.Len())
	}
}

// TestResultCache_SweepOverSizeBound tests that a Put on a full table
// sweeps expired entries to bound memory.
func TestResultCache_SweepOverSizeBound(t *testing.T) {
	c := NewResultCache[int](5)
	clock := newFakeClock()
	c.now = clock.Now

	for i := 0; i < 5; i++ {
		c.Put(fmt.Sprintf("old-%d", i), i, 10*time.Second)
	}
	clock.Advance(11 * time.Second)

	// The table is at capacity with all-expired entries; this Put must
	// trigger the sweep before inserting.
	c.Put("fresh", 99, 10*time.Second)

	if c.Len() != 1 {
		t.Errorf("Expected only the fresh entry after sweep, len = %d", c.Len())
	}
	if got, ok := c.Get("fresh"); !ok || got != 99 {
		t.Errorf("Expected fresh entry to survive, got %d (hit=%v)", got, ok)
	}
}

// TestResultCache_ConcurrentAccess exercises mixed reads and writes under
// the race detector.
func TestResultCache_ConcurrentAccess(t *testing.T) {
	c := NewResultCache[int](100)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("k-%d", (n+j)%50)
				c.Put(key, j, time.Minute)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()
}
