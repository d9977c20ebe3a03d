// SPDX-License-Identifier: MIT

// Package cache provides the TTL cache shared by the outbound clients.
// Values are stored as encoded bytes so the in-memory and Redis backends
// behave the same way.
package cache

import (
	"strings"
	"sync"
	"time"
)

// Cache is a byte cache with per-entry expiry. Implementations are safe
// for concurrent use.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
	// Invalidate removes every key starting with prefix; "" removes all.
	Invalidate(prefix string)
	Stats() CacheStats
}

// CacheStats are cumulative counters plus the current entry count.
type CacheStats struct {
	Hits        int64
	Misses      int64
	Sets        int64
	Evictions   int64
	CurrentSize int
}

type entry struct {
	value   []byte
	expires time.Time
}

// MemoryCache is a process-local Cache. Expired entries are dropped on
// read and by a periodic sweep.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]entry
	stats   CacheStats
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryCache returns a MemoryCache that sweeps expired entries every
// sweepInterval; a non-positive interval disables the sweep.
func NewMemoryCache(sweepInterval time.Duration) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]entry),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if sweepInterval > 0 {
		go c.sweepLoop(sweepInterval)
	}
	return c
}

func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expires) {
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	return append([]byte(nil), e.value...), true
}

func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) {
	e := entry{value: append([]byte(nil), value...)}

	c.mu.Lock()
	defer c.mu.Unlock()
	e.expires = c.now().Add(ttl)
	c.entries[key] = e
	c.stats.Sets++
}

func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *MemoryCache) Invalidate(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prefix == "" {
		clear(c.entries)
		return
	}
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

func (c *MemoryCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.CurrentSize = len(c.entries)
	return s
}

// Stop ends the background sweep. It is safe to call more than once.
func (c *MemoryCache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *MemoryCache) sweepLoop(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.deleteExpired()
		case <-c.stop:
			return
		}
	}
}

// deleteExpired drops expired entries and returns how many it removed.
func (c *MemoryCache) deleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for key, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, key)
			n++
		}
	}
	c.stats.Evictions += int64(n)
	return n
}

type noOpCache struct{}

// NewNoOpCache returns a Cache that stores nothing.
func NewNoOpCache() Cache { return noOpCache{} }

func (noOpCache) Get(string) ([]byte, bool)         { return nil, false }
func (noOpCache) Set(string, []byte, time.Duration) {}
func (noOpCache) Delete(string)                     {}
func (noOpCache) Invalidate(string)                 {}
func (noOpCache) Stats() CacheStats                 { return CacheStats{} }
