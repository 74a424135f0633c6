// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package imports caches textures imported from shared handles so that
// each handle is bound at most once per device generation.
//
// The compositor claims the same two slot handles per producer tick
// after tick; without the cache every tick would pay an import. With
// it, steady state performs zero imports: a handle is imported on
// first sight and served from the cache until its generation dies.
package imports

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/compositor/share"
)

// shardCount is the number of shards for reduced lock contention.
// A power of 2 so shard selection is a bitwise AND.
const shardCount = 16

const shardMask = shardCount - 1

// Key identifies one imported binding. The generation is part of the
// key so a recycled native ID from a later generation can never alias
// a stale entry.
type Key struct {
	Native     uint64
	Generation uint64
}

// Cache maps shared handles to their imported textures.
//
// Entries are evicted by generation, not by recency: the working set
// is a handful of slot textures, but every entry must die the moment
// its device generation does. Evicted textures are destroyed, which
// releases the importing context's binding only.
//
// Safe for concurrent use, though the compositor reads it from the
// presentation thread alone.
type Cache struct {
	shards [shardCount]*cacheShard

	hits    atomic.Uint64
	misses  atomic.Uint64
	evicted atomic.Uint64
}

type cacheShard struct {
	mu      sync.RWMutex
	entries map[Key]share.Texture
}

// New creates an empty import cache.
func New() *Cache {
	c := &Cache{}
	for i := range c.shards {
		c.shards[i] = &cacheShard{entries: make(map[Key]share.Texture)}
	}
	return c
}

// shardFor selects the shard for a key. Native IDs are already
// well distributed driver handles, so they hash by identity.
func (c *Cache) shardFor(k Key) *cacheShard {
	return c.shards[(k.Native^k.Generation)&shardMask]
}

// Get returns the cached texture for k, if any.
func (c *Cache) Get(k Key) (share.Texture, bool) {
	shard := c.shardFor(k)
	shard.mu.RLock()
	tex, ok := shard.entries[k]
	shard.mu.RUnlock()

	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return tex, ok
}

// Put stores an imported texture under k. If an entry already exists
// it is destroyed and replaced; a re-import of the same handle always
// wins.
func (c *Cache) Put(k Key, tex share.Texture) {
	shard := c.shardFor(k)
	shard.mu.Lock()
	if old, ok := shard.entries[k]; ok && old != tex {
		old.Destroy()
		c.evicted.Add(1)
	}
	shard.entries[k] = tex
	shard.mu.Unlock()
}

// Delete removes and destroys the entry for k, if present.
func (c *Cache) Delete(k Key) bool {
	shard := c.shardFor(k)
	shard.mu.Lock()
	tex, ok := shard.entries[k]
	if ok {
		delete(shard.entries, k)
	}
	shard.mu.Unlock()

	if ok {
		tex.Destroy()
		c.evicted.Add(1)
	}
	return ok
}

// DropStale removes and destroys every entry whose generation is older
// than current. Called once per device loss after the generation has
// been bumped; nothing imported under a dead generation may ever be
// served again.
func (c *Cache) DropStale(current uint64) int {
	dropped := 0
	for _, shard := range c.shards {
		shard.mu.Lock()
		for k, tex := range shard.entries {
			if k.Generation < current {
				tex.Destroy()
				delete(shard.entries, k)
				dropped++
			}
		}
		shard.mu.Unlock()
	}
	c.evicted.Add(uint64(dropped))
	return dropped
}

// Clear removes and destroys every entry. Called when the surface
// closes.
func (c *Cache) Clear() {
	for _, shard := range c.shards {
		shard.mu.Lock()
		for k, tex := range shard.entries {
			tex.Destroy()
			delete(shard.entries, k)
			c.evicted.Add(1)
		}
		shard.mu.Unlock()
	}
}

// Len returns the number of live entries across all shards.
func (c *Cache) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.entries)
		shard.mu.RUnlock()
	}
	return total
}

// Stats returns cache statistics.
func (c *Cache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Len:     c.Len(),
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate,
		Evicted: c.evicted.Load(),
	}
}

// Stats holds cache counters.
type Stats struct {
	Len     int
	Hits    uint64
	Misses  uint64
	HitRate float64
	Evicted uint64
}
