// Package cache stores decoded images keyed by file name, with the two-level
// locking protocol the pipeline relies on: the container lock guards
// structure (insert, erase, iterate) while per-entry reservations guard one
// entry's content across a read-modify-write window, so an edit never holds
// the container lock for the whole operation and eviction never rips an
// entry out from under an editor.
package cache

import (
	"sync"

	"image-viewer/internal/logging"
	"image-viewer/internal/media"
	"image-viewer/internal/metrics"
)

// Cache owns the decoded images inserted into it. Callers never take
// ownership back: Get and Reserve hand out borrowed references.
//
// Lock and Unlock expose the container lock; every other method must be
// called with it held. Compound sequences (check then insert, reserve then
// get) stay atomic by running inside one Lock/Unlock pair.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	img      *media.Image
	reserved bool
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]*entry)}
}

// Lock acquires the container lock.
func (c *Cache) Lock() { c.mu.Lock() }

// Unlock releases the container lock.
func (c *Cache) Unlock() { c.mu.Unlock() }

// Contains reports whether key is present.
func (c *Cache) Contains(key string) bool {
	_, ok := c.entries[key]
	return ok
}

// Insert stores img under key and returns true. If the key is already
// present it returns false and leaves the existing entry unchanged; the
// caller discards its duplicate and fetches the cached one, which makes the
// pipeline idempotent when two decodes for the same key race.
func (c *Cache) Insert(key string, img *media.Image) bool {
	if _, ok := c.entries[key]; ok {
		return false
	}
	c.entries[key] = &entry{img: img}
	metrics.CacheEntries.Set(float64(len(c.entries)))
	return true
}

// Get returns the image for key, or nil.
func (c *Cache) Get(key string) *media.Image {
	e, ok := c.entries[key]
	if !ok {
		metrics.CacheMissesTotal.Inc()
		return nil
	}
	metrics.CacheHitsTotal.Inc()
	return e.img
}

// Reserve marks the entry as exclusively held for mutation. It fails when
// the key is absent or the entry is already reserved. A successful Reserve
// must be paired with Release on every path, including errors.
func (c *Cache) Reserve(key string) bool {
	e, ok := c.entries[key]
	if !ok || e.reserved {
		metrics.CacheReserveFailuresTotal.Inc()
		return false
	}
	e.reserved = true
	return true
}

// Release drops a reservation. Releasing an absent or unreserved key is
// logged and otherwise a no-op.
func (c *Cache) Release(key string) {
	e, ok := c.entries[key]
	if !ok || !e.reserved {
		logging.Warn("cache: release of unreserved key %q", key)
		return
	}
	e.reserved = false
}

// TrimTo evicts every entry whose key is not in keep. Reserved entries are
// never evicted regardless of the keep-set.
func (c *Cache) TrimTo(keep []string) {
	keepSet := make(map[string]bool, len(keep))
	for _, k := range keep {
		keepSet[k] = true
	}
	for key, e := range c.entries {
		if keepSet[key] || e.reserved {
			continue
		}
		delete(c.entries, key)
		metrics.CacheEvictionsTotal.Inc()
	}
	metrics.CacheEntries.Set(float64(len(c.entries)))
}

// Clear evicts everything not currently reserved.
func (c *Cache) Clear() {
	for key, e := range c.entries {
		if e.reserved {
			continue
		}
		delete(c.entries, key)
		metrics.CacheEvictionsTotal.Inc()
	}
	metrics.CacheEntries.Set(float64(len(c.entries)))
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	return len(c.entries)
}
