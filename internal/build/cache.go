package build

import (
	"sync"
	"sync/atomic"
	"time"
)

// CachedBundle pairs a bundle with the source modification time observed when
// it was built.
type CachedBundle struct {
	Result  *Result
	ModTime time.Time
}

// CacheStats reports cache activity since creation.
type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Sets    int64 `json:"sets"`
	Deletes int64 `json:"deletes"`
}

// BundleCache maps component names to their last successful bundle. An entry
// is only served when the caller's mtime equals the stored one exactly.
type BundleCache struct {
	entries map[string]CachedBundle
	mutex   sync.Mutex
	// Statistics tracking (atomic for thread safety)
	hits    int64
	misses  int64
	sets    int64
	deletes int64
}

// NewBundleCache creates an empty cache.
func NewBundleCache() *BundleCache {
	return &BundleCache{entries: make(map[string]CachedBundle)}
}

// Get returns the cached result for name if it was stored with exactly mtime.
func (c *BundleCache) Get(name string, mtime time.Time) (*Result, bool) {
	c.mutex.Lock()
	entry, exists := c.entries[name]
	c.mutex.Unlock()

	if !exists || !entry.ModTime.Equal(mtime) {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	atomic.AddInt64(&c.hits, 1)
	return entry.Result, true
}

// Set stores result for name, replacing any previous entry.
func (c *BundleCache) Set(name string, result *Result, mtime time.Time) {
	c.mutex.Lock()
	c.entries[name] = CachedBundle{Result: result, ModTime: mtime}
	c.mutex.Unlock()

	atomic.AddInt64(&c.sets, 1)
}

// Clear removes the named entries, or every entry when called without names.
func (c *BundleCache) Clear(names ...string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if len(names) == 0 {
		atomic.AddInt64(&c.deletes, int64(len(c.entries)))
		c.entries = make(map[string]CachedBundle)
		return
	}

	for _, name := range names {
		if _, exists := c.entries[name]; exists {
			delete(c.entries, name)
			atomic.AddInt64(&c.deletes, 1)
		}
	}
}

// Len returns the number of cached bundles.
func (c *BundleCache) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of cache counters.
func (c *BundleCache) Stats() CacheStats {
	return CacheStats{
		Entries: c.Len(),
		Hits:    atomic.LoadInt64(&c.hits),
		Misses:  atomic.LoadInt64(&c.misses),
		Sets:    atomic.LoadInt64(&c.sets),
		Deletes: atomic.LoadInt64(&c.deletes),
	}
}
