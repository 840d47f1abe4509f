// Package cache is the File Cache: a normalized-path -> decoded content
// cache with combined LRU+size+TTL eviction, watcher-based invalidation,
// and coalesced concurrent loads. It generalizes the teacher's
// modify-time/size hash manifest (internal/world/cache.go) into a full
// content cache, since this engine's components consume cached text, not
// just a change-detection hash.
package cache

import (
	"container/list"
	"path/filepath"
	"sync"
	"time"

	"fileops/internal/fsservice"
	"fileops/internal/logging"
)

// Entry is one cached file's content and metadata.
type Entry struct {
	Path       string
	Content    string
	Binary     bool
	Size       int64
	InsertedAt time.Time
}

// Stats tallies cache activity since the last Clear.
type Stats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	CurrentSize int64
}

// Config mirrors config.CacheConfig without importing internal/config, to
// keep internal/cache free of a dependency cycle risk as the config
// package grows.
type Config struct {
	MaxSizeBytes   int64
	MaxEntries     int
	TTLMs          int64
	EnableWatching bool
}

type node struct {
	key   string
	entry Entry
}

// Cache is the File Cache.
type Cache struct {
	cfg Config
	fs  *fsservice.Service

	mu       sync.Mutex
	items    map[string]*list.Element
	order    *list.List // front = most recently used
	size     int64
	stats    Stats
	inFlight map[string]*loadGroup
}

type loadGroup struct {
	done chan struct{}
	res  fsservice.ReadResult
}

// New creates a Cache backed by fs for cache-miss loads.
func New(cfg Config, fs *fsservice.Service) *Cache {
	return &Cache{
		cfg:      cfg,
		fs:       fs,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		inFlight: make(map[string]*loadGroup),
	}
}

func normalize(path string) string {
	return filepath.Clean(path)
}

// Get returns the cached entry for path, loading it via the File System
// Service on a miss or expiry. Errors are never cached: a failed load can
// always be retried.
func (c *Cache) Get(path string) (Entry, error) {
	key := normalize(path)

	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		entry := el.Value.(*node).entry
		if c.fresh(entry) {
			c.order.MoveToFront(el)
			c.stats.Hits++
			c.mu.Unlock()
			return entry, nil
		}
		// Expired: treat as a miss, evict now.
		c.removeLocked(el)
		c.stats.Evictions++
	}
	c.mu.Unlock()

	return c.load(key)
}

func (c *Cache) fresh(e Entry) bool {
	if c.cfg.TTLMs <= 0 {
		return true
	}
	return time.Since(e.InsertedAt) < time.Duration(c.cfg.TTLMs)*time.Millisecond
}

// load performs a coalesced disk read: concurrent Get calls for the same
// key share one fsservice.ReadMany call.
func (c *Cache) load(key string) (Entry, error) {
	c.mu.Lock()
	if g, ok := c.inFlight[key]; ok {
		c.mu.Unlock()
		<-g.done
		if g.res.Error != nil {
			return Entry{}, g.res.Error
		}
		return c.entryFromResult(key, g.res), nil
	}

	g := &loadGroup{done: make(chan struct{})}
	c.inFlight[key] = g
	c.mu.Unlock()

	results := c.fs.ReadMany([]string{key})
	g.res = results[key]
	close(g.done)

	c.mu.Lock()
	delete(c.inFlight, key)
	c.mu.Unlock()

	if g.res.Error != nil {
		c.mu.Lock()
		c.stats.Misses++
		c.mu.Unlock()
		return Entry{}, g.res.Error
	}

	entry := c.entryFromResult(key, g.res)

	c.mu.Lock()
	c.stats.Misses++
	c.insertLocked(key, entry)
	c.mu.Unlock()

	if c.cfg.EnableWatching {
		c.watch(key)
	}

	return entry, nil
}

func (c *Cache) entryFromResult(key string, res fsservice.ReadResult) Entry {
	return Entry{
		Path:       key,
		Content:    res.Text,
		Binary:     res.Binary,
		Size:       int64(len(res.Text)),
		InsertedAt: time.Now(),
	}
}

// insertLocked adds or replaces an entry, then evicts until both the size
// and entry-count caps are satisfied. Caller holds c.mu.
func (c *Cache) insertLocked(key string, entry Entry) {
	if c.cfg.MaxSizeBytes > 0 && entry.Size > c.cfg.MaxSizeBytes {
		// Does not fit even alone; never cache it (invariant (a)).
		return
	}

	if el, ok := c.items[key]; ok {
		c.size -= el.Value.(*node).entry.Size
		el.Value.(*node).entry = entry
		c.order.MoveToFront(el)
	} else {
		el := c.order.PushFront(&node{key: key, entry: entry})
		c.items[key] = el
	}
	c.size += entry.Size
	c.stats.CurrentSize = c.size

	c.evictLocked()
}

func (c *Cache) evictLocked() {
	for c.overCapacityLocked() {
		back := c.order.Back()
		if back == nil {
			return
		}
		key := back.Value.(*node).key
		c.removeLocked(back)
		c.stats.Evictions++
		logging.AuditWithRequest("").Log(logging.AuditEvent{
			EventType: logging.AuditCacheEviction,
			Target:    key,
			Success:   true,
		})
	}
	c.stats.CurrentSize = c.size
}

func (c *Cache) overCapacityLocked() bool {
	if c.cfg.MaxEntries > 0 && len(c.items) > c.cfg.MaxEntries {
		return true
	}
	if c.cfg.MaxSizeBytes > 0 && c.size > c.cfg.MaxSizeBytes {
		return true
	}
	return false
}

func (c *Cache) removeLocked(el *list.Element) {
	n := el.Value.(*node)
	delete(c.items, n.key)
	c.order.Remove(el)
	c.size -= n.entry.Size
	if c.cfg.EnableWatching {
		c.fs.Unwatch(n.key)
	}
}

// watch subscribes for changes to key. The fsservice callback fires with
// the watcher's resolved absolute path, not key, so key is captured by
// closure and used directly as the cache's own lookup key.
func (c *Cache) watch(key string) {
	c.fs.Watch(key, func(path string) {
		logging.Get(logging.CategoryCache).Debug("invalidating %s on watch event", path)
		c.Invalidate(key)
	})
}

// GetMany fans Get out over paths concurrently.
func (c *Cache) GetMany(paths []string) map[string]EntryOrError {
	out := make(map[string]EntryOrError, len(paths))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, p := range paths {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := c.Get(p)
			mu.Lock()
			out[p] = EntryOrError{Entry: entry, Err: err}
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}

// EntryOrError is one GetMany result.
type EntryOrError struct {
	Entry Entry
	Err   error
}

// Invalidate evicts path's entry, if present. The next Get issues a disk
// read.
func (c *Cache) Invalidate(path string) {
	key := normalize(path)
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
		c.stats.Evictions++
		c.stats.CurrentSize = c.size
	}
}

// InvalidateMany evicts a batch of paths.
func (c *Cache) InvalidateMany(paths []string) {
	for _, p := range paths {
		c.Invalidate(p)
	}
}

// Clear evicts every entry and resets stats.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, el := range c.items {
		if c.cfg.EnableWatching {
			c.fs.Unwatch(el.Value.(*node).key)
		}
	}
	c.items = make(map[string]*list.Element)
	c.order = list.New()
	c.size = 0
	c.stats = Stats{}
}

// HandleMemoryPressure evicts least-recently-used entries until the cache
// is at or below targetBytes, returning the number of bytes reclaimed.
func (c *Cache) HandleMemoryPressure(targetBytes int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := c.size
	for c.size > targetBytes {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.removeLocked(back)
		c.stats.Evictions++
	}
	c.stats.CurrentSize = c.size
	return before - c.size
}

// GetStats returns a snapshot of cache activity counters.
func (c *Cache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
