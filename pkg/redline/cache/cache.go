// Package cache is a byte-bounded LRU with per-entry TTLs, used to
// memoize whole suggestion computations by request fingerprint.
package cache

import (
	"container/list"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config bounds the cache.
type Config struct {
	// MaxBytes caps the summed size of keys and values. Oversized
	// values are not cached at all.
	// Default: 20 MiB
	MaxBytes int64

	// TTL applied to entries stored without an explicit one.
	// Default: 1h
	TTL time.Duration

	// SweepInterval between background scans for expired entries.
	// Zero disables the sweeper; expired entries still die lazily on
	// access.
	// Default: 5m
	SweepInterval time.Duration
}

// DefaultConfig returns the stock cache bounds.
func DefaultConfig() Config {
	return Config{
		MaxBytes:      20 << 20,
		TTL:           time.Hour,
		SweepInterval: 5 * time.Minute,
	}
}

type entry struct {
	key          string
	value        []byte
	size         int64
	expiry       time.Time
	hits         int64
	lastAccessed time.Time
	elem         *list.Element
}

// Cache is a thread-safe LRU keyed by string. Values are opaque bytes;
// entries are replaced whole, never patched in place.
type Cache struct {
	cfg Config
	log *zap.Logger

	mu    sync.Mutex
	items map[string]*entry
	lru   *list.List // front = most recent
	size  int64

	hits      int64
	misses    int64
	evictions int64

	done      chan struct{}
	closeOnce sync.Once
}

// New builds a cache and starts its sweeper when SweepInterval > 0.
// Call Close to stop the sweeper.
func New(cfg Config, log *zap.Logger) *Cache {
	def := DefaultConfig()
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if log == nil {
		log = zap.NewNop()
	}

	c := &Cache{
		cfg:   cfg,
		log:   log,
		items: make(map[string]*entry),
		lru:   list.New(),
		done:  make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		go c.sweep(cfg.SweepInterval)
	}
	return c
}

// Get returns a copy of the value under key. Expired entries count as
// misses and are removed on the spot.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	now := time.Now()
	if now.After(e.expiry) {
		c.removeLocked(e)
		c.misses++
		return nil, false
	}

	c.lru.MoveToFront(e.elem)
	e.hits++
	e.lastAccessed = now
	c.hits++

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true
}

// Set stores value under key, evicting least-recently-used entries
// until it fits. A ttl <= 0 means the configured default. Values too
// large to ever fit are skipped.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.cfg.TTL
	}
	size := int64(len(key) + len(value))

	c.mu.Lock()
	defer c.mu.Unlock()

	if size > c.cfg.MaxBytes {
		c.log.Warn("value exceeds cache capacity, not cached",
			zap.String("key", key),
			zap.Int64("size", size),
			zap.Int64("max_bytes", c.cfg.MaxBytes))
		return
	}

	if old, ok := c.items[key]; ok {
		c.removeLocked(old)
	}
	for c.size+size > c.cfg.MaxBytes && c.lru.Len() > 0 {
		oldest := c.lru.Back().Value.(*entry)
		c.removeLocked(oldest)
		c.evictions++
	}

	now := time.Now()
	e := &entry{
		key:          key,
		value:        append([]byte(nil), value...),
		size:         size,
		expiry:       now.Add(ttl),
		lastAccessed: now,
	}
	e.elem = c.lru.PushFront(e)
	c.items[key] = e
	c.size += size
}

// Delete removes key if present. Used when a cached value turns out to
// be undecodable; the caller recomputes.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok {
		c.removeLocked(e)
	}
}

// Purge empties the cache. Counters survive.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*entry)
	c.lru.Init()
	c.size = 0
}

// EntryInfo describes one cached entry without disturbing its LRU
// position.
type EntryInfo struct {
	Key          string
	Size         int64
	Expiry       time.Time
	Hits         int64
	LastAccessed time.Time
}

// Inspect reports entry metadata, or false when key is absent or
// expired. Does not count as an access.
func (c *Cache) Inspect(key string) (EntryInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok || time.Now().After(e.expiry) {
		return EntryInfo{}, false
	}
	return EntryInfo{
		Key:          e.key,
		Size:         e.size,
		Expiry:       e.expiry,
		Hits:         e.hits,
		LastAccessed: e.lastAccessed,
	}, true
}

// Stats is a point-in-time counter snapshot.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Items     int     `json:"items"`
	Bytes     int64   `json:"bytes"`
	HitRate   float64 `json:"hitRate"`
}

// Stats returns cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	rate := 0.0
	if total := c.hits + c.misses; total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Items:     len(c.items),
		Bytes:     c.size,
		HitRate:   rate,
	}
}

// Close stops the background sweeper. Safe to call more than once.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Cache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if n := c.removeExpired(); n > 0 {
				c.log.Debug("swept expired cache entries", zap.Int("count", n))
			}
		}
	}
}

func (c *Cache) removeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var expired []*entry
	for _, e := range c.items {
		if now.After(e.expiry) {
			expired = append(expired, e)
		}
	}
	for _, e := range expired {
		c.removeLocked(e)
	}
	return len(expired)
}

// removeLocked unlinks an entry. Callers hold c.mu.
func (c *Cache) removeLocked(e *entry) {
	if e.elem != nil {
		c.lru.Remove(e.elem)
	}
	delete(c.items, e.key)
	c.size -= e.size
}
