package marketdata

import (
	"context"
	"sync"
	"time"
)

const (
	defaultCacheTTL      = time.Minute
	defaultCacheStaleTTL = 10 * time.Minute
	defaultMaxEntries    = 500
)

// CacheState classifies a cache lookup.
type CacheState int

const (
	CacheMiss CacheState = iota
	CacheFresh
	CacheStale
)

func (s CacheState) String() string {
	switch s {
	case CacheFresh:
		return "fresh"
	case CacheStale:
		return "stale"
	default:
		return "miss"
	}
}

// CacheEntry is a cached chart plus its bookkeeping. Charts handed out by the
// cache are shared and must be treated as read-only.
type CacheEntry struct {
	Chart     *Chart
	Source    string
	Hash      string
	FetchedAt time.Time // when the payload last changed upstream
	UpdatedAt time.Time // last time the payload was confirmed, drives freshness
}

// Cache is the in-memory chart cache: entries are fresh within TTL, served as
// stale fallbacks until StaleTTL, and dropped afterwards.
type Cache struct {
	ttl        time.Duration
	staleTTL   time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.RWMutex
	entries map[string]*CacheEntry
}

// CacheOptions configures a Cache.
type CacheOptions struct {
	TTL        time.Duration
	StaleTTL   time.Duration
	MaxEntries int
	Now        func() time.Time
}

// NewCache constructs a cache, filling unset options with defaults.
func NewCache(opts CacheOptions) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = defaultCacheTTL
	}
	if opts.StaleTTL <= 0 {
		opts.StaleTTL = defaultCacheStaleTTL
	}
	if opts.StaleTTL < opts.TTL {
		opts.StaleTTL = opts.TTL
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = defaultMaxEntries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		ttl:        opts.TTL,
		staleTTL:   opts.StaleTTL,
		maxEntries: opts.MaxEntries,
		now:        opts.Now,
		entries:    make(map[string]*CacheEntry),
	}
}

// TTL returns the freshness window.
func (c *Cache) TTL() time.Duration { return c.ttl }

// StaleTTL returns the stale-fallback window.
func (c *Cache) StaleTTL() time.Duration { return c.staleTTL }

// Get looks up key and classifies the entry by age. Expired entries are evicted.
func (c *Cache) Get(key string) (CacheEntry, CacheState) {
	now := c.now()
	c.mu.RLock()
	entry, ok := c.entries[key]
	if !ok {
		c.mu.RUnlock()
		return CacheEntry{}, CacheMiss
	}
	snapshot := *entry
	c.mu.RUnlock()
	state := c.classify(&snapshot, now)
	if state == CacheMiss {
		c.mu.Lock()
		if current, ok := c.entries[key]; ok && c.classify(current, now) == CacheMiss {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return CacheEntry{}, CacheMiss
	}
	return snapshot, state
}

// LastHash returns the hash of the entry under key, if any, regardless of age.
func (c *Cache) LastHash(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	return entry.Hash, true
}

// Put stores chart under key. When the content hash matches the current entry
// only the timestamp is refreshed and changed is false.
func (c *Cache) Put(key string, chart *Chart, source string) (hash string, changed bool, err error) {
	hash, err = ContentHash(chart)
	if err != nil {
		return "", false, err
	}
	now := c.now()
	changed = c.Store(key, CacheEntry{
		Chart:     chart,
		Source:    source,
		Hash:      hash,
		FetchedAt: now,
		UpdatedAt: now,
	})
	return hash, changed, nil
}

// Store inserts a pre-hashed entry, keeping the existing payload when the hash
// is unchanged.
func (c *Cache) Store(key string, entry CacheEntry) bool {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = c.now()
	}
	if entry.FetchedAt.IsZero() {
		entry.FetchedAt = entry.UpdatedAt
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.entries[key]; ok && current.Hash == entry.Hash && entry.Hash != "" {
		if entry.UpdatedAt.After(current.UpdatedAt) {
			current.UpdatedAt = entry.UpdatedAt
		}
		return false
	}
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	stored := entry
	c.entries[key] = &stored
	return true
}

// Touch refreshes the timestamp of the entry under key when its hash matches.
func (c *Cache) Touch(key, hash string, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || entry.Hash != hash {
		return false
	}
	if at.After(entry.UpdatedAt) {
		entry.UpdatedAt = at
	}
	return true
}

// Delete removes key from the cache.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of entries currently held.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep drops entries older than the stale window and returns how many were removed.
func (c *Cache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, entry := range c.entries {
		if c.classify(entry, now) == CacheMiss {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Run sweeps the cache on every interval tick until ctx is cancelled.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = c.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

func (c *Cache) classify(entry *CacheEntry, now time.Time) CacheState {
	age := now.Sub(entry.UpdatedAt)
	switch {
	case age <= c.ttl:
		return CacheFresh
	case age <= c.staleTTL:
		return CacheStale
	default:
		return CacheMiss
	}
}

func (c *Cache) evictOldestLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for key, entry := range c.entries {
		if oldestKey == "" || entry.UpdatedAt.Before(oldestAt) {
			oldestKey, oldestAt = key, entry.UpdatedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
