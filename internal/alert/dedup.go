// Package alert distributes safety alerts to real-time subscriber rooms and
// keeps the gateway's upstream connection alive.
package alert

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DedupConfig controls the delivery dedup cache.
type DedupConfig struct {
	// TTL is how long a delivery key suppresses repeats.
	TTL time.Duration
	// MaxEntries caps memory. When full, the oldest entries are evicted
	// first; eviction can re-open a key before its TTL expires, trading
	// a possible duplicate for bounded memory.
	MaxEntries int
	// CleanupInterval is how often expired entries are swept.
	CleanupInterval time.Duration
}

// DefaultDedupConfig returns production defaults.
func DefaultDedupConfig() DedupConfig {
	return DedupConfig{
		TTL:             5 * time.Minute,
		MaxEntries:      10000,
		CleanupInterval: 30 * time.Second,
	}
}

type dedupEntry struct {
	seenAt time.Time
}

// DedupCache suppresses duplicate alert deliveries. Keys are per delivery,
// so the same alert can still reach distinct rooms.
type DedupCache struct {
	mu      sync.Mutex
	entries map[string]dedupEntry
	config  DedupConfig
	logger  *zap.Logger

	// now is swappable for tests.
	now func() time.Time

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	done chan struct{}
	once sync.Once
}

// NewDedupCache creates the cache and starts its sweep goroutine.
func NewDedupCache(cfg DedupConfig, logger *zap.Logger) *DedupCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultDedupConfig().TTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultDedupConfig().MaxEntries
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultDedupConfig().CleanupInterval
	}

	c := &DedupCache{
		entries: make(map[string]dedupEntry),
		config:  cfg,
		logger:  logger,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Seen records key and reports whether it was already present and fresh.
// The first call for a key returns false; repeats within the TTL return true.
func (c *DedupCache) Seen(key string) bool {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok && now.Sub(entry.seenAt) < c.config.TTL {
		c.hits.Add(1)
		return true
	}

	if len(c.entries) >= c.config.MaxEntries {
		c.evictOldestLocked()
	}

	c.entries[key] = dedupEntry{seenAt: now}
	c.misses.Add(1)
	return false
}

// evictOldestLocked removes the entry with the oldest timestamp. Caller
// holds the mutex.
func (c *DedupCache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.seenAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.seenAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.evictions.Add(1)
	}
}

func (c *DedupCache) sweepLoop() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

func (c *DedupCache) sweep() {
	now := c.now()

	c.mu.Lock()
	removed := 0
	for key, entry := range c.entries {
		if now.Sub(entry.seenAt) >= c.config.TTL {
			delete(c.entries, key)
			removed++
		}
	}
	remaining := len(c.entries)
	c.mu.Unlock()

	if removed > 0 {
		c.logger.Debug("dedup cache swept",
			zap.Int("removed", removed),
			zap.Int("remaining", remaining))
	}
}

// Len returns the current number of cached keys.
func (c *DedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// DedupStats holds cache counters.
type DedupStats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// Stats returns a snapshot of cache counters.
func (c *DedupCache) Stats() DedupStats {
	return DedupStats{
		Entries:   c.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// Close stops the sweep goroutine.
func (c *DedupCache) Close() {
	c.once.Do(func() { close(c.done) })
}
