package cache

import (
	"strings"
	"sync"
	"time"
)

// MemoryConfig represents memory cache configuration
type MemoryConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	MaxEntries      int           `yaml:"max_entries"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// memoryItem represents an item in the memory cache
type memoryItem struct {
	value     []byte
	expiresAt time.Time
	storedAt  time.Time
}

// MemoryCache is an ephemeral per-process TTL cache.
type MemoryCache struct {
	mu     sync.Mutex
	items  map[string]memoryItem
	config MemoryConfig
	stats  Stats
	now    clock

	stopCh chan struct{}
	closed bool
}

// NewMemoryCache creates a new memory cache
func NewMemoryCache(config MemoryConfig) *MemoryCache {
	if config.TTL <= 0 {
		config.TTL = 5 * time.Minute
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 1000
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}

	c := &MemoryCache{
		items:  make(map[string]memoryItem),
		config: config,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}

	go c.cleanupExpired()

	return c
}

// Get retrieves a value from the cache
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, exists := c.items[key]
	if !exists || c.now().After(item.expiresAt) {
		if exists {
			delete(c.items, key)
			c.stats.Evictions++
		}
		c.stats.Misses++
		c.updateHitRate()
		return nil, false
	}

	c.stats.Hits++
	c.updateHitRate()

	result := make([]byte, len(item.value))
	copy(result, item.value)
	return result, true
}

// Set stores a value with expiry now + TTL
func (c *MemoryCache) Set(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.items) >= c.config.MaxEntries {
		if _, exists := c.items[key]; !exists {
			c.evictOldestLocked()
		}
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	now := c.now()
	c.items[key] = memoryItem{
		value:     stored,
		expiresAt: now.Add(c.config.TTL),
		storedAt:  now,
	}
}

// Delete removes a single entry
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Clear removes all entries carrying the library key prefix
func (c *MemoryCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.items {
		if strings.HasPrefix(key, KeyPrefix) {
			delete(c.items, key)
			c.stats.Evictions++
		}
	}
	return nil
}

// Stats returns cache statistics
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.stats
	stats.Entries = len(c.items)
	return stats
}

// Close stops the cleanup goroutine
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.stopCh)
	}
	return nil
}

func (c *MemoryCache) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time
	for key, item := range c.items {
		if oldestKey == "" || item.storedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = item.storedAt
		}
	}
	if oldestKey != "" {
		delete(c.items, oldestKey)
		c.stats.Evictions++
	}
}

func (c *MemoryCache) updateHitRate() {
	total := c.stats.Hits + c.stats.Misses
	if total > 0 {
		c.stats.HitRate = float64(c.stats.Hits) / float64(total)
	}
}

func (c *MemoryCache) cleanupExpired() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := c.now()
			for key, item := range c.items {
				if now.After(item.expiresAt) {
					delete(c.items, key)
					c.stats.Evictions++
				}
			}
			c.mu.Unlock()
		}
	}
}
