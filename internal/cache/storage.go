package cache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// filePrefix marks files written by this library inside the cache
// directory; the directory may be shared with unrelated code.
const filePrefix = "sitekit-cache-"

// StorageConfig represents durable cache configuration
type StorageConfig struct {
	Directory       string        `yaml:"directory"`
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// storageEntry is the on-disk representation of one cache entry
type storageEntry struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	StoredAt  time.Time `json:"stored_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StorageCache is a durable file-backed TTL cache surviving process
// restarts. Entries live as individual prefix-named JSON files so a sweep
// can recognize the library's own entries.
type StorageCache struct {
	mu     sync.Mutex
	config StorageConfig
	stats  Stats
	now    clock

	stopCh chan struct{}
	closed bool
}

// NewStorageCache creates a new durable cache rooted at the configured
// directory, creating it if absent.
func NewStorageCache(config StorageConfig) (*StorageCache, error) {
	if config.Directory == "" {
		return nil, fmt.Errorf("storage cache requires a directory")
	}
	if config.TTL <= 0 {
		config.TTL = 5 * time.Minute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}

	if err := os.MkdirAll(config.Directory, 0750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	c := &StorageCache{
		config: config,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}

	go c.cleanupExpired()

	return c, nil
}

// Get retrieves a value from the cache
func (c *StorageCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.pathFor(key))
	if err != nil {
		c.stats.Misses++
		c.updateHitRate()
		return nil, false
	}

	var entry storageEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Key != key || c.now().After(entry.ExpiresAt) {
		_ = os.Remove(c.pathFor(key))
		c.stats.Misses++
		c.updateHitRate()
		return nil, false
	}

	c.stats.Hits++
	c.updateHitRate()
	// entry.Value is freshly decoded per read and aliases nothing, so the
	// caller gets a private slice here just as with the memory tier
	return entry.Value, true
}

// Set stores a value with expiry now + TTL
func (c *StorageCache) Set(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entry := storageEntry{
		Key:       key,
		Value:     value,
		StoredAt:  now,
		ExpiresAt: now.Add(c.config.TTL),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	// Best effort: a failed write is a cache miss later, not an error now
	_ = os.WriteFile(c.pathFor(key), data, 0600)
}

// Delete removes a single entry
func (c *StorageCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = os.Remove(c.pathFor(key))
}

// Clear sweeps the cache directory, deleting only files carrying this
// library's file prefix.
func (c *StorageCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.config.Directory)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), filePrefix) {
			continue
		}
		if err := os.Remove(filepath.Join(c.config.Directory, entry.Name())); err == nil {
			c.stats.Evictions++
		}
	}
	return nil
}

// Stats returns cache statistics
func (c *StorageCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	entries, err := os.ReadDir(c.config.Directory)
	if err == nil {
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasPrefix(entry.Name(), filePrefix) {
				stats.Entries++
			}
		}
	}
	return stats
}

// Close stops the cleanup goroutine
func (c *StorageCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.stopCh)
	}
	return nil
}

func (c *StorageCache) pathFor(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.config.Directory, fmt.Sprintf("%s%x.json", filePrefix, sum[:16]))
}

func (c *StorageCache) updateHitRate() {
	total := c.stats.Hits + c.stats.Misses
	if total > 0 {
		c.stats.HitRate = float64(c.stats.Hits) / float64(total)
	}
}

func (c *StorageCache) cleanupExpired() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sweepExpired()
		}
	}
}

func (c *StorageCache) sweepExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.config.Directory)
	if err != nil {
		return
	}
	now := c.now()
	for _, dirEntry := range entries {
		if dirEntry.IsDir() || !strings.HasPrefix(dirEntry.Name(), filePrefix) {
			continue
		}
		path := filepath.Join(c.config.Directory, dirEntry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var entry storageEntry
		if err := json.Unmarshal(data, &entry); err != nil || now.After(entry.ExpiresAt) {
			if os.Remove(path) == nil {
				c.stats.Evictions++
			}
		}
	}
}
