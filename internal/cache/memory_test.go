package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache(MemoryConfig{TTL: time.Minute})
	defer c.Close()

	key := KeyPrefix + "https://x.example.com/a"
	c.Set(key, []byte("payload"))

	got, ok := c.Get(key)
	if !ok {
		t.Fatal("Expected cache hit")
	}
	if string(got) != "payload" {
		t.Errorf("Expected payload, got %s", got)
	}

	if _, ok := c.Get(KeyPrefix + "https://x.example.com/other"); ok {
		t.Error("Expected miss for unknown key")
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache(MemoryConfig{TTL: time.Minute})
	defer c.Close()

	base := time.Now()
	c.now = func() time.Time { return base }

	key := KeyPrefix + "https://x.example.com/a"
	c.Set(key, []byte("payload"))

	c.now = func() time.Time { return base.Add(59 * time.Second) }
	if _, ok := c.Get(key); !ok {
		t.Error("Entry should still be live before TTL")
	}

	c.now = func() time.Time { return base.Add(61 * time.Second) }
	if _, ok := c.Get(key); ok {
		t.Error("Entry should have expired after TTL")
	}

	stats := c.Stats()
	if stats.Evictions != 1 {
		t.Errorf("Expected 1 eviction, got %d", stats.Evictions)
	}
}

func TestMemoryCacheDelete(t *testing.T) {
	c := NewMemoryCache(MemoryConfig{TTL: time.Minute})
	defer c.Close()

	key := KeyPrefix + "https://x.example.com/a"
	c.Set(key, []byte("payload"))
	c.Delete(key)

	if _, ok := c.Get(key); ok {
		t.Error("Expected miss after Delete")
	}
}

func TestMemoryCacheClearSweepsOnlyPrefix(t *testing.T) {
	c := NewMemoryCache(MemoryConfig{TTL: time.Minute})
	defer c.Close()

	c.Set(KeyPrefix+"https://x.example.com/a", []byte("ours"))
	c.Set("unrelated-key", []byte("theirs"))

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	if _, ok := c.Get(KeyPrefix + "https://x.example.com/a"); ok {
		t.Error("Prefixed entry should be swept")
	}
	if _, ok := c.Get("unrelated-key"); !ok {
		t.Error("Unprefixed entry should survive Clear")
	}
}

func TestMemoryCacheMaxEntries(t *testing.T) {
	c := NewMemoryCache(MemoryConfig{TTL: time.Minute, MaxEntries: 3})
	defer c.Close()

	base := time.Now()
	tick := 0
	c.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for i := 1; i <= 4; i++ {
		c.Set(fmt.Sprintf("%skey-%d", KeyPrefix, i), []byte("v"))
	}

	stats := c.Stats()
	if stats.Entries != 3 {
		t.Errorf("Expected 3 entries, got %d", stats.Entries)
	}
	// key-1 was stored first and should have been evicted
	if _, ok := c.Get(KeyPrefix + "key-1"); ok {
		t.Error("Oldest entry should have been evicted")
	}
	if _, ok := c.Get(KeyPrefix + "key-4"); !ok {
		t.Error("Newest entry should be present")
	}
}

func TestMemoryCacheStats(t *testing.T) {
	c := NewMemoryCache(MemoryConfig{TTL: time.Minute})
	defer c.Close()

	key := KeyPrefix + "https://x.example.com/a"
	c.Set(key, []byte("payload"))
	c.Get(key)
	c.Get(key)
	c.Get(KeyPrefix + "missing")

	stats := c.Stats()
	if stats.Hits != 2 {
		t.Errorf("Expected 2 hits, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("Expected 1 miss, got %d", stats.Misses)
	}
	if stats.HitRate < 0.66 || stats.HitRate > 0.67 {
		t.Errorf("Expected hit rate ~0.667, got %f", stats.HitRate)
	}
	if stats.Entries != 1 {
		t.Errorf("Expected 1 entry, got %d", stats.Entries)
	}
}

func TestMemoryCacheValueIsolation(t *testing.T) {
	c := NewMemoryCache(MemoryConfig{TTL: time.Minute})
	defer c.Close()

	key := KeyPrefix + "https://x.example.com/a"
	original := []byte("payload")
	c.Set(key, original)
	original[0] = 'X'

	got, _ := c.Get(key)
	if string(got) != "payload" {
		t.Errorf("Stored value should be isolated from caller mutation, got %s", got)
	}

	got[0] = 'Y'
	again, _ := c.Get(key)
	if string(again) != "payload" {
		t.Errorf("Returned value should be a copy, got %s", again)
	}
}
