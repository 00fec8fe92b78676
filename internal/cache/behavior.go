// Package cache maps declarative cache strategies to concrete caching
// behaviors attachable to an API client handle. Entries are time-boxed;
// the registry of connected sites itself is never subject to TTL, only
// the cached response data is.
package cache

import "time"

// Stats tracks cache statistics
type Stats struct {
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Entries   int     `json:"entries"`
	Evictions uint64  `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

// Behavior is a time-boxed response cache attachable to an API client.
// Keys must be produced by NormalizeKey. A nil Behavior means "uncached".
type Behavior interface {
	// Get returns the cached value for key, or ok=false on miss or expiry.
	Get(key string) (value []byte, ok bool)

	// Set stores value under key with an expiry of now + the behavior's TTL.
	Set(key string, value []byte)

	// Delete removes a single entry.
	Delete(key string)

	// Clear performs a best-effort sweep of entries carrying this library's
	// key prefix. It never blanket-clears a shared storage tier.
	Clear() error

	// Stats returns cache statistics.
	Stats() Stats

	// Close releases background resources held by the behavior.
	Close() error
}

type clock func() time.Time
