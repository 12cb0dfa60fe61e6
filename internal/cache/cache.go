// ABOUTME: Cache backend contract shared by the memory, file, and redis-like implementations
// ABOUTME: get/put/invalidate/clear/cleanup_expired/stats per spec.md §4.4

package cache

import (
	"time"

	"github.com/loomrun/loom/pkg/types"
)

// Entry is a stored cache line: the task's output value plus its validity
// window.
type Entry struct {
	Value     types.Value
	CreatedAt time.Time
	ExpiresAt *time.Time
}

// Expired reports whether e is past its TTL as of now.
func (e Entry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

// Stats reports cache usage counters, per spec.md §4.4.
type Stats struct {
	Hits    int64
	Misses  int64
	Puts    int64
	Size    int
	Backend string
}

// Cache is the contract every backend implements.
type Cache interface {
	Get(key string) (Entry, bool, error)
	Put(key string, value types.Value, ttl time.Duration) error
	Invalidate(key string) error
	Clear() error
	CleanupExpired() (int, error)
	Stats() Stats
	Close() error
}
