// ABOUTME: In-memory LRU cache backend bounded by max_size entries
// ABOUTME: Eviction is least-recently-used on insert; TTL is checked on read

package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/loomrun/loom/pkg/types"
)

// Memory is the Memory cache backend of spec.md §4.4/§6.
type Memory struct {
	mu         sync.Mutex
	store      *lru.Cache[string, Entry]
	defaultTTL time.Duration
	stats      Stats
}

// NewMemory creates a Memory backend bounded at maxSize entries (default
// 1000 per spec.md §6), with defaultTTL applied when Put is called with
// ttl <= 0.
func NewMemory(maxSize int, defaultTTL time.Duration) (*Memory, error) {
	if maxSize <= 0 {
		maxSize = 1000
	}
	c, err := lru.New[string, Entry](maxSize)
	if err != nil {
		return nil, err
	}
	return &Memory{store: c, defaultTTL: defaultTTL, stats: Stats{Backend: "memory"}}, nil
}

func (m *Memory) Get(key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.store.Get(key)
	if !ok {
		m.stats.Misses++
		return Entry{}, false, nil
	}
	if e.Expired(time.Now()) {
		m.store.Remove(key)
		m.stats.Misses++
		return Entry{}, false, nil
	}
	m.stats.Hits++
	return e, true, nil
}

func (m *Memory) Put(key string, value types.Value, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	entry := Entry{Value: value, CreatedAt: time.Now()}
	if ttl > 0 {
		exp := entry.CreatedAt.Add(ttl)
		entry.ExpiresAt = &exp
	}
	m.store.Add(key, entry)
	m.stats.Puts++
	return nil
}

func (m *Memory) Invalidate(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store.Remove(key)
	return nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store.Purge()
	return nil
}

func (m *Memory) CleanupExpired() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	removed := 0
	for _, key := range m.store.Keys() {
		e, ok := m.store.Peek(key)
		if ok && e.Expired(now) {
			m.store.Remove(key)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.Size = m.store.Len()
	return s
}

func (m *Memory) Close() error { return nil }
