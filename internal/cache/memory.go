package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryCache is a process-local TTL cache. Values are stored encoded so
// callers never share mutable state with the cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheWithClock(time.Now)
}

func NewMemoryCacheWithClock(now func() time.Time) *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: now}
}

func (c *MemoryCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(entry.data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set ignores non-positive TTLs.
func (c *MemoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.entries[key] = memoryEntry{data: data, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.entries, key)
	}
	return nil
}

func (c *MemoryCache) DeletePrefix(_ context.Context, prefix string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed, nil
}

var _ Cache = (*MemoryCache)(nil)
