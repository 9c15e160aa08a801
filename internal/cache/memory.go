package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     []byte
	writtenAt time.Time
	ttl       time.Duration
}

// MemoryCache is an in-process, map-backed Store for dev and tests. Concurrent puts
// for the same key resolve last-writer-wins on writtenAt (spec §4.2); a
// mutex-guarded map is simpler to reason about here than sync.Map given the
// read-modify-write GetStale semantics.
type MemoryCache struct {
	mu           sync.Mutex
	entries      map[string]entry
	staleCeiling time.Duration
	now          func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries:      make(map[string]entry),
		staleCeiling: DefaultStaleCeiling,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (c *MemoryCache) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if existing, ok := c.entries[key]; ok && existing.writtenAt.After(now) {
		return nil // a newer write already landed; last-writer-wins on writtenAt
	}
	c.entries[key] = entry{value: append([]byte(nil), value...), writtenAt: now, ttl: ttl}
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, time.Duration, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, 0, false, nil
	}
	now := c.now()
	age := now.Sub(e.writtenAt)
	if now.After(e.writtenAt.Add(e.ttl)) {
		return nil, 0, false, nil
	}
	return e.value, age, true, nil
}

func (c *MemoryCache) GetStale(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if c.now().After(e.writtenAt.Add(c.staleCeiling)) {
		return nil, false, nil
	}
	return e.value, true, nil
}
