package edgecache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Cache. A zero TTL keeps entries until process
// exit.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	entry    *Entry
	storedAt time.Time
}

// NewMemory returns a memory cache with the given TTL (0 = no expiry).
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get implements Cache. Expired entries are evicted lazily.
func (m *Memory) Get(_ context.Context, key string) (*Entry, bool, error) {
	m.mu.RLock()
	me, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if m.ttl > 0 && m.now().Sub(me.storedAt) > m.ttl {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false, nil
	}
	return me.entry.Clone(), true, nil
}

// Put implements Cache.
func (m *Memory) Put(_ context.Context, key string, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{entry: e.Clone(), storedAt: m.now()}
	return nil
}

// Len reports the number of stored entries, for tests and metrics.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
