package cooldown

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the default, process-local store. Entries are never
// deleted; their number is bounded by commands × scope subjects.
type MemoryStore struct {
	mu   sync.RWMutex
	last map[Key]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{last: make(map[Key]time.Time)}
}

func (m *MemoryStore) LastUsed(_ context.Context, key Key) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.last[key]
	return t, ok, nil
}

func (m *MemoryStore) Record(_ context.Context, key Key, at time.Time, _ time.Duration) error {
	m.mu.Lock()
	m.last[key] = at
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.last)
}
