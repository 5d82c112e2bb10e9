package catalog

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory KV backend with the same revision semantics
// as the NATS bucket. It backs tests and local development without a
// running NATS server.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	rev     uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return Entry{}, ErrKeyNotFound
	}
	cp := Entry{Value: append([]byte(nil), e.Value...), Revision: e.Revision}
	return cp, nil
}

func (m *MemoryStore) Create(_ context.Context, key string, value []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; ok {
		return 0, ErrConflict
	}
	return m.write(key, value), nil
}

func (m *MemoryStore) Update(_ context.Context, key string, value []byte, rev uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || e.Revision != rev {
		return 0, ErrConflict
	}
	return m.write(key, value), nil
}

func (m *MemoryStore) Put(_ context.Context, key string, value []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.write(key, value), nil
}

// Len returns the number of stored keys.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryStore) write(key string, value []byte) uint64 {
	m.rev++
	m.entries[key] = Entry{Value: append([]byte(nil), value...), Revision: m.rev}
	return m.rev
}
