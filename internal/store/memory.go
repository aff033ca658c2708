package store

import (
	"context"
	"sync"
)

type memoryEntry struct {
	value   []byte
	version uint64
}

// MemoryStore is a map-backed Gateway for tests and throwaway runs.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[Namespace]map[string]memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[Namespace]map[string]memoryEntry),
	}
}

func (m *MemoryStore) Get(_ context.Context, ns Namespace, key string) ([]byte, uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.data[ns][key]
	if !ok {
		return nil, 0, ErrNotFound
	}
	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, entry.version, nil
}

func (m *MemoryStore) Set(_ context.Context, ns Namespace, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket := m.bucket(ns)
	entry := bucket[key]
	bucket[key] = memoryEntry{value: clone(value), version: entry.version + 1}
	return nil
}

func (m *MemoryStore) CompareAndSet(_ context.Context, ns Namespace, key string, value []byte, version uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket := m.bucket(ns)
	entry, exists := bucket[key]

	if version == 0 {
		if exists {
			return ErrConflict
		}
	} else if !exists || entry.version != version {
		return ErrConflict
	}

	bucket[key] = memoryEntry{value: clone(value), version: version + 1}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, ns Namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[ns][key]; !ok {
		return ErrNotFound
	}
	delete(m.data[ns], key)
	return nil
}

func (m *MemoryStore) List(_ context.Context, ns Namespace) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]byte, len(m.data[ns]))
	for k, entry := range m.data[ns] {
		out[k] = clone(entry.value)
	}
	return out, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

// bucket returns the namespace map, creating it on first use.
// Caller must hold the write lock.
func (m *MemoryStore) bucket(ns Namespace) map[string]memoryEntry {
	bucket, ok := m.data[ns]
	if !ok {
		bucket = make(map[string]memoryEntry)
		m.data[ns] = bucket
	}
	return bucket
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
