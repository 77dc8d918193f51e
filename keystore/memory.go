package keystore

import (
	"sort"
	"sync"
)

// MemoryBackend keeps secret keys in process memory. Overwritten and removed
// values are zeroed.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string][]byte
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string][]byte)}
}

func (m *MemoryBackend) Put(principalID string, secret []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.entries[principalID]; ok {
		zero(old)
	}
	m.entries[principalID] = cloneBytes(secret)
	return nil
}

func (m *MemoryBackend) Get(principalID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[principalID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBytes(v), nil
}

func (m *MemoryBackend) Remove(principalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[principalID]
	if !ok {
		return ErrNotFound
	}
	zero(v)
	delete(m.entries, principalID)
	return nil
}

func (m *MemoryBackend) List() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
