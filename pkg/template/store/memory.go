package store

import (
	"sort"
	"sync"
)

// MemoryStore is an in-memory backend. Payloads are copied on save and load
// so callers can never alias stored state.
type MemoryStore struct {
	data map[string][]byte
	mu   sync.RWMutex
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// List returns every stored id, sorted.
func (m *MemoryStore) List() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.data))
	for id := range m.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Save stores a copy of payload under id.
func (m *MemoryStore) Save(id string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.data[id]; exists {
		return AlreadyExists(id)
	}
	m.data[id] = append([]byte(nil), payload...)
	return nil
}

// Load returns a copy of the payload stored under id.
func (m *MemoryStore) Load(id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	payload, exists := m.data[id]
	if !exists {
		return nil, NotFound(id)
	}
	return append([]byte(nil), payload...), nil
}

// Delete removes id. Absent ids are ignored.
func (m *MemoryStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}
