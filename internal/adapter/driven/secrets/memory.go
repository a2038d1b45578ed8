// Package secrets provides SecureStore adapters: the Linux kernel keyring,
// a permission-restricted file store, and an in-memory store for tests.
package secrets

import (
	"context"
	"sync"

	"github.com/openvitals/vitalsync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SecureStore = (*MemoryStore)(nil)

// MemoryStore is an in-memory SecureStore used in tests and as a last-resort
// fallback. Contents do not survive process restart.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

// Set stores or replaces the value for key.
func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// Get retrieves the value for key. The second return reports presence.
func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

// Remove deletes the value for key. Removing a missing key is a no-op.
func (m *MemoryStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
