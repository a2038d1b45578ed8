package crypto

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/openvitals/vitalsync/internal/domain/port/driven"
)

// keyStorageName is the fixed SecureStore key under which the cache
// encryption key is persisted, base64-encoded.
const keyStorageName = "vitalsync_cache_key"

// KeyManager owns the single symmetric cache-encryption key. The key is
// loaded from (or created in) the SecureStore on first use and held in
// memory afterward. An explicit instance owned by the composition root,
// not a package-level singleton, so rotation is testable.
type KeyManager struct {
	store driven.SecureStore

	mu  sync.Mutex
	key []byte
}

// NewKeyManager creates a KeyManager backed by the given secure store.
func NewKeyManager(store driven.SecureStore) *KeyManager {
	return &KeyManager{store: store}
}

// GetOrCreateKey returns the active cache key. If no key is resident in
// memory it is loaded from the secure store; if none is stored, a new random
// key is generated and persisted before being returned. The call is
// idempotent: it never regenerates a key that already exists in storage,
// which would silently orphan all previously cached data.
func (m *KeyManager) GetOrCreateKey(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.key != nil {
		return m.key, nil
	}

	encoded, found, err := m.store.Get(ctx, keyStorageName)
	if err != nil {
		return nil, fmt.Errorf("load cache key: %w", err)
	}
	if found {
		key, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode cache key: %w", err)
		}
		if len(key) != KeySize {
			return nil, fmt.Errorf("stored cache key has %d bytes, want %d", len(key), KeySize)
		}
		m.key = key
		return m.key, nil
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := m.store.Set(ctx, keyStorageName, base64.StdEncoding.EncodeToString(key)); err != nil {
		return nil, fmt.Errorf("persist cache key: %w", err)
	}
	m.key = key
	return m.key, nil
}

// SetDerivedKey installs a key derived from a passphrase (via DeriveKey) as
// the active key and persists it. Entries written under a previous key become
// unreadable and are lazily evicted by the cache.
func (m *KeyManager) SetDerivedKey(ctx context.Context, key []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("derived key has %d bytes, want %d", len(key), KeySize)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Set(ctx, keyStorageName, base64.StdEncoding.EncodeToString(key)); err != nil {
		return fmt.Errorf("persist derived key: %w", err)
	}
	m.key = key
	return nil
}

// Rotate generates and persists a fresh key, replacing the current one.
// Existing cache entries are NOT re-encrypted: they fail authentication on
// next read and are evicted lazily. Cached data is non-authoritative, so
// invalidation is the accepted cost of rotation.
func (m *KeyManager) Rotate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, err := GenerateKey()
	if err != nil {
		return err
	}
	if err := m.store.Set(ctx, keyStorageName, base64.StdEncoding.EncodeToString(key)); err != nil {
		return fmt.Errorf("persist rotated key: %w", err)
	}
	m.key = key
	return nil
}
