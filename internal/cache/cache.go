// Package cache implements an encrypted, TTL-bounded key-value cache on top
// of the secure store. Entries are sealed with the key manager's cache key;
// any failure on the read path degrades to "no value" so a rotated key or a
// corrupted record can never crash a reader.
package cache

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/openvitals/vitalsync/internal/crypto"
	"github.com/openvitals/vitalsync/internal/domain/port/driven"
)

// DefaultTTL is the entry lifetime used by Set.
const DefaultTTL = 7 * 24 * time.Hour

// storagePrefix namespaces cache entries within the secure store, keeping
// them apart from credentials and key material.
const storagePrefix = "cache_"

// encryptedPayload is the persisted ciphertext triple.
type encryptedPayload struct {
	CiphertextBase64 string `json:"ciphertextBase64"`
	NonceBase64      string `json:"nonceBase64"`
	TagBase64        string `json:"tagBase64"`
}

// entryMetadata carries the entry's timing fields as ISO-8601 instants.
type entryMetadata struct {
	CachedAt  time.Time `json:"cachedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// storedEntry is the on-disk JSON layout of a cache entry.
type storedEntry struct {
	EncryptedPayload encryptedPayload `json:"encryptedPayload"`
	Metadata         entryMetadata    `json:"metadata"`
}

// Cache is the encrypted cache. Expiration is checked lazily on read rather
// than swept by a timer; expired entries are deleted as a side effect of the
// read that discovers them.
type Cache struct {
	store driven.SecureStore
	keys  *crypto.KeyManager
	now   func() time.Time
}

// New creates a Cache over the given secure store and key manager.
func New(store driven.SecureStore, keys *crypto.KeyManager) *Cache {
	return &Cache{store: store, keys: keys, now: time.Now}
}

// Set encrypts payload under the current cache key and stores it with the
// given TTL. A non-positive ttl selects DefaultTTL. Failures are logged and
// swallowed; a cache write is never worth crashing over.
func (c *Cache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	encKey, err := c.keys.GetOrCreateKey(ctx)
	if err != nil {
		slog.Error("cache set: key unavailable", "key", key, "error", err)
		return
	}

	ciphertext, nonce, tag, err := crypto.Encrypt(encKey, payload)
	if err != nil {
		slog.Error("cache set: encrypt failed", "key", key, "error", err)
		return
	}

	now := c.now()
	entry := storedEntry{
		EncryptedPayload: encryptedPayload{
			CiphertextBase64: base64.StdEncoding.EncodeToString(ciphertext),
			NonceBase64:      base64.StdEncoding.EncodeToString(nonce),
			TagBase64:        base64.StdEncoding.EncodeToString(tag),
		},
		Metadata: entryMetadata{
			CachedAt:  now.UTC(),
			ExpiresAt: now.Add(ttl).UTC(),
		},
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		slog.Error("cache set: marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, storagePrefix+key, string(raw)); err != nil {
		slog.Error("cache set: store failed", "key", key, "error", err)
	}
}

// Get returns the decrypted payload for key, or (nil, false) when the entry
// is missing, expired, unreadable under the current key, or storage fails.
// Expired entries are deleted as a side effect.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	entry, ok := c.loadLive(ctx, key)
	if !ok {
		return nil, false
	}

	encKey, err := c.keys.GetOrCreateKey(ctx)
	if err != nil {
		slog.Error("cache get: key unavailable", "key", key, "error", err)
		return nil, false
	}

	ciphertext, err1 := base64.StdEncoding.DecodeString(entry.EncryptedPayload.CiphertextBase64)
	nonce, err2 := base64.StdEncoding.DecodeString(entry.EncryptedPayload.NonceBase64)
	tag, err3 := base64.StdEncoding.DecodeString(entry.EncryptedPayload.TagBase64)
	if err1 != nil || err2 != nil || err3 != nil {
		slog.Warn("cache get: malformed entry, evicting", "key", key)
		c.Clear(ctx, key)
		return nil, false
	}

	plaintext, err := crypto.Decrypt(encKey, ciphertext, nonce, tag)
	if err != nil {
		// Wrong or rotated key, tampering, or corruption. Treat as absent.
		slog.Warn("cache get: decrypt failed, evicting", "key", key)
		c.Clear(ctx, key)
		return nil, false
	}
	return plaintext, true
}

// HasValid reports whether Get would return a value for key.
func (c *Cache) HasValid(ctx context.Context, key string) bool {
	_, ok := c.Get(ctx, key)
	return ok
}

// Age returns how long ago the entry for key was written. The second return
// is false when the entry is missing or expired.
func (c *Cache) Age(ctx context.Context, key string) (time.Duration, bool) {
	entry, ok := c.loadLive(ctx, key)
	if !ok {
		return 0, false
	}
	return c.now().Sub(entry.Metadata.CachedAt), true
}

// Expiration returns the entry's expiry instant. The second return is false
// when the entry is missing or expired.
func (c *Cache) Expiration(ctx context.Context, key string) (time.Time, bool) {
	entry, ok := c.loadLive(ctx, key)
	if !ok {
		return time.Time{}, false
	}
	return entry.Metadata.ExpiresAt, true
}

// Clear removes the entry for key. Clearing a missing entry is a no-op.
func (c *Cache) Clear(ctx context.Context, key string) {
	if err := c.store.Remove(ctx, storagePrefix+key); err != nil {
		slog.Error("cache clear failed", "key", key, "error", err)
	}
}

// loadLive loads and parses the stored entry, evicting and reporting absent
// when it is missing, malformed, or past its expiry.
func (c *Cache) loadLive(ctx context.Context, key string) (storedEntry, bool) {
	raw, found, err := c.store.Get(ctx, storagePrefix+key)
	if err != nil {
		slog.Error("cache read: store failed", "key", key, "error", err)
		return storedEntry{}, false
	}
	if !found {
		return storedEntry{}, false
	}

	var entry storedEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		slog.Warn("cache read: malformed entry, evicting", "key", key)
		c.Clear(ctx, key)
		return storedEntry{}, false
	}

	if !c.now().Before(entry.Metadata.ExpiresAt) {
		c.Clear(ctx, key)
		return storedEntry{}, false
	}
	return entry, true
}
