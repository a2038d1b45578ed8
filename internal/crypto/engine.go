// Package crypto provides the authenticated-encryption primitive and key
// lifecycle management backing the encrypted cache.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// KeySize is the symmetric key length in bytes (AES-256).
const KeySize = 32

// TagSize is the GCM authentication tag length in bytes.
const TagSize = 16

// DefaultKDFIterations is the default PBKDF2 iteration count for DeriveKey.
const DefaultKDFIterations = 100_000

// MinSaltSize is the minimum accepted salt length in bytes for DeriveKey.
const MinSaltSize = 16

// ErrAuthenticationFailed is returned by Decrypt when the authentication tag
// does not verify. It covers both a wrong key and any bit-level tampering or
// corruption; callers must treat it identically to "no data".
var ErrAuthenticationFailed = errors.New("authentication failed")

// GenerateKey returns a fresh random 256-bit key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// Encrypt encrypts plaintext with AES-256-GCM under key, returning the
// ciphertext, the freshly generated random nonce, and the authentication tag
// as separate values. The nonce is never reused under the same key.
func Encrypt(key, plaintext []byte) (ciphertext, nonce, tag []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, nil, err
	}

	nonce = make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, nil, fmt.Errorf("rand nonce: %w", err)
	}

	// Seal produces ciphertext || tag; split so the tag is stored as its own field.
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	ciphertext = sealed[:len(sealed)-TagSize]
	tag = sealed[len(sealed)-TagSize:]
	return ciphertext, nonce, tag, nil
}

// Decrypt reverses Encrypt. It returns ErrAuthenticationFailed when the tag
// does not verify, whether the cause is a wrong key, tampering, or corruption.
func Decrypt(key, ciphertext, nonce, tag []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() || len(tag) != TagSize {
		return nil, ErrAuthenticationFailed
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

// DeriveKey derives a 256-bit key from a password using PBKDF2-SHA256.
// The salt must be at least MinSaltSize bytes and unique per installation.
// The password buffer is zeroed before returning.
func DeriveKey(password, salt []byte, iterations int) ([]byte, error) {
	defer zero(password)

	if len(password) == 0 {
		return nil, errors.New("derive key: empty password")
	}
	if len(salt) < MinSaltSize {
		return nil, fmt.Errorf("derive key: salt must be at least %d bytes", MinSaltSize)
	}
	if iterations <= 0 {
		iterations = DefaultKDFIterations
	}

	return pbkdf2.Key(password, salt, iterations, KeySize, sha256.New), nil
}

// GenerateSalt returns a random salt suitable for DeriveKey.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, MinSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
