//go:build linux

package secrets

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/openvitals/vitalsync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SecureStore = (*KeyringStore)(nil)

// KeyringStore is a SecureStore backed by the Linux kernel user keyring.
// Secrets never touch the filesystem and are scoped to the calling user.
type KeyringStore struct{}

// NewKeyringStore creates a keyring-backed store, verifying that the user
// keyring is accessible.
func NewKeyringStore() (*KeyringStore, error) {
	if _, err := unix.KeyctlGetKeyringID(unix.KEY_SPEC_USER_KEYRING, true); err != nil {
		return nil, fmt.Errorf("access user keyring: %w", err)
	}
	return &KeyringStore{}, nil
}

// Set stores or replaces the value for key in the user keyring.
func (k *KeyringStore) Set(_ context.Context, key, value string) error {
	keyID, err := unix.AddKey("user", key, []byte(value), unix.KEY_SPEC_USER_KEYRING)
	if err != nil {
		return fmt.Errorf("add key to keyring: %w", err)
	}
	// Owner-only permissions.
	if err := unix.KeyctlSetperm(keyID, 0x3f000000); err != nil {
		return fmt.Errorf("set key permissions: %w", err)
	}
	return nil
}

// Get retrieves the value for key. A missing key reports found=false; any
// other keyring error is returned as a storage failure.
func (k *KeyringStore) Get(_ context.Context, key string) (string, bool, error) {
	keyID, err := unix.KeyctlSearch(unix.KEY_SPEC_USER_KEYRING, "user", key, 0)
	if err == unix.ENOKEY || err == unix.EKEYEXPIRED || err == unix.EKEYREVOKED {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("search keyring: %w", err)
	}

	size, err := unix.KeyctlBuffer(unix.KEYCTL_READ, keyID, nil, 0)
	if err != nil {
		return "", false, fmt.Errorf("size key: %w", err)
	}

	buf := make([]byte, size)
	n, err := unix.KeyctlBuffer(unix.KEYCTL_READ, keyID, buf, 0)
	if err != nil {
		return "", false, fmt.Errorf("read key: %w", err)
	}
	if n < len(buf) {
		buf = buf[:n]
	}
	return string(buf), true, nil
}

// Remove unlinks the key from the user keyring. A missing key is a no-op.
func (k *KeyringStore) Remove(_ context.Context, key string) error {
	keyID, err := unix.KeyctlSearch(unix.KEY_SPEC_USER_KEYRING, "user", key, 0)
	if err != nil {
		return nil
	}
	if _, err := unix.KeyctlInt(unix.KEYCTL_UNLINK, keyID, unix.KEY_SPEC_USER_KEYRING, 0, 0); err != nil {
		return fmt.Errorf("unlink key: %w", err)
	}
	return nil
}
