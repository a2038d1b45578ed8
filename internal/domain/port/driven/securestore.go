package driven

import "context"

// SecureStore defines the driven port for platform-backed secret storage
// (kernel keyring, protected file, or an in-memory double for tests).
//
// Get returns (value, true, nil) when the key exists, ("", false, nil) when it
// does not, and ("", false, err) when the underlying storage is broken. The
// three-way result lets callers distinguish "no such key" from "storage is
// failing" instead of collapsing both into an absent value.
type SecureStore interface {
	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, bool, error)
	Remove(ctx context.Context, key string) error
}
