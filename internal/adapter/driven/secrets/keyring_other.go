//go:build !linux

package secrets

import (
	"fmt"

	"github.com/openvitals/vitalsync/internal/domain/port/driven"
)

// NewKeyringStore always returns an error on non-Linux platforms; callers
// fall back to the file store.
func NewKeyringStore() (driven.SecureStore, error) {
	return nil, fmt.Errorf("kernel keyring storage is only supported on linux")
}
