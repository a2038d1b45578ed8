package driven

import (
	"context"
	"errors"

	"github.com/openvitals/vitalsync/internal/domain/model"
)

// ErrOwnerRequired is returned by LabResultStore.SaveRange when the owner
// scoping identifier is empty. Rows carry a non-null owner constraint, so a
// missing owner is a configuration fault that must fail loudly rather than
// write unscoped data.
var ErrOwnerRequired = errors.New("owner id required: set VITALSYNC_OWNER_ID")

// LabResultStore defines the driven port for the canonical local store of
// lab results.
type LabResultStore interface {
	// SaveRange inserts or updates the batch in a single transaction, keyed
	// by each record's PublicID. Existing rows have their mutable fields
	// overwritten in place. Returns ErrOwnerRequired when ownerID is empty.
	SaveRange(ctx context.Context, ownerID string, results []model.LabResult) error

	// ListRecent returns up to limit non-deleted results for the owner,
	// most recent TakenAt first.
	ListRecent(ctx context.Context, ownerID string, limit int) ([]model.LabResult, error)

	// GetByPublicID retrieves a single result by its public identifier.
	// Returns nil, nil if no such row exists.
	GetByPublicID(ctx context.Context, publicID string) (*model.LabResult, error)

	// CountAll returns the number of rows for the owner, including
	// soft-deleted ones.
	CountAll(ctx context.Context, ownerID string) (int, error)
}
