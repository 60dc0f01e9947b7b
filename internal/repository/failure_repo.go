package repository

import (
	"context"

	"github.com/user/photo-resolver/internal/entity"
)

// FailureRepository keeps an audit trail of references that exhausted their
// attempts. It is never read back as a negative cache.
type FailureRepository interface {
	// SaveOrUpdate creates or updates the record for a failed resolution.
	SaveOrUpdate(ctx context.Context, failure *entity.FailedResolution) error
	// Get returns the record for a reference, or nil when there is none.
	Get(ctx context.Context, store, reference string) (*entity.FailedResolution, error)
	// Delete removes the record, typically after a successful resolution.
	Delete(ctx context.Context, store, reference string) error
}
