package postgres

import (
	"context"

	"github.com/user/photo-resolver/internal/entity"
)

// FailureRepoImpl provides a concrete implementation for the FailureRepository interface using PostgreSQL.
type FailureRepoImpl struct {
	db DB
}

// NewFailureRepo creates a new instance of FailureRepoImpl.
func NewFailureRepo(db DB) *FailureRepoImpl {
	return &FailureRepoImpl{db: db}
}

// SaveOrUpdate creates or updates a record for a failed resolution.
// It increments failure_count on conflict.
func (r *FailureRepoImpl) SaveOrUpdate(ctx context.Context, failure *entity.FailedResolution) error {
	query := `
		INSERT INTO resolution_failures (store, reference, failure_reason, attempts, failure_count, last_attempt_at)
		VALUES ($1, $2, $3, $4, 1, $5)
		ON CONFLICT (store, reference) DO UPDATE SET
			failure_reason = EXCLUDED.failure_reason,
			attempts = EXCLUDED.attempts,
			failure_count = resolution_failures.failure_count + 1,
			last_attempt_at = EXCLUDED.last_attempt_at;
	`
	_, err := r.db.Exec(ctx, query,
		failure.Store,
		failure.Reference,
		failure.FailureReason,
		failure.Attempts,
		failure.LastAttemptTimestamp,
	)
	return err
}

// Delete removes a failure record, typically after a successful resolution.
func (r *FailureRepoImpl) Delete(ctx context.Context, store, reference string) error {
	query := `DELETE FROM resolution_failures WHERE store = $1 AND reference = $2;`
	_, err := r.db.Exec(ctx, query, store, reference)
	return err
}

// Get retrieves the failure record for (store, reference), or nil when absent.
func (r *FailureRepoImpl) Get(ctx context.Context, store, reference string) (*entity.FailedResolution, error) {
	query := `
		SELECT failure_reason, attempts, failure_count, last_attempt_at
		FROM resolution_failures
		WHERE store = $1 AND reference = $2;
	`
	f := entity.FailedResolution{Store: store, Reference: reference}
	err := r.db.QueryRow(ctx, query, store, reference).Scan(
		&f.FailureReason,
		&f.Attempts,
		&f.FailureCount,
		&f.LastAttemptTimestamp,
	)
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &f, nil
}
