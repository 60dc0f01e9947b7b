package repository

import (
	"context"

	"github.com/user/photo-resolver/internal/entity"
)

// CacheRepository is the keyed (store, reference) table behind the resolver.
// It stores FetchedAt but never judges freshness itself.
type CacheRepository interface {
	// Get returns nil, nil when no entry exists for the key.
	Get(ctx context.Context, store, reference string) (*entity.CacheEntry, error)
	// Put replaces any prior entry for the same key.
	Put(ctx context.Context, entry *entity.CacheEntry) error
	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error
}
