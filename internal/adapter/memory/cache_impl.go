package memory

import (
	"context"
	"sync"

	"github.com/user/photo-resolver/internal/entity"
)

type cacheKey struct {
	store     string
	reference string
}

// CacheRepoImpl is an in-process CacheRepository for local runs and tests.
type CacheRepoImpl struct {
	mu      sync.RWMutex
	entries map[cacheKey]entity.CacheEntry
}

// NewCacheRepo creates an empty in-memory cache.
func NewCacheRepo() *CacheRepoImpl {
	return &CacheRepoImpl{entries: make(map[cacheKey]entity.CacheEntry)}
}

// Get returns a copy of the entry, or nil when absent.
func (r *CacheRepoImpl) Get(_ context.Context, store, reference string) (*entity.CacheEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[cacheKey{store, reference}]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// Put replaces any prior entry for the key.
func (r *CacheRepoImpl) Put(_ context.Context, entry *entity.CacheEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[cacheKey{entry.Store, entry.Reference}] = *entry
	return nil
}

func (r *CacheRepoImpl) Ping(context.Context) error { return nil }
