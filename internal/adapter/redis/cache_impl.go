package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/user/photo-resolver/internal/entity"
	"github.com/user/photo-resolver/internal/repository"
	"github.com/user/photo-resolver/pkg/utils"
)

const cacheKeyPrefix = "photo:"

const (
	fieldLink      = "link"
	fieldName      = "name"
	fieldFetchedAt = "fetched_at"
)

// CacheRepoImpl provides a concrete implementation for the CacheRepository
// interface using one Redis hash per (store, reference). When next is set it
// acts as a read-through, write-through tier in front of it.
type CacheRepoImpl struct {
	client    redis.UniversalClient
	retention time.Duration
	next      repository.CacheRepository
	logger    *zap.Logger
}

// NewCacheRepo creates a new instance of CacheRepoImpl. Keys expire after
// retention, which should comfortably exceed the freshness TTL. next may be nil.
func NewCacheRepo(client redis.UniversalClient, retention time.Duration, next repository.CacheRepository, logger *zap.Logger) *CacheRepoImpl {
	return &CacheRepoImpl{
		client:    client,
		retention: retention,
		next:      next,
		logger:    logger,
	}
}

// generateKey creates a consistent Redis key for a given store and reference by hashing them.
func (r *CacheRepoImpl) generateKey(store, reference string) string {
	return cacheKeyPrefix + utils.HashKey(store, reference)
}

// Get reads the hash for the key. On a miss it falls through to next and
// backfills Redis with whatever next returned.
func (r *CacheRepoImpl) Get(ctx context.Context, store, reference string) (*entity.CacheEntry, error) {
	fields, err := r.client.HGetAll(ctx, r.generateKey(store, reference)).Result()
	if err != nil {
		if r.next == nil {
			return nil, err
		}
		r.logger.Warn("redis read failed, using backing store", zap.Error(err))
		return r.next.Get(ctx, store, reference)
	}

	if len(fields) > 0 {
		entry, err := decodeEntry(store, reference, fields)
		if err == nil {
			return entry, nil
		}
		r.logger.Warn("discarding malformed cache hash", zap.String("store", store), zap.String("reference", reference), zap.Error(err))
	}

	if r.next == nil {
		return nil, nil
	}
	entry, err := r.next.Get(ctx, store, reference)
	if err != nil || entry == nil {
		return entry, err
	}
	if err := r.write(ctx, entry); err != nil {
		r.logger.Warn("failed to backfill redis", zap.Error(err))
	}
	return entry, nil
}

// Put writes the backing store first, then Redis.
func (r *CacheRepoImpl) Put(ctx context.Context, entry *entity.CacheEntry) error {
	if r.next != nil {
		if err := r.next.Put(ctx, entry); err != nil {
			return err
		}
	}
	return r.write(ctx, entry)
}

func (r *CacheRepoImpl) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return err
	}
	if r.next != nil {
		return r.next.Ping(ctx)
	}
	return nil
}

func (r *CacheRepoImpl) write(ctx context.Context, entry *entity.CacheEntry) error {
	key := r.generateKey(entry.Store, entry.Reference)
	// MULTI/EXEC so the hash never lives without its expiry.
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			fieldLink, entry.Link,
			fieldName, entry.Name,
			fieldFetchedAt, strconv.FormatInt(entry.FetchedAt.UnixNano(), 10),
		)
		if r.retention > 0 {
			pipe.Expire(ctx, key, r.retention)
		}
		return nil
	})
	return err
}

func decodeEntry(store, reference string, fields map[string]string) (*entity.CacheEntry, error) {
	raw, ok := fields[fieldFetchedAt]
	if !ok {
		return nil, fmt.Errorf("missing %s", fieldFetchedAt)
	}
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", fieldFetchedAt, err)
	}
	return &entity.CacheEntry{
		Store:     store,
		Reference: reference,
		Link:      fields[fieldLink],
		Name:      fields[fieldName],
		FetchedAt: time.Unix(0, nanos).UTC(),
	}, nil
}
