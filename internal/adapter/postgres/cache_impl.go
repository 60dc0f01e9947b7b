package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/user/photo-resolver/internal/entity"
)

// DB is the subset of *pgxpool.Pool the repositories use.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// CacheRepoImpl provides a concrete implementation for the CacheRepository interface using PostgreSQL.
type CacheRepoImpl struct {
	db DB
}

// NewCacheRepo creates a new instance of CacheRepoImpl.
func NewCacheRepo(db DB) *CacheRepoImpl {
	return &CacheRepoImpl{db: db}
}

// Get retrieves the cached entry for (store, reference), or nil when absent.
func (r *CacheRepoImpl) Get(ctx context.Context, store, reference string) (*entity.CacheEntry, error) {
	query := `
		SELECT link, name, fetched_at
		FROM product_cache
		WHERE store = $1 AND reference = $2;
	`
	var (
		link, name *string
		fetchedAt  time.Time
	)
	err := r.db.QueryRow(ctx, query, store, reference).Scan(&link, &name, &fetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &entity.CacheEntry{
		Store:     store,
		Reference: reference,
		Link:      deref(link),
		Name:      deref(name),
		FetchedAt: fetchedAt,
	}, nil
}

// Put stores or replaces the entry for (store, reference).
func (r *CacheRepoImpl) Put(ctx context.Context, entry *entity.CacheEntry) error {
	query := `
		INSERT INTO product_cache (store, reference, link, name, fetched_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (store, reference) DO UPDATE SET
			link = EXCLUDED.link,
			name = EXCLUDED.name,
			fetched_at = EXCLUDED.fetched_at;
	`
	_, err := r.db.Exec(ctx, query,
		entry.Store,
		entry.Reference,
		nullable(entry.Link),
		nullable(entry.Name),
		entry.FetchedAt,
	)
	return err
}

func (r *CacheRepoImpl) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
