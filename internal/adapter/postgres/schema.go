package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/photo-resolver/internal/repository"
)

const schema = `
CREATE TABLE IF NOT EXISTS product_cache (
	store      TEXT        NOT NULL,
	reference  TEXT        NOT NULL,
	link       TEXT,
	name       TEXT,
	fetched_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (store, reference)
);

CREATE TABLE IF NOT EXISTS resolution_failures (
	store           TEXT        NOT NULL,
	reference       TEXT        NOT NULL,
	failure_reason  TEXT        NOT NULL,
	attempts        INTEGER     NOT NULL,
	failure_count   INTEGER     NOT NULL DEFAULT 1,
	last_attempt_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (store, reference)
);
`

// Connect opens a pool, verifies it and creates the tables. Any failure is
// reported as ErrCacheUnavailable so startup can abort.
func Connect(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrCacheUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping postgres: %v", repository.ErrCacheUnavailable, err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", repository.ErrCacheUnavailable, err)
	}
	return pool, nil
}

// EnsureSchema creates the cache and failure tables when missing.
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func notFoundAsNil(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}
