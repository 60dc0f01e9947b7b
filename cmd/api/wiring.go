package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/user/photo-resolver/internal/adapter/chromedp_renderer"
	"github.com/user/photo-resolver/internal/adapter/memory"
	"github.com/user/photo-resolver/internal/adapter/postgres"
	"github.com/user/photo-resolver/internal/adapter/proxyapi"
	redis_adapter "github.com/user/photo-resolver/internal/adapter/redis"
	"github.com/user/photo-resolver/internal/repository"
	"github.com/user/photo-resolver/internal/usecase"
	"github.com/user/photo-resolver/pkg/config"
)

// storage bundles the cache backend with whatever connections it opened.
type storage struct {
	cache    repository.CacheRepository
	failures repository.FailureRepository
	pgPool   *pgxpool.Pool
	rdb      *redis.Client
}

func (s *storage) Close() {
	if s.rdb != nil {
		_ = s.rdb.Close()
	}
	if s.pgPool != nil {
		s.pgPool.Close()
	}
}

// openStorage connects the configured cache backend. Any connection failure
// is ErrCacheUnavailable: the service must not start without its cache.
func openStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*storage, error) {
	s := &storage{}

	if cfg.CacheBackend == "postgres" || cfg.CacheBackend == "tiered" {
		pool, err := postgres.Connect(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		s.pgPool = pool
		s.failures = postgres.NewFailureRepo(pool)
		logger.Info("PostgreSQL connection pool established")
	}

	if cfg.CacheBackend == "redis" || cfg.CacheBackend == "tiered" {
		s.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			s.Close()
			return nil, fmt.Errorf("%w: ping redis: %v", repository.ErrCacheUnavailable, err)
		}
		logger.Info("Redis connection established", zap.String("addr", cfg.RedisAddr))
	}

	switch cfg.CacheBackend {
	case "postgres":
		s.cache = postgres.NewCacheRepo(s.pgPool)
	case "redis":
		s.cache = redis_adapter.NewCacheRepo(s.rdb, cfg.RedisRetention, nil, logger)
	case "tiered":
		s.cache = redis_adapter.NewCacheRepo(s.rdb, cfg.RedisRetention, postgres.NewCacheRepo(s.pgPool), logger)
	case "memory":
		s.cache = memory.NewCacheRepo()
		logger.Warn("using in-process cache, entries are lost on restart")
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
	return s, nil
}

var errNoCredentialSource = errors.New("neither PROXY_API_URL nor PROXY_LIST is set")

// credentialSource prefers the provider API and falls back to the static list.
func credentialSource(cfg *config.Config) (repository.CredentialSource, error) {
	switch {
	case cfg.ProxyAPIURL != "":
		return proxyapi.NewHTTPSource(cfg.ProxyAPIURL, cfg.ProxyAPIToken, cfg.ProxyPageSize, 0), nil
	case cfg.ProxyList != "":
		return proxyapi.ParseStaticList(cfg.ProxyList)
	default:
		return nil, fmt.Errorf("%w: %w", repository.ErrProxyPoolUnavailable, errNoCredentialSource)
	}
}

// components is everything a command needs to resolve references.
type components struct {
	storage      *storage
	pool         *usecase.ProxyPool
	renderer     *chromedp_renderer.ChromedpRenderer
	photoManager usecase.PhotoManager
}

// buildComponents connects storage, loads the proxy pool and assembles the
// use cases. An empty pool or unreachable cache aborts startup.
func buildComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*components, error) {
	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	source, err := credentialSource(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	pool := usecase.NewProxyPool(source, cfg.ProxyRefreshInterval, logger)
	if _, err := pool.Refresh(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("initial proxy refresh: %w", err)
	}

	renderer := chromedp_renderer.NewChromedpRenderer(cfg.MaxSessions, cfg.ChromeHeadless, logger)

	extractor := usecase.NewExtractor(usecase.ExtractorConfig{
		TitleSelector:   cfg.TitleSelector,
		ImageSelector:   cfg.ImageSelector,
		NoResultsPhrase: cfg.NoResultsPhrase,
	})
	resolver := usecase.NewResolver(usecase.ResolverConfig{
		StoreDomain:    cfg.StoreDomain,
		CacheTTL:       cfg.CacheTTL,
		MaxAttempts:    cfg.MaxAttempts,
		RetryBackoff:   cfg.RetryBackoff,
		ContentTimeout: cfg.ContentTimeout,
		ResolveTimeout: cfg.ResolveTimeout,
	}, store.cache, store.failures, pool, renderer, extractor, logger)

	return &components{
		storage:      store,
		pool:         pool,
		renderer:     renderer,
		photoManager: usecase.NewPhotoManager(resolver, store.cache, store.failures, cfg.MaxConcurrency, cfg.CacheTTL, logger),
	}, nil
}

// Close releases browsers before the connections they may still write to.
func (c *components) Close() {
	c.renderer.Shutdown()
	c.storage.Close()
}
