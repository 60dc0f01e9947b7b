package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/user/photo-resolver/internal/entity"
	"github.com/user/photo-resolver/internal/repository"
	"github.com/user/photo-resolver/pkg/metrics"
	"github.com/user/photo-resolver/pkg/utils"
)

const reasonMaxAttempts = "max attempts exceeded"

// Resolver turns one (store, reference) into a name and an image link.
type Resolver interface {
	Resolve(ctx context.Context, req entity.ResolutionRequest) entity.ResolutionResult
}

// ProxySource supplies one egress credential per attempt.
type ProxySource interface {
	EnsureFresh(ctx context.Context) error
	Pick() (entity.ProxyCredential, error)
}

// ResolverConfig holds the retry and freshness policy.
type ResolverConfig struct {
	StoreDomain    string
	CacheTTL       time.Duration
	MaxAttempts    int
	RetryBackoff   time.Duration
	ContentTimeout time.Duration
	// ResolveTimeout bounds a whole resolution including backoff. Zero disables it.
	ResolveTimeout time.Duration
}

type resolverUseCase struct {
	cfg       ResolverConfig
	cache     repository.CacheRepository
	failures  repository.FailureRepository
	pool      ProxySource
	renderer  repository.Renderer
	extractor *Extractor
	logger    *zap.Logger
	now       func() time.Time
}

// NewResolver creates a new resolver. failures may be nil.
func NewResolver(
	cfg ResolverConfig,
	cache repository.CacheRepository,
	failures repository.FailureRepository,
	pool ProxySource,
	renderer repository.Renderer,
	extractor *Extractor,
	logger *zap.Logger,
) Resolver {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &resolverUseCase{
		cfg:       cfg,
		cache:     cache,
		failures:  failures,
		pool:      pool,
		renderer:  renderer,
		extractor: extractor,
		logger:    logger,
		now:       time.Now,
	}
}

// Resolve serves a fresh cache entry when one exists, otherwise renders the
// product page up to MaxAttempts times. Every outcome is returned as data.
func (uc *resolverUseCase) Resolve(ctx context.Context, req entity.ResolutionRequest) entity.ResolutionResult {
	start := time.Now()
	res := uc.resolve(ctx, req)

	outcome := string(res.Status)
	if res.Cached {
		outcome = "cache_hit"
	}
	metrics.ResolutionsTotal.WithLabelValues(outcome).Inc()
	metrics.ResolutionDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return res
}

func (uc *resolverUseCase) resolve(ctx context.Context, req entity.ResolutionRequest) entity.ResolutionResult {
	log := uc.logger.With(zap.String("store", req.Store), zap.String("reference", req.Reference))

	pageURL, err := utils.ProductURL(uc.cfg.StoreDomain, req.Store, req.Reference)
	if err != nil {
		log.Warn("rejecting malformed request", zap.Error(err))
		return entity.Failed(req.Reference, err.Error())
	}

	entry, err := uc.cache.Get(ctx, req.Store, req.Reference)
	if err != nil {
		log.Warn("cache lookup failed, resolving from origin", zap.Error(err))
	} else if entry.IsFresh(uc.now(), uc.cfg.CacheTTL) {
		res := entity.Success(req.Reference, entry.Link, entry.Name)
		res.Cached = true
		return res
	}

	if uc.cfg.ResolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.cfg.ResolveTimeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 1; attempt <= uc.cfg.MaxAttempts; attempt++ {
		ex, err := uc.attempt(ctx, pageURL, req.Reference)
		metrics.AttemptsTotal.WithLabelValues(attemptResult(err)).Inc()

		switch {
		case err == nil:
			uc.handleSuccess(ctx, log, req, ex)
			res := entity.Success(req.Reference, ex.Link, ex.Name)
			res.Attempts = attempt
			return res
		case errors.Is(err, repository.ErrNotFound):
			log.Info("product not found", zap.Int("attempt", attempt), zap.Error(err))
			res := entity.NotFound(req.Reference)
			res.Attempts = attempt
			return res
		case errors.Is(err, repository.ErrProxyPoolUnavailable):
			log.Error("no egress credential available", zap.Error(err))
			return uc.handleFailure(ctx, req, attempt, "proxy pool unavailable")
		case errors.Is(err, repository.ErrRendererClosed):
			log.Info("renderer shut down mid-resolution", zap.Int("attempt", attempt), zap.Error(err))
			return aborted(req, attempt, "service shutting down")
		}

		lastErr = err
		if ctx.Err() != nil {
			return aborted(req, attempt, "resolution aborted: "+ctx.Err().Error())
		}
		log.Warn("attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", uc.cfg.MaxAttempts),
			zap.Error(err),
		)
		if attempt < uc.cfg.MaxAttempts {
			if err := sleep(ctx, uc.cfg.RetryBackoff); err != nil {
				return aborted(req, attempt, "resolution aborted: "+err.Error())
			}
		}
	}

	log.Error("giving up on reference", zap.Int("attempts", uc.cfg.MaxAttempts), zap.Error(lastErr))
	return uc.handleFailure(ctx, req, uc.cfg.MaxAttempts, reasonMaxAttempts)
}

// attempt runs one navigate, classify, extract cycle. The session is closed
// on every return path.
func (uc *resolverUseCase) attempt(ctx context.Context, pageURL, reference string) (Extraction, error) {
	if err := uc.pool.EnsureFresh(ctx); err != nil {
		return Extraction{}, err
	}
	cred, err := uc.pool.Pick()
	if err != nil {
		return Extraction{}, err
	}

	session, err := uc.renderer.OpenSession(ctx, &cred)
	if err != nil {
		return Extraction{}, fmt.Errorf("%w: open session via %s: %w", repository.ErrNavigationFailed, cred.Addr(), err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			uc.logger.Debug("closing session", zap.Error(err))
		}
	}()

	resp, err := session.Navigate(ctx, pageURL)
	if err != nil {
		return Extraction{}, fmt.Errorf("%w: %w", repository.ErrNavigationFailed, err)
	}
	if resp != nil && resp.Status >= 400 {
		return Extraction{}, fmt.Errorf("%w: status %d", repository.ErrNotFound, resp.Status)
	}

	noResults, err := uc.extractor.IsNoResults(ctx, session)
	if err != nil {
		return Extraction{}, fmt.Errorf("%w: read body: %w", repository.ErrNavigationFailed, err)
	}
	if noResults {
		return Extraction{}, fmt.Errorf("%w: no results page", repository.ErrNotFound)
	}

	if err := session.WaitFor(ctx, uc.extractor.ContentMarker(), uc.cfg.ContentTimeout); err != nil {
		// Slow "no results" pages only show the phrase after client rendering.
		if noResults, _ := uc.extractor.IsNoResults(ctx, session); noResults {
			return Extraction{}, fmt.Errorf("%w: no results page", repository.ErrNotFound)
		}
		return Extraction{}, err
	}

	return uc.extractor.Extract(ctx, session, pageURL, reference)
}

func (uc *resolverUseCase) handleSuccess(ctx context.Context, log *zap.Logger, req entity.ResolutionRequest, ex Extraction) {
	// Cache writes outlive the caller's deadline.
	ctx = context.WithoutCancel(ctx)
	entry := &entity.CacheEntry{
		Store:     req.Store,
		Reference: req.Reference,
		Link:      ex.Link,
		Name:      ex.Name,
		FetchedAt: uc.now(),
	}
	if err := uc.cache.Put(ctx, entry); err != nil {
		log.Error("failed to write cache entry", zap.Error(err))
	}
	if uc.failures != nil {
		if err := uc.failures.Delete(ctx, req.Store, req.Reference); err != nil {
			// Not critical: the failure log is informational.
			log.Warn("failed to clear failure record", zap.Error(err))
		}
	}
	log.Info("reference resolved", zap.String("link", ex.Link), zap.String("name", ex.Name))
}

func (uc *resolverUseCase) handleFailure(ctx context.Context, req entity.ResolutionRequest, attempts int, reason string) entity.ResolutionResult {
	if uc.failures != nil {
		record := &entity.FailedResolution{
			Store:                req.Store,
			Reference:            req.Reference,
			FailureReason:        reason,
			Attempts:             attempts,
			LastAttemptTimestamp: uc.now(),
		}
		if err := uc.failures.SaveOrUpdate(context.WithoutCancel(ctx), record); err != nil {
			uc.logger.Warn("failed to record failed resolution",
				zap.String("store", req.Store),
				zap.String("reference", req.Reference),
				zap.Error(err),
			)
		}
	}
	res := entity.Failed(req.Reference, reason)
	res.Attempts = attempts
	return res
}

// aborted reports a resolution cut short by cancellation or shutdown. The
// reference never exhausted its budget, so no failure record is kept.
func aborted(req entity.ResolutionRequest, attempts int, reason string) entity.ResolutionResult {
	res := entity.Failed(req.Reference, reason)
	res.Attempts = attempts
	return res
}

func attemptResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, repository.ErrNotFound):
		return "not_found"
	case errors.Is(err, repository.ErrRendererClosed):
		return "shutdown"
	case errors.Is(err, repository.ErrRenderTimeout):
		return "timeout"
	case errors.Is(err, repository.ErrNavigationFailed):
		return "navigation"
	case errors.Is(err, repository.ErrExtractionFailed):
		return "extraction"
	case errors.Is(err, repository.ErrProxyPoolUnavailable):
		return "proxy"
	default:
		return "unknown"
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
