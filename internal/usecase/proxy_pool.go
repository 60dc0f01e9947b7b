package usecase

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/user/photo-resolver/internal/entity"
	"github.com/user/photo-resolver/internal/repository"
	"github.com/user/photo-resolver/pkg/metrics"
)

// maxCredentialPages bounds pagination against a source that never reports the last page.
const maxCredentialPages = 1000

// poolSnapshot is one generation of the pool, identified by when it was fetched.
type poolSnapshot struct {
	version     time.Time
	credentials []entity.ProxyCredential
}

// ProxyPool hands out egress credentials. The set is replaced wholesale on
// refresh and selection is uniform-random with no health tracking.
type ProxyPool struct {
	source   repository.CredentialSource
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	current atomic.Pointer[poolSnapshot]
	group   singleflight.Group
}

// NewProxyPool creates a pool that refreshes from source at most once per interval.
func NewProxyPool(source repository.CredentialSource, interval time.Duration, logger *zap.Logger) *ProxyPool {
	return &ProxyPool{
		source:   source,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Refresh pages the credential source until exhaustion and installs the
// result. An empty result is ErrProxyPoolUnavailable and leaves the current set untouched.
func (p *ProxyPool) Refresh(ctx context.Context) ([]entity.ProxyCredential, error) {
	var creds []entity.ProxyCredential
	for page := 1; ; page++ {
		if page > maxCredentialPages {
			return nil, fmt.Errorf("%w: credential source exceeded %d pages", repository.ErrProxyPoolUnavailable, maxCredentialPages)
		}
		res, err := p.source.ListCredentials(ctx, page)
		if err != nil {
			metrics.ProxyPoolRefreshes.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("%w: list credentials page %d: %v", repository.ErrProxyPoolUnavailable, page, err)
		}
		creds = append(creds, res.Credentials...)
		if !res.HasNext || len(res.Credentials) == 0 {
			break
		}
	}

	if len(creds) == 0 {
		metrics.ProxyPoolRefreshes.WithLabelValues("empty").Inc()
		return nil, fmt.Errorf("%w: credential source returned no proxies", repository.ErrProxyPoolUnavailable)
	}

	p.current.Store(&poolSnapshot{version: p.now(), credentials: creds})
	metrics.ProxyPoolRefreshes.WithLabelValues("success").Inc()
	metrics.ProxyPoolSize.Set(float64(len(creds)))
	p.logger.Info("proxy pool refreshed", zap.Int("size", len(creds)))
	return creds, nil
}

// EnsureFresh refreshes the pool when its current generation is older than
// the refresh interval. Concurrent callers share one in-flight refresh. When
// a refresh fails but a stale set exists, the stale set stays in service.
func (p *ProxyPool) EnsureFresh(ctx context.Context) error {
	snap := p.current.Load()
	if snap != nil && p.now().Sub(snap.version) < p.interval {
		return nil
	}

	_, err, _ := p.group.Do("refresh", func() (any, error) {
		// Another caller may have finished a refresh while we were checking.
		if s := p.current.Load(); s != nil && p.now().Sub(s.version) < p.interval {
			return nil, nil
		}
		return p.Refresh(context.WithoutCancel(ctx))
	})
	if err == nil {
		return nil
	}
	if snap != nil {
		p.logger.Warn("proxy pool refresh failed, keeping stale set",
			zap.Time("version", snap.version),
			zap.Error(err),
		)
		return nil
	}
	return err
}

// Pick returns a uniformly random credential from the current set.
func (p *ProxyPool) Pick() (entity.ProxyCredential, error) {
	snap := p.current.Load()
	if snap == nil || len(snap.credentials) == 0 {
		return entity.ProxyCredential{}, repository.ErrProxyPoolUnavailable
	}
	return snap.credentials[rand.IntN(len(snap.credentials))], nil
}

// Size returns the number of credentials in the current set.
func (p *ProxyPool) Size() int {
	if snap := p.current.Load(); snap != nil {
		return len(snap.credentials)
	}
	return 0
}
