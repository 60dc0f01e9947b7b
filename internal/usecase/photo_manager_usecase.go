package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/photo-resolver/internal/entity"
	"github.com/user/photo-resolver/internal/repository"
	"github.com/user/photo-resolver/pkg/utils"
)

// PhotoManager defines the interface for resolving batches and inspecting the cache.
type PhotoManager interface {
	// ResolveBatch returns one result per reference, in input order.
	ResolveBatch(ctx context.Context, store string, references []string) []entity.ResolutionResult
	// GetStatus reports the cached entry and the last recorded failure for a reference.
	GetStatus(ctx context.Context, store, reference string) (*entity.ReferenceStatus, error)
}

type photoManagerUseCase struct {
	resolver Resolver
	cache    repository.CacheRepository
	failures repository.FailureRepository
	limit    int
	ttl      time.Duration
	logger   *zap.Logger
}

// NewPhotoManager creates a new PhotoManager use case. limit bounds how many
// references of one batch resolve concurrently. failures may be nil.
func NewPhotoManager(
	resolver Resolver,
	cache repository.CacheRepository,
	failures repository.FailureRepository,
	limit int,
	ttl time.Duration,
	logger *zap.Logger,
) PhotoManager {
	if limit < 1 {
		limit = 1
	}
	return &photoManagerUseCase{
		resolver: resolver,
		cache:    cache,
		failures: failures,
		limit:    limit,
		ttl:      ttl,
		logger:   logger,
	}
}

func (uc *photoManagerUseCase) ResolveBatch(ctx context.Context, store string, references []string) []entity.ResolutionResult {
	results := make([]entity.ResolutionResult, len(references))

	var g errgroup.Group
	g.SetLimit(uc.limit)
	for i, ref := range references {
		g.Go(func() error {
			results[i] = uc.resolveIsolated(ctx, entity.ResolutionRequest{Store: store, Reference: ref})
			return nil
		})
	}
	_ = g.Wait()

	uc.logger.Info("batch resolved",
		zap.String("store", store),
		zap.Int("references", len(references)),
	)
	return results
}

// resolveIsolated keeps a panicking resolution from taking its siblings down.
func (uc *photoManagerUseCase) resolveIsolated(ctx context.Context, req entity.ResolutionRequest) (res entity.ResolutionResult) {
	defer func() {
		if r := recover(); r != nil {
			uc.logger.Error("resolution panicked",
				zap.String("store", req.Store),
				zap.String("reference", req.Reference),
				zap.Any("panic", r),
			)
			res = entity.Failed(req.Reference, "internal error")
		}
	}()
	res = uc.resolver.Resolve(ctx, req)
	res.Reference = req.Reference
	return res
}

func (uc *photoManagerUseCase) GetStatus(ctx context.Context, store, reference string) (*entity.ReferenceStatus, error) {
	if !utils.ValidStore(store) || !utils.ValidReference(reference) {
		return nil, fmt.Errorf("%w: store %q reference %q", repository.ErrInvalidInput, store, reference)
	}

	status := &entity.ReferenceStatus{
		Store:         store,
		Reference:     reference,
		CurrentStatus: entity.ReferenceUnknown,
	}

	entry, err := uc.cache.Get(ctx, store, reference)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		status.Entry = entry
		status.CurrentStatus = entity.ReferenceStale
		if entry.IsFresh(time.Now(), uc.ttl) {
			status.CurrentStatus = entity.ReferenceFresh
		}
	}

	if uc.failures != nil {
		failure, err := uc.failures.Get(ctx, store, reference)
		if err != nil {
			// Not critical: the cache answer is still useful.
			uc.logger.Warn("failed to read failure record",
				zap.String("store", store),
				zap.String("reference", reference),
				zap.Error(err),
			)
		}
		status.LastFailure = failure
		if failure != nil && entry == nil {
			status.CurrentStatus = entity.ReferenceFailed
		}
	}

	return status, nil
}
