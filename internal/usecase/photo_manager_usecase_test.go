package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/user/photo-resolver/internal/adapter/memory"
	"github.com/user/photo-resolver/internal/entity"
	"github.com/user/photo-resolver/internal/repository"
)

// resolverFunc adapts a function to the Resolver interface.
type resolverFunc func(ctx context.Context, req entity.ResolutionRequest) entity.ResolutionResult

func (f resolverFunc) Resolve(ctx context.Context, req entity.ResolutionRequest) entity.ResolutionResult {
	return f(ctx, req)
}

func TestResolveBatch_PreservesOrderAndIsolation(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		delays := map[string]time.Duration{"A": 3 * time.Second, "B": 2 * time.Second, "C": time.Second}
		r := resolverFunc(func(_ context.Context, req entity.ResolutionRequest) entity.ResolutionResult {
			time.Sleep(delays[req.Reference])
			if req.Reference == "B" {
				return entity.Failed(req.Reference, "max attempts exceeded")
			}
			return entity.Success(req.Reference, "https://cdn/"+req.Reference+".jpg", "Item "+req.Reference)
		})
		m := NewPhotoManager(r, memory.NewCacheRepo(), nil, 3, testTTL, zaptest.NewLogger(t))

		got := m.ResolveBatch(context.Background(), "acme", []string{"A", "B", "C"})

		require.Len(t, got, 3)
		assert.Equal(t, entity.Success("A", "https://cdn/A.jpg", "Item A"), got[0])
		assert.Equal(t, entity.StatusFailed, got[1].Status)
		assert.Equal(t, "B", got[1].Reference)
		assert.Equal(t, entity.Success("C", "https://cdn/C.jpg", "Item C"), got[2])
	})
}

func TestResolveBatch_DuplicatesAreIndependent(t *testing.T) {
	var calls atomic.Int32
	r := resolverFunc(func(_ context.Context, req entity.ResolutionRequest) entity.ResolutionResult {
		calls.Add(1)
		return entity.Success(req.Reference, "l", "n")
	})
	m := NewPhotoManager(r, memory.NewCacheRepo(), nil, 2, testTTL, zaptest.NewLogger(t))

	got := m.ResolveBatch(context.Background(), "acme", []string{"X", "X", "Y", "X"})

	assert.Len(t, got, 4)
	assert.Equal(t, int32(4), calls.Load())
	for i, ref := range []string{"X", "X", "Y", "X"} {
		assert.Equal(t, ref, got[i].Reference)
	}
}

func TestResolveBatch_BoundsConcurrency(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		const limit = 2
		var mu sync.Mutex
		inFlight, peak := 0, 0
		r := resolverFunc(func(_ context.Context, req entity.ResolutionRequest) entity.ResolutionResult {
			mu.Lock()
			inFlight++
			peak = max(peak, inFlight)
			mu.Unlock()

			time.Sleep(time.Second)

			mu.Lock()
			inFlight--
			mu.Unlock()
			return entity.Success(req.Reference, "l", "n")
		})
		m := NewPhotoManager(r, memory.NewCacheRepo(), nil, limit, testTTL, zaptest.NewLogger(t))
		start := time.Now()

		got := m.ResolveBatch(context.Background(), "acme", []string{"1", "2", "3", "4", "5"})

		assert.Len(t, got, 5)
		assert.Equal(t, limit, peak)
		assert.Equal(t, 3*time.Second, time.Since(start))
	})
}

func TestResolveBatch_PanicIsContained(t *testing.T) {
	r := resolverFunc(func(_ context.Context, req entity.ResolutionRequest) entity.ResolutionResult {
		if req.Reference == "boom" {
			panic("renderer exploded")
		}
		return entity.Success(req.Reference, "l", "n")
	})
	m := NewPhotoManager(r, memory.NewCacheRepo(), nil, 4, testTTL, zaptest.NewLogger(t))

	got := m.ResolveBatch(context.Background(), "acme", []string{"ok1", "boom", "ok2"})

	assert.Equal(t, entity.StatusSuccess, got[0].Status)
	assert.Equal(t, entity.Failed("boom", "internal error"), got[1])
	assert.Equal(t, entity.StatusSuccess, got[2].Status)
}

func TestResolveBatch_EmptyBatch(t *testing.T) {
	m := NewPhotoManager(resolverFunc(nil), memory.NewCacheRepo(), nil, 4, testTTL, zaptest.NewLogger(t))

	assert.Empty(t, m.ResolveBatch(context.Background(), "acme", nil))
}

// X1 is cached and fresh, X2 fails its first attempt and succeeds on the second.
func TestResolveBatch_EndToEnd(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		cache := memory.NewCacheRepo()
		require.NoError(t, cache.Put(context.Background(), &entity.CacheEntry{
			Store: "acme", Reference: "X1", Link: "https://cdn/X1.jpg", Name: "Cached X1", FetchedAt: time.Now().Add(-time.Minute),
		}))

		var x1Done time.Duration
		start := time.Now()
		renderer := newFakeRenderer(func(url string, attempt int) fakePage {
			assert.Equal(t, "X2", refFromURL(url))
			if attempt == 1 {
				return fakePage{html: "<html><body>erro interno</body></html>"}
			}
			return fakePage{html: productHTML("Fresh X2", "https://cdn/X2.jpg")}
		})
		resolver := NewResolver(ResolverConfig{
			StoreDomain:    testDomain,
			CacheTTL:       testTTL,
			MaxAttempts:    3,
			RetryBackoff:   testBackoff,
			ContentTimeout: testWait,
		}, cache, nil, &fakePool{}, renderer, testExtractor(), zaptest.NewLogger(t))
		timed := resolverFunc(func(ctx context.Context, req entity.ResolutionRequest) entity.ResolutionResult {
			res := resolver.Resolve(ctx, req)
			if req.Reference == "X1" {
				x1Done = time.Since(start)
			}
			return res
		})
		m := NewPhotoManager(timed, cache, nil, 4, testTTL, zaptest.NewLogger(t))

		got := m.ResolveBatch(context.Background(), "acme", []string{"X1", "X2"})

		require.Len(t, got, 2)
		assert.Equal(t, "X1", got[0].Reference)
		assert.True(t, got[0].Cached)
		assert.Equal(t, "Cached X1", got[0].Name)
		assert.Zero(t, x1Done)

		assert.Equal(t, "X2", got[1].Reference)
		assert.Equal(t, entity.StatusSuccess, got[1].Status)
		assert.Equal(t, "Fresh X2", got[1].Name)
		assert.Equal(t, 2, got[1].Attempts)
		assert.Equal(t, testBackoff, time.Since(start))
		assert.Equal(t, 2, renderer.Visits(productURL("X2")))
	})
}

func TestGetStatus(t *testing.T) {
	ctx := context.Background()
	cache := memory.NewCacheRepo()
	failures := &fakeFailures{}
	m := NewPhotoManager(resolverFunc(nil), cache, failures, 1, time.Hour, zaptest.NewLogger(t))

	status, err := m.GetStatus(ctx, "acme", "X1")
	require.NoError(t, err)
	assert.Equal(t, entity.ReferenceUnknown, status.CurrentStatus)
	assert.Nil(t, status.Entry)

	require.NoError(t, failures.SaveOrUpdate(ctx, &entity.FailedResolution{Store: "acme", Reference: "X1", FailureReason: "max attempts exceeded"}))
	status, err = m.GetStatus(ctx, "acme", "X1")
	require.NoError(t, err)
	assert.Equal(t, entity.ReferenceFailed, status.CurrentStatus)
	require.NotNil(t, status.LastFailure)
	assert.Equal(t, "max attempts exceeded", status.LastFailure.FailureReason)

	require.NoError(t, failures.Delete(ctx, "acme", "X1"))
	require.NoError(t, cache.Put(ctx, &entity.CacheEntry{Store: "acme", Reference: "X1", Link: "l", FetchedAt: time.Now()}))
	status, err = m.GetStatus(ctx, "acme", "X1")
	require.NoError(t, err)
	assert.Equal(t, entity.ReferenceFresh, status.CurrentStatus)
	assert.Equal(t, "l", status.Entry.Link)
	assert.Nil(t, status.LastFailure)

	require.NoError(t, cache.Put(ctx, &entity.CacheEntry{Store: "acme", Reference: "X1", Link: "l", FetchedAt: time.Now().Add(-2 * time.Hour)}))
	status, err = m.GetStatus(ctx, "acme", "X1")
	require.NoError(t, err)
	assert.Equal(t, entity.ReferenceStale, status.CurrentStatus)

	_, err = m.GetStatus(ctx, "bad.store", "X1")
	assert.ErrorIs(t, err, repository.ErrInvalidInput)
}
