package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type failingCache struct{}

func (failingCache) Get(context.Context, string, interface{}) error { return errors.New("redis down") }
func (failingCache) Set(context.Context, string, interface{}, time.Duration) error {
	return errors.New("redis down")
}
func (failingCache) DeleteByPattern(context.Context, string) error { return errors.New("redis down") }
func (failingCache) Incr(context.Context, string) (int64, error)   { return 0, errors.New("redis down") }

func TestCacheServiceRoundTrip(t *testing.T) {
	metrics := NewMetricsService()
	svc := NewCacheService(newMemoryCache(), metrics, 0, nil, true)
	ctx := context.Background()

	var out map[string]int
	hit, err := svc.Get(ctx, "k", &out)
	require.NoError(t, err)
	require.False(t, hit)

	require.NoError(t, svc.Set(ctx, "k", map[string]int{"a": 1}, 0))
	hit, err = svc.Get(ctx, "k", &out)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, 1, out["a"])

	snap := metrics.Snapshot()
	require.Equal(t, uint64(1), snap.CacheHits)
	require.Equal(t, uint64(1), snap.CacheMisses)
}

func TestCacheServiceDisabledAndNil(t *testing.T) {
	var nilSvc *CacheService
	hit, err := nilSvc.Get(context.Background(), "k", nil)
	require.NoError(t, err)
	require.False(t, hit)
	require.NoError(t, nilSvc.Invalidate(context.Background(), "*"))

	disabled := NewCacheService(newMemoryCache(), nil, time.Minute, nil, false)
	require.False(t, disabled.Enabled())
	require.NoError(t, disabled.Set(context.Background(), "k", 1, 0))
}

func TestCacheServiceBackendFailure(t *testing.T) {
	svc := NewCacheService(failingCache{}, nil, time.Minute, nil, true)
	var out int
	hit, err := svc.Get(context.Background(), "k", &out)
	require.Error(t, err)
	require.False(t, hit)
	require.Error(t, svc.Invalidate(context.Background(), "summary:*"))
}
