package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/activity-points-api/internal/models"
	appErrors "github.com/noah-isme/activity-points-api/pkg/errors"
)

type memoryCache struct {
	mu          sync.Mutex
	data        map[string][]byte
	invalidated []string
}

func newMemoryCache() *memoryCache { return &memoryCache{data: map[string][]byte{}} }

func (m *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[key] = raw
	m.mu.Unlock()
	return nil
}

func (m *memoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, pattern)
	m.data = map[string][]byte{}
	return nil
}

func TestCacheServiceRememberLoadsOnceThenHits(t *testing.T) {
	cache := NewCacheService(newMemoryCache(), NewMetricsService(), time.Minute, zap.NewNop(), true)
	var loads int32
	load := func(context.Context) (interface{}, error) {
		atomic.AddInt32(&loads, 1)
		return []models.StudentPoints{{USN: "CS001", TotalPoints: 10}}, nil
	}

	var first []models.StudentPoints
	hit, err := cache.Remember(context.Background(), "leaderboard", 0, &first, load)
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, first, 1)

	var second []models.StudentPoints
	hit, err = cache.Remember(context.Background(), "leaderboard", 0, &second, load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))
}

func TestCacheServiceRememberDisabledAlwaysLoads(t *testing.T) {
	cache := NewCacheService(nil, nil, time.Minute, zap.NewNop(), false)
	var out []models.StudentPoints
	for i := 0; i < 2; i++ {
		hit, err := cache.Remember(context.Background(), "k", 0, &out, func(context.Context) (interface{}, error) {
			return []models.StudentPoints{{USN: "CS002"}}, nil
		})
		require.NoError(t, err)
		assert.False(t, hit)
	}
	assert.Equal(t, "CS002", out[0].USN)
}

func TestCacheServiceRememberPropagatesLoadError(t *testing.T) {
	cache := NewCacheService(newMemoryCache(), nil, time.Minute, zap.NewNop(), true)
	var out []models.StudentPoints
	_, err := cache.Remember(context.Background(), "k", 0, &out, func(context.Context) (interface{}, error) {
		return nil, errors.New("db down")
	})
	require.EqualError(t, err, "db down")
}

func TestCacheServiceInvalidate(t *testing.T) {
	repo := newMemoryCache()
	cache := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)
	require.NoError(t, cache.Set(context.Background(), "leaderboard:20", []int{1}, 0))
	require.NoError(t, cache.Invalidate(context.Background(), "leaderboard:*"))
	assert.Equal(t, []string{"leaderboard:*"}, repo.invalidated)

	var out []int
	hit, err := cache.Get(context.Background(), "leaderboard:20", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}
