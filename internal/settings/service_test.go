package settings

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	mu    sync.Mutex
	cfg   *SystemConfiguration
	gets  int
	saves int
}

func (r *memoryRepo) Get(context.Context) (SystemConfiguration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	if r.cfg == nil {
		return SystemConfiguration{}, ErrNotConfigured
	}
	return *r.cfg, nil
}

func (r *memoryRepo) Save(_ context.Context, cfg SystemConfiguration) (SystemConfiguration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	cfg.UpdatedAt = time.Now().UTC()
	r.cfg = &cfg
	return cfg, nil
}

func newTestService(t *testing.T, repo RepositoryPort) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(repo, NewCache(client, time.Minute), nil)
}

func TestCurrentDefaultsWhenMissing(t *testing.T) {
	svc := newTestService(t, &memoryRepo{})
	cfg, err := svc.Current(context.Background())
	require.NoError(t, err)
	require.False(t, cfg.AutoReorder)
	require.Equal(t, DefaultLowStockThreshold, cfg.LowStockThreshold)
}

func TestCurrentCachesUntilUpdate(t *testing.T) {
	repo := &memoryRepo{cfg: &SystemConfiguration{AutoReorder: true, LowStockThreshold: 5}}
	svc := newTestService(t, repo)
	ctx := context.Background()

	cfg, err := svc.Current(ctx)
	require.NoError(t, err)
	require.True(t, cfg.AutoReorder)
	_, err = svc.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, repo.gets)

	_, err = svc.Update(ctx, SystemConfiguration{AutoReorder: false, LowStockThreshold: 7})
	require.NoError(t, err)

	cfg, err = svc.Current(ctx)
	require.NoError(t, err)
	require.False(t, cfg.AutoReorder)
	require.Equal(t, 7, cfg.LowStockThreshold)
	require.Equal(t, 2, repo.gets)
}

func TestUpdateRejectsNegativeThreshold(t *testing.T) {
	repo := &memoryRepo{}
	svc := newTestService(t, repo)
	_, err := svc.Update(context.Background(), SystemConfiguration{LowStockThreshold: -1})
	require.ErrorIs(t, err, ErrInvalidThreshold)
	require.Zero(t, repo.saves)
}

func TestCurrentWithoutCache(t *testing.T) {
	repo := &memoryRepo{cfg: &SystemConfiguration{AutoReorder: true, LowStockThreshold: 3}}
	svc := NewService(repo, nil, nil)
	cfg, err := svc.Current(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, cfg.LowStockThreshold)
}

type gatedRepo struct {
	*memoryRepo
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (r *gatedRepo) Get(ctx context.Context) (SystemConfiguration, error) {
	cfg, err := r.memoryRepo.Get(ctx)
	r.once.Do(func() {
		close(r.entered)
		<-r.release
	})
	return cfg, err
}

func TestUpdateDuringLoadKeepsStaleValueOutOfCache(t *testing.T) {
	repo := &gatedRepo{
		memoryRepo: &memoryRepo{cfg: &SystemConfiguration{AutoReorder: true, LowStockThreshold: 5}},
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	svc := newTestService(t, repo)
	ctx := context.Background()

	loaded := make(chan SystemConfiguration, 1)
	go func() {
		cfg, _ := svc.Current(ctx)
		loaded <- cfg
	}()
	<-repo.entered
	_, err := svc.Update(ctx, SystemConfiguration{AutoReorder: false, LowStockThreshold: 5})
	require.NoError(t, err)
	close(repo.release)
	require.True(t, (<-loaded).AutoReorder)

	cfg, err := svc.Current(ctx)
	require.NoError(t, err)
	require.False(t, cfg.AutoReorder)
}
