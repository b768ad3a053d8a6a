package settings

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// RepositoryPort abstracts configuration persistence.
type RepositoryPort interface {
	Get(ctx context.Context) (SystemConfiguration, error)
	Save(ctx context.Context, cfg SystemConfiguration) (SystemConfiguration, error)
}

// Service serves the configuration read on every receipt and sweep.
type Service struct {
	repo   RepositoryPort
	cache  *Cache
	logger *slog.Logger
	group  singleflight.Group

	// generation advances on every Update; loads that straddle one never
	// leave their result in the cache.
	generation atomic.Uint64
}

// NewService builds Service. cache may be nil.
func NewService(repo RepositoryPort, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger}
}

// Current returns the active configuration, defaults when none is stored.
func (s *Service) Current(ctx context.Context) (SystemConfiguration, error) {
	if cfg, ok, err := s.cache.Fetch(ctx); err != nil {
		s.logger.Warn("settings cache read", slog.Any("error", err))
	} else if ok {
		return cfg, nil
	}
	ch := s.group.DoChan(cacheKey, func() (interface{}, error) {
		return s.load(ctx)
	})
	select {
	case <-ctx.Done():
		return SystemConfiguration{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return SystemConfiguration{}, res.Err
		}
		return res.Val.(SystemConfiguration), nil
	}
}

func (s *Service) load(ctx context.Context) (SystemConfiguration, error) {
	gen := s.generation.Load()
	cfg, err := s.repo.Get(ctx)
	if errors.Is(err, ErrNotConfigured) {
		return Defaults(), nil
	}
	if err != nil {
		return SystemConfiguration{}, err
	}
	if s.generation.Load() != gen {
		return cfg, nil
	}
	if err := s.cache.Store(ctx, cfg); err != nil {
		s.logger.Warn("settings cache write", slog.Any("error", err))
		return cfg, nil
	}
	if s.generation.Load() != gen {
		// An update landed between the check and the write.
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.Warn("settings cache invalidate", slog.Any("error", err))
		}
	}
	return cfg, nil
}

// Update persists the configuration and drops the cached copy.
func (s *Service) Update(ctx context.Context, cfg SystemConfiguration) (SystemConfiguration, error) {
	if err := cfg.Validate(); err != nil {
		return SystemConfiguration{}, err
	}
	saved, err := s.repo.Save(ctx, cfg)
	if err != nil {
		return SystemConfiguration{}, err
	}
	s.generation.Add(1)
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("settings cache invalidate", slog.Any("error", err))
	}
	s.group.Forget(cacheKey)
	return saved, nil
}
