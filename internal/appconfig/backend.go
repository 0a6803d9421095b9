package appconfig

import (
	"context"
	"errors"
	"fmt"

	"github.com/arloliu/imgpool/backend"
	"github.com/arloliu/imgpool/backend/cache"
	"github.com/arloliu/imgpool/backend/openai"
	"github.com/arloliu/imgpool/backend/pattern"
	"github.com/arloliu/imgpool/types"
)

// BuildBackend assembles the backend described by cfg: the generator, its
// lifetime management and, when a cache URL is set, the Redis cache in front.
//
// Returns:
//   - types.Backend: The assembled backend
//   - func() error: Releases the backend instance and the Redis client
//   - error: Unknown kind, failed warm-up or unreachable Redis
func BuildBackend(ctx context.Context, cfg BackendConfig, logger types.Logger, mc types.MetricsCollector) (types.Backend, func() error, error) {
	lifetime, err := backend.ParseLifetime(cfg.Lifetime)
	if err != nil {
		return nil, nil, err
	}

	var factory backend.Factory
	switch cfg.Kind {
	case KindPattern, "":
		opts, err := cfg.Pattern.Options()
		if err != nil {
			return nil, nil, err
		}
		factory = func(context.Context) (types.Backend, error) {
			return pattern.New(opts...), nil
		}
	case KindOpenAI:
		factory = func(context.Context) (types.Backend, error) {
			return openai.New(cfg.OpenAI)
		}
	default:
		return nil, nil, fmt.Errorf("unknown backend kind %q", cfg.Kind)
	}

	managed := backend.NewManaged(factory, lifetime)
	if cfg.Warm {
		if err := managed.Warm(ctx); err != nil {
			return nil, nil, err
		}
	}
	logger.Info("backend ready", "kind", cfg.Kind, "lifetime", string(lifetime), "cache", cfg.Cache.URL != "")

	if cfg.Cache.URL == "" {
		return managed, managed.Close, nil
	}

	rdb, err := cache.Connect(ctx, cfg.Cache.URL)
	if err != nil {
		_ = managed.Close()
		return nil, nil, err
	}

	cached := cache.New(rdb, managed,
		cache.WithTTL(cfg.Cache.TTL),
		cache.WithKeyPrefix(cfg.Cache.KeyPrefix),
		cache.WithMetrics(mc),
		cache.WithLogger(logger),
	)
	closeAll := func() error {
		return errors.Join(managed.Close(), rdb.Close())
	}

	return cached, closeAll, nil
}
