// Package cache provides a backend decorator that stores successful images in
// Redis, keyed by a hash of the generation parameters.
//
// Generation is deterministic for a given seed, so identical requests can be
// answered from the cache. Redis errors never fail a job; they are logged and
// treated as a miss.
package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zeebo/xxh3"

	"github.com/arloliu/imgpool/internal/logging"
	"github.com/arloliu/imgpool/internal/metrics"
	"github.com/arloliu/imgpool/types"
)

const (
	// DefaultKeyPrefix prefixes every cache key.
	DefaultKeyPrefix = "imgpool:img:"

	// DefaultTTL is how long an image stays cached.
	DefaultTTL = 24 * time.Hour

	fieldData      = "data"
	fieldMediaType = "media_type"

	storeTimeout = 5 * time.Second
)

// Config configures the Redis cache.
type Config struct {
	// URL is a redis:// URL. An empty URL disables caching.
	URL string `yaml:"url" env:"IMGPOOL_CACHE_URL"`

	// TTL is the lifetime of a cached image. Default: 24h.
	TTL time.Duration `yaml:"ttl" env:"IMGPOOL_CACHE_TTL"`

	// KeyPrefix namespaces the keys. Default: "imgpool:img:".
	KeyPrefix string `yaml:"keyPrefix" env:"IMGPOOL_CACHE_KEY_PREFIX"`
}

// Connect parses url, opens a client and pings it.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// Backend is a caching types.Backend decorator.
type Backend struct {
	client  redis.UniversalClient
	next    types.Backend
	ttl     time.Duration
	prefix  string
	metrics types.MetricsCollector
	logger  types.Logger
}

var _ types.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithTTL sets the cache entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(b *Backend) {
		if ttl > 0 {
			b.ttl = ttl
		}
	}
}

// WithKeyPrefix sets the key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(b *Backend) {
		if prefix != "" {
			b.prefix = prefix
		}
	}
}

// WithMetrics records hits and misses.
func WithMetrics(m types.MetricsCollector) Option {
	return func(b *Backend) {
		if m != nil {
			b.metrics = m
		}
	}
}

// WithLogger sets the logger for degraded Redis operations.
func WithLogger(l types.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// New wraps next with a Redis cache.
//
// Parameters:
//   - client: Redis client (single node, cluster or ring)
//   - next: Backend called on a miss
//   - opts: TTL, key prefix, metrics and logger
//
// Example:
//
//	rdb, err := cache.Connect(ctx, "redis://localhost:6379/0")
//	if err != nil {
//	    return err
//	}
//	b := cache.New(rdb, pattern.New(), cache.WithTTL(time.Hour))
func New(client redis.UniversalClient, next types.Backend, opts ...Option) *Backend {
	b := &Backend{
		client:  client,
		next:    next,
		ttl:     DefaultTTL,
		prefix:  DefaultKeyPrefix,
		metrics: metrics.NewNop(),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Key returns the cache key of params.
func (b *Backend) Key(params types.GenerateParams) string {
	h := xxh3.New()
	var num [20]byte
	for _, v := range []int64{params.Seed, int64(params.NumSteps), int64(params.Height), int64(params.Width)} {
		_, _ = h.Write(strconv.AppendInt(num[:0], v, 10))
		_, _ = h.Write([]byte{0})
	}
	_, _ = h.WriteString(params.Prompt)

	sum := h.Sum128().Bytes()

	return b.prefix + hex.EncodeToString(sum[:])
}

// Generate implements types.Backend.
func (b *Backend) Generate(ctx context.Context, params types.GenerateParams) (types.Image, error) {
	key := b.Key(params)

	img, hit := b.lookup(ctx, key)
	b.metrics.RecordCacheLookup(hit)
	if hit {
		return img, nil
	}

	img, err := b.next.Generate(ctx, params)
	if err != nil {
		return types.Image{}, err
	}

	b.store(ctx, key, img)

	return img, nil
}

func (b *Backend) lookup(ctx context.Context, key string) (types.Image, bool) {
	fields, err := b.client.HGetAll(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			b.logger.Warn("image cache lookup failed", "key", key, "error", err)
		}

		return types.Image{}, false
	}

	data, ok := fields[fieldData]
	if !ok || data == "" {
		return types.Image{}, false
	}

	return types.Image{Data: []byte(data), MediaType: fields[fieldMediaType]}, true
}

// store writes img under key. It runs detached from ctx so a job cancelled just
// after generation still populates the cache.
func (b *Backend) store(ctx context.Context, key string, img types.Image) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldData, img.Data, fieldMediaType, img.MediaType)
		pipe.Expire(ctx, key, b.ttl)

		return nil
	})
	if err != nil {
		b.logger.Warn("image cache store failed", "key", key, "error", err)
	}
}
