package appconfig

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/imgpool/backend/cache"
	"github.com/arloliu/imgpool/backend/pattern"
	"github.com/arloliu/imgpool/internal/logging"
	"github.com/arloliu/imgpool/internal/metrics"
	"github.com/arloliu/imgpool/types"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, DefaultNATSURL, cfg.NATS.URL)
	require.Equal(t, "img_gen", cfg.Worker.Subject)
	require.Equal(t, ":3000", cfg.Gateway.Addr)
	require.Equal(t, KindPattern, cfg.Backend.Kind)
	require.Equal(t, "shared", cfg.Backend.Lifetime)
	require.Equal(t, cache.DefaultTTL, cfg.Backend.Cache.TTL)
	require.Equal(t, "slog", cfg.Log.Driver)
	require.Empty(t, cfg.Metrics.Addr)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := writeFile(t, dir, "imgpool.yaml", `
nats:
  url: nats://file:4222
worker:
  subject: from_file
  drainTimeout: 1m
  concurrency: 2
backend:
  lifetime: per_job
log:
  level: debug
`)
	// .env writes into the process environment; register the keys so they are
	// unset again when the test ends.
	for _, key := range []string{"IMGPOOL_METRICS_ADDR", "IMGPOOL_CONCURRENCY"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	writeFile(t, dir, ".env", "IMGPOOL_METRICS_ADDR=:9999\nIMGPOOL_CONCURRENCY=3\n")
	t.Setenv("IMGPOOL_SUBJECT", "from_env")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "nats://file:4222", cfg.NATS.URL)
	require.Equal(t, "from_env", cfg.Worker.Subject)
	require.Equal(t, time.Minute, cfg.Worker.DrainTimeout)
	require.Equal(t, 3, cfg.Worker.Concurrency)
	require.Equal(t, "per_job", cfg.Backend.Lifetime)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, ":9999", cfg.Metrics.Addr)

	// .env never overrides a variable that is already set.
	t.Setenv("IMGPOOL_METRICS_ADDR", ":1111")
	cfg, err = Load(path)
	require.NoError(t, err)
	require.Equal(t, ":1111", cfg.Metrics.Addr)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeFile(t, dir, "unknown.yaml", "worker:\n  subjekt: x\n"))
	require.Error(t, err)

	_, err = Load(writeFile(t, dir, "kind.yaml", "backend:\n  kind: diffusion\n"))
	require.ErrorContains(t, err, "unknown kind")

	_, err = Load(writeFile(t, dir, "openai.yaml", "backend:\n  kind: openai\n"))
	require.ErrorContains(t, err, "API key")

	_, err = Load(writeFile(t, dir, "compression.yaml", "backend:\n  pattern:\n    compression: maximal\n"))
	require.ErrorIs(t, err, pattern.ErrUnknownCompression)

	_, err = Load(writeFile(t, dir, "lifetime.yaml", "backend:\n  lifetime: forever\n"))
	require.Error(t, err)

	_, err = Load(writeFile(t, dir, "worker.yaml", "worker:\n  concurrency: -1\n"))
	require.ErrorContains(t, err, "worker")
}

func TestBuildBackend(t *testing.T) {
	params := types.GenerateParams{Seed: 1, Prompt: "x", NumSteps: 1, Height: 16, Width: 16}

	t.Run("pattern", func(t *testing.T) {
		b, closeFn, err := BuildBackend(context.Background(), BackendConfig{Kind: KindPattern, Warm: true}, logging.NewNop(), metrics.NewNop())
		require.NoError(t, err)
		defer func() { require.NoError(t, closeFn()) }()

		img, err := b.Generate(context.Background(), params)
		require.NoError(t, err)
		require.Equal(t, pattern.MediaType, img.MediaType)
	})

	t.Run("pattern options", func(t *testing.T) {
		big := types.GenerateParams{Seed: 1, Prompt: "x", NumSteps: 4, Height: 64, Width: 64}

		fast, closeFast, err := BuildBackend(context.Background(), BackendConfig{Kind: KindPattern}, logging.NewNop(), metrics.NewNop())
		require.NoError(t, err)
		defer func() { require.NoError(t, closeFast()) }()

		raw, closeRaw, err := BuildBackend(context.Background(),
			BackendConfig{Kind: KindPattern, Pattern: pattern.Config{Compression: "none"}}, logging.NewNop(), metrics.NewNop())
		require.NoError(t, err)
		defer func() { require.NoError(t, closeRaw()) }()

		small, err := fast.Generate(context.Background(), big)
		require.NoError(t, err)
		large, err := raw.Generate(context.Background(), big)
		require.NoError(t, err)
		require.Greater(t, len(large.Data), len(small.Data))

		_, _, err = BuildBackend(context.Background(),
			BackendConfig{Kind: KindPattern, Pattern: pattern.Config{Compression: "zip"}}, logging.NewNop(), metrics.NewNop())
		require.ErrorIs(t, err, pattern.ErrUnknownCompression)
	})

	t.Run("cached", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := BackendConfig{
			Kind:  KindPattern,
			Cache: cache.Config{URL: "redis://" + mr.Addr(), TTL: time.Hour, KeyPrefix: "t:"},
		}

		b, closeFn, err := BuildBackend(context.Background(), cfg, logging.NewNop(), metrics.NewNop())
		require.NoError(t, err)
		defer func() { require.NoError(t, closeFn()) }()

		_, err = b.Generate(context.Background(), params)
		require.NoError(t, err)
		require.Len(t, mr.Keys(), 1)
	})

	t.Run("unreachable cache", func(t *testing.T) {
		cfg := BackendConfig{Kind: KindPattern, Cache: cache.Config{URL: "redis://127.0.0.1:1"}}

		_, _, err := BuildBackend(context.Background(), cfg, logging.NewNop(), metrics.NewNop())
		require.Error(t, err)
	})

	t.Run("openai without key fails on warm-up", func(t *testing.T) {
		_, _, err := BuildBackend(context.Background(), BackendConfig{Kind: KindOpenAI, Warm: true}, logging.NewNop(), metrics.NewNop())
		require.Error(t, err)
	})
}
