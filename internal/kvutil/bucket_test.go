package kvutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	imgtest "github.com/arloliu/imgpool/testing"
)

func TestEnsureBucket(t *testing.T) {
	_, nc := imgtest.StartEmbeddedNATS(t)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	t.Run("concurrent creators all get the bucket", func(t *testing.T) {
		const workers = 8
		cfg := jetstream.KeyValueConfig{Bucket: "presence-race", History: 1, TTL: 5 * time.Second}

		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				kv, err := EnsureBucket(ctx, js, cfg, RetryPolicy{Attempts: 5})
				if err == nil && kv == nil {
					err = context.Canceled
				}
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}
	})

	t.Run("existing bucket is reused", func(t *testing.T) {
		cfg := jetstream.KeyValueConfig{Bucket: "presence-reuse", History: 1}
		first, err := EnsureBucket(ctx, js, cfg, RetryPolicy{})
		require.NoError(t, err)
		_, err = first.Put(ctx, "worker.a", []byte("x"))
		require.NoError(t, err)

		second, err := EnsureBucket(ctx, js, jetstream.KeyValueConfig{Bucket: "presence-reuse", History: 5}, RetryPolicy{})
		require.NoError(t, err)
		entry, err := second.Get(ctx, "worker.a")
		require.NoError(t, err)
		require.Equal(t, []byte("x"), entry.Value())
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, ccancel := context.WithCancel(ctx)
		ccancel()
		_, err := EnsureBucket(cctx, js, jetstream.KeyValueConfig{Bucket: "presence-cancel"}, RetryPolicy{Attempts: 2})
		require.Error(t, err)
	})
}

func TestJitter(t *testing.T) {
	base := 10 * time.Millisecond
	require.Equal(t, base, jitter(base, 0))
	for attempt := 1; attempt < 5; attempt++ {
		d := jitter(base, attempt)
		require.GreaterOrEqual(t, d, base)
		require.Less(t, d, base<<attempt)
	}
}
