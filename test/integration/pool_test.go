package integration_test

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/imgpool"
	"github.com/arloliu/imgpool/backend/cache"
	"github.com/arloliu/imgpool/backend/pattern"
	"github.com/arloliu/imgpool/client"
	"github.com/arloliu/imgpool/internal/metrics"
	"github.com/arloliu/imgpool/internal/presence"
	"github.com/arloliu/imgpool/job"
	"github.com/arloliu/imgpool/test/testutil"
	imgtest "github.com/arloliu/imgpool/testing"
	"github.com/arloliu/imgpool/types"
)

func TestPool_PatternBackendAnswersEveryJob(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	t.Parallel()

	ns, nc := imgtest.StartEmbeddedNATS(t)

	reg := prometheus.NewRegistry()
	pool := testutil.NewPool(t, ns, testutil.PoolConfig{
		Size:    3,
		Backend: func(int) types.Backend { return pattern.New() },
		Options: func(i int) []imgpool.Option {
			if i != 0 {
				return nil
			}

			return []imgpool.Option{imgpool.WithMetrics(metrics.NewPrometheus(reg, "imgpool"))}
		},
	})

	c, err := client.New(nc, client.WithTimeout(10*time.Second))
	require.NoError(t, err)

	base := job.Request{Prompt: "harbor at dusk", NumSteps: 8, Height: 48, Width: 64}
	summary := testutil.SendLoad(context.Background(), c, 30, 10, base)
	t.Log(summary)

	require.Equal(t, 30, summary.Succeeded, summary.String())
	for _, r := range summary.Results {
		require.Equal(t, pattern.MediaType, r.Result.MediaType)

		img, err := png.Decode(bytes.NewReader(r.Result.Payload))
		require.NoError(t, err)
		require.Equal(t, 64, img.Bounds().Dx())
		require.Equal(t, 48, img.Bounds().Dy())
	}
	require.Equal(t, int64(30), pool.JobsHandled())

	// Identical requests render identical images wherever they land.
	first, err := c.GenerateImage(context.Background(), job.Request{Seed: 7, Prompt: "same", NumSteps: 4, Height: 32, Width: 32})
	require.NoError(t, err)
	for range 5 {
		again, err := c.GenerateImage(context.Background(), job.Request{Seed: 7, Prompt: "same", NumSteps: 4, Height: 32, Width: 32})
		require.NoError(t, err)
		require.Equal(t, first.Data, again.Data)
	}

	expected := fmt.Sprintf(`
# HELP imgpool_jobs_completed_total Completed jobs by result (success, invalid_request, generation_failed).
# TYPE imgpool_jobs_completed_total counter
imgpool_jobs_completed_total{result="success"} %d
`, pool.Workers[0].JobsHandled())
	require.NoError(t, promtest.GatherAndCompare(reg, strings.NewReader(expected), "imgpool_jobs_completed_total"))
}

func TestPool_InvalidJobsFailWithoutStoppingThePool(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	t.Parallel()

	ns, nc := imgtest.StartEmbeddedNATS(t)
	backends := []*imgtest.StubBackend{imgtest.NewStubBackend(), imgtest.NewStubBackend()}
	testutil.NewPool(t, ns, testutil.PoolConfig{
		Size:    2,
		Backend: func(i int) types.Backend { return backends[i] },
	})

	c, err := client.New(nc, client.WithTimeout(5*time.Second))
	require.NoError(t, err)

	for i := range 10 {
		res, err := c.Raw(context.Background(), []byte(`{"seed":1,"prompt":"x","num_steps":`))
		require.NoError(t, err, "request %d", i)
		require.False(t, res.Success)
		require.Empty(t, res.Payload)

		res, err = c.Generate(context.Background(), job.Request{Seed: int64(i), Prompt: "ok", NumSteps: 1, Height: 8, Width: 8})
		require.NoError(t, err)
		require.True(t, res.Success)
	}

	require.Equal(t, 10, backends[0].CallCount()+backends[1].CallCount())
}

func TestPool_StopOneWorkerMidStream(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	t.Parallel()

	ns, nc := imgtest.StartEmbeddedNATS(t)
	backends := make([]*imgtest.StubBackend, 3)
	for i := range backends {
		backends[i] = &imgtest.StubBackend{Delay: 20 * time.Millisecond}
	}
	pool := testutil.NewPool(t, ns, testutil.PoolConfig{
		Size:    3,
		Backend: func(i int) types.Backend { return backends[i] },
	})

	c, err := client.New(nc, client.WithTimeout(10*time.Second))
	require.NoError(t, err)

	done := make(chan *testutil.LoadSummary, 1)
	go func() {
		done <- testutil.SendLoad(context.Background(), c, 90, 6, job.Request{Prompt: "stream", NumSteps: 1, Height: 8, Width: 8})
	}()

	require.Eventually(t, func() bool { return pool.Workers[0].JobsHandled() >= 3 }, 5*time.Second, 5*time.Millisecond)
	pool.Stop(0)
	require.Equal(t, imgpool.StateClosed, pool.Workers[0].State())
	stoppedAt := pool.Workers[0].JobsHandled()

	var summary *testutil.LoadSummary
	select {
	case summary = <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("load did not finish")
	}
	t.Log(summary)

	require.Equal(t, 90, summary.Succeeded, summary.String())
	require.Equal(t, stoppedAt, pool.Workers[0].JobsHandled(), "a stopped worker must not take new jobs")
	require.Equal(t, int64(90), pool.JobsHandled())
	for i, r := range summary.Results {
		require.Equal(t, fmt.Sprintf("img:%d:stream #%d", i, i), string(r.Result.Payload))
	}
}

func TestPool_StopAllThenNoWorkers(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	t.Parallel()

	ns, nc := imgtest.StartEmbeddedNATS(t)
	pool := testutil.NewPool(t, ns, testutil.PoolConfig{
		Size:    2,
		Backend: func(int) types.Backend { return imgtest.NewStubBackend() },
	})

	pool.Stop(0)
	pool.Stop(1)
	require.NoError(t, testutil.WaitAllWorkersState(context.Background(), pool.Waiters(), types.StateClosed, time.Second))

	c, err := client.New(nc, client.WithTimeout(2*time.Second))
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), job.Request{Prompt: "anyone", NumSteps: 1, Height: 8, Width: 8})
	require.ErrorIs(t, err, client.ErrNoWorkers)
}

func TestPool_PresenceListsEveryWorker(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	t.Parallel()

	ns, nc := imgtest.StartEmbeddedNATS(t)
	pool := testutil.NewPool(t, ns, testutil.PoolConfig{
		Size:    3,
		Backend: func(int) types.Backend { return imgtest.NewStubBackend() },
		Mutate:  func(cfg *imgpool.Config) { cfg.Presence.Enabled = true },
		Options: func(i int) []imgpool.Option {
			return []imgpool.Option{imgpool.WithWorkerID(fmt.Sprintf("gpu-%d", i))}
		},
	})

	js, err := jetstream.New(nc)
	require.NoError(t, err)
	kv, err := js.KeyValue(context.Background(), "imgpool-workers")
	require.NoError(t, err)

	records, err := presence.List(context.Background(), kv, "worker")
	require.NoError(t, err)
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
		require.Equal(t, "Running", r.State)
	}
	require.ElementsMatch(t, []string{"gpu-0", "gpu-1", "gpu-2"}, ids)

	pool.Stop(1)

	records, err = presence.List(context.Background(), kv, "worker")
	require.NoError(t, err)
	ids = ids[:0]
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	require.ElementsMatch(t, []string{"gpu-0", "gpu-2"}, ids)
}

func TestPool_SharedImageCache(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	t.Parallel()

	mr := miniredis.RunT(t)
	rdb, err := cache.Connect(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	ns, nc := imgtest.StartEmbeddedNATS(t)
	backends := []*imgtest.StubBackend{imgtest.NewStubBackend(), imgtest.NewStubBackend()}
	testutil.NewPool(t, ns, testutil.PoolConfig{
		Size:    2,
		Backend: func(i int) types.Backend { return cache.New(rdb, backends[i]) },
	})

	c, err := client.New(nc, client.WithTimeout(5*time.Second))
	require.NoError(t, err)

	req := job.Request{Seed: 42, Prompt: "lighthouse", NumSteps: 10, Height: 16, Width: 16}
	for range 6 {
		img, err := c.GenerateImage(context.Background(), req)
		require.NoError(t, err)
		require.Equal(t, "img:42:lighthouse", string(img.Data))
		require.Equal(t, imgtest.StubMediaType, img.MediaType)
	}

	require.Equal(t, 1, backends[0].CallCount()+backends[1].CallCount())
}

func TestPool_ServerShutdownClosesWorkers(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	t.Parallel()

	ns, _ := imgtest.StartEmbeddedNATS(t)
	pool := testutil.NewPool(t, ns, testutil.PoolConfig{
		Size:    2,
		Backend: func(int) types.Backend { return imgtest.NewStubBackend() },
	})

	ns.Shutdown()

	for i, w := range pool.Workers {
		select {
		case <-w.Done():
		case <-time.After(30 * time.Second):
			t.Fatalf("worker %d did not close after the server went away", i)
		}
	}
	require.NoError(t, testutil.WaitAllWorkersState(context.Background(), pool.Waiters(), types.StateClosed, time.Second))
}
