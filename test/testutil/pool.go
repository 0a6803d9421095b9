package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/imgpool"
	imgtest "github.com/arloliu/imgpool/testing"
	"github.com/arloliu/imgpool/types"
)

// PoolConfig describes a pool of workers sharing one server.
type PoolConfig struct {
	// Size is the number of workers to start.
	Size int

	// Backend returns the backend for the i-th worker.
	Backend func(i int) types.Backend

	// Mutate, when set, adjusts each worker's Config before NewWorker.
	Mutate func(cfg *imgpool.Config)

	// Options, when set, returns extra options for the i-th worker.
	Options func(i int) []imgpool.Option

	// Quiet discards worker logs instead of routing them to t.
	Quiet bool
}

// Pool is a set of started workers, each with its own connection.
type Pool struct {
	t       *testing.T
	Workers []*imgpool.Worker
}

// NewPool starts cfg.Size workers against ns and waits for all of them to be Running.
// Every worker still running when the test ends is stopped by t.Cleanup.
//
// Parameters:
//   - t: Testing context
//   - ns: Embedded server from imgtest.StartEmbeddedNATS
//   - cfg: Pool description
//
// Returns:
//   - *Pool: The running pool
//
// Example:
//
//	ns, nc := imgtest.StartEmbeddedNATS(t)
//	pool := testutil.NewPool(t, ns, testutil.PoolConfig{
//	    Size:    3,
//	    Backend: func(int) types.Backend { return pattern.New() },
//	})
func NewPool(t *testing.T, ns *server.Server, cfg PoolConfig) *Pool {
	t.Helper()

	require.Positive(t, cfg.Size, "pool size")
	require.NotNil(t, cfg.Backend, "pool backend factory")

	p := &Pool{t: t, Workers: make([]*imgpool.Worker, 0, cfg.Size)}
	for i := range cfg.Size {
		wcfg := imgpool.TestConfig()
		if cfg.Mutate != nil {
			cfg.Mutate(&wcfg)
		}

		var opts []imgpool.Option
		if !cfg.Quiet {
			opts = append(opts, imgpool.WithLogger(imgtest.NewTestLogger(t)))
		}
		if cfg.Options != nil {
			opts = append(opts, cfg.Options(i)...)
		}

		w, err := imgpool.NewWorker(&wcfg, imgtest.Connect(t, ns), cfg.Backend(i), opts...)
		require.NoError(t, err)
		require.NoError(t, w.Start(context.Background()))

		p.Workers = append(p.Workers, w)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, w := range p.Workers {
			_ = w.Stop(ctx)
		}
	})

	require.NoError(t, WaitAllWorkersState(context.Background(), p.Waiters(), types.StateRunning, 5*time.Second))

	return p
}

// Waiters returns the pool's workers as Waiters.
func (p *Pool) Waiters() []WorkerWaiter {
	out := make([]WorkerWaiter, len(p.Workers))
	for i, w := range p.Workers {
		out[i] = w
	}

	return out
}

// Stop gracefully stops the i-th worker and fails the test on error.
func (p *Pool) Stop(i int) {
	p.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(p.t, p.Workers[i].Stop(ctx))
}

// JobsHandled sums JobsHandled over all workers.
func (p *Pool) JobsHandled() int64 {
	var total int64
	for _, w := range p.Workers {
		total += w.JobsHandled()
	}

	return total
}
