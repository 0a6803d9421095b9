package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/imgpool/types"
)

// WorkerWaiter is the part of imgpool.Worker the wait helpers need.
type WorkerWaiter interface {
	WaitState(expectedState types.State, timeout time.Duration) <-chan error
}

// WaitAllWorkersState waits for every worker to reach expectedState.
//
// The waits run in parallel and the first failure cancels the rest.
//
// Parameters:
//   - ctx: Context for cancellation
//   - workers: Workers to wait on
//   - expectedState: Target state
//   - timeout: Maximum time to wait for each worker
//
// Returns:
//   - error: nil if all workers reached the state, the first failure otherwise
//
// Example:
//
//	err := testutil.WaitAllWorkersState(ctx, pool.Waiters(), types.StateClosed, 5*time.Second)
//	require.NoError(t, err)
func WaitAllWorkersState(
	ctx context.Context,
	workers []WorkerWaiter,
	expectedState types.State,
	timeout time.Duration,
) error {
	if len(workers) == 0 {
		return errors.New("no workers provided")
	}

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg.Add(len(workers))
	for i, w := range workers {
		go func(index int, w WorkerWaiter) {
			defer wg.Done()

			select {
			case err := <-w.WaitState(expectedState, timeout):
				if err != nil {
					errOnce.Do(func() {
						firstErr = fmt.Errorf("worker[%d] failed to reach state %s: %w", index, expectedState, err)
						cancel()
					})
				}
			case <-ctx.Done():
				return
			}
		}(i, w)
	}

	wg.Wait()

	if firstErr != nil {
		return firstErr
	}

	return ctx.Err()
}

// WaitWorkerStates waits for one worker to pass through states in order.
func WaitWorkerStates(ctx context.Context, w WorkerWaiter, states []types.State, timeout time.Duration) error {
	for i, state := range states {
		select {
		case err := <-w.WaitState(state, timeout):
			if err != nil {
				return fmt.Errorf("failed to reach state[%d] %s: %w", i, state, err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}
