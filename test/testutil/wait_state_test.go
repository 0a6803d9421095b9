package testutil

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/imgpool/types"
)

type mockWorker struct {
	state atomic.Int32
}

func newMockWorker(initial types.State) *mockWorker {
	m := &mockWorker{}
	m.state.Store(int32(initial))

	return m
}

func (m *mockWorker) moveTo(state types.State, after time.Duration) {
	go func() {
		time.Sleep(after)
		m.state.Store(int32(state))
	}()
}

func (m *mockWorker) WaitState(expectedState types.State, timeout time.Duration) <-chan error {
	ch := make(chan error, 1)
	go func() {
		defer close(ch)

		deadline := time.After(timeout)
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()

		for {
			if types.State(m.state.Load()) == expectedState {
				ch <- nil

				return
			}
			select {
			case <-ticker.C:
			case <-deadline:
				ch <- context.DeadlineExceeded

				return
			}
		}
	}()

	return ch
}

func TestWaitAllWorkersState(t *testing.T) {
	t.Run("all reach state", func(t *testing.T) {
		a, b := newMockWorker(types.StateInit), newMockWorker(types.StateInit)
		a.moveTo(types.StateRunning, 10*time.Millisecond)
		b.moveTo(types.StateRunning, 30*time.Millisecond)

		err := WaitAllWorkersState(context.Background(), []WorkerWaiter{a, b}, types.StateRunning, time.Second)
		require.NoError(t, err)
	})

	t.Run("one never arrives", func(t *testing.T) {
		a, b := newMockWorker(types.StateRunning), newMockWorker(types.StateInit)

		err := WaitAllWorkersState(context.Background(), []WorkerWaiter{a, b}, types.StateRunning, 50*time.Millisecond)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.Contains(t, err.Error(), "worker[1]")
	})

	t.Run("empty", func(t *testing.T) {
		require.Error(t, WaitAllWorkersState(context.Background(), nil, types.StateRunning, time.Second))
	})
}

func TestWaitWorkerStates(t *testing.T) {
	w := newMockWorker(types.StateRunning)
	w.moveTo(types.StateDraining, 10*time.Millisecond)
	go func() {
		time.Sleep(40 * time.Millisecond)
		w.state.Store(int32(types.StateClosed))
	}()

	err := WaitWorkerStates(context.Background(), w,
		[]types.State{types.StateRunning, types.StateClosed}, time.Second)
	require.NoError(t, err)
}
