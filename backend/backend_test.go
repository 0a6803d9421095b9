package backend

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	imgtest "github.com/arloliu/imgpool/testing"
	"github.com/arloliu/imgpool/types"
)

type closingBackend struct {
	*imgtest.StubBackend
	closed *atomic.Int32
}

func (c closingBackend) Close() error {
	c.closed.Add(1)
	return nil
}

func TestParseLifetime(t *testing.T) {
	l, err := ParseLifetime("")
	require.NoError(t, err)
	require.Equal(t, LifetimeShared, l)

	l, err = ParseLifetime("per_job")
	require.NoError(t, err)
	require.Equal(t, LifetimePerJob, l)

	_, err = ParseLifetime("forever")
	require.ErrorIs(t, err, ErrUnknownLifetime)
}

func TestManaged(t *testing.T) {
	params := types.GenerateParams{Seed: 1, Prompt: "fox", NumSteps: 1, Height: 8, Width: 8}

	t.Run("shared creates once", func(t *testing.T) {
		var created, closed atomic.Int32
		m := NewManaged(func(context.Context) (types.Backend, error) {
			created.Add(1)
			return closingBackend{imgtest.NewStubBackend(), &closed}, nil
		}, LifetimeShared)

		require.NoError(t, m.Warm(context.Background()))
		for range 3 {
			_, err := m.Generate(context.Background(), params)
			require.NoError(t, err)
		}
		require.Equal(t, int32(1), created.Load())

		require.NoError(t, m.Close())
		require.Equal(t, int32(1), closed.Load())
	})

	t.Run("per job creates and closes every call", func(t *testing.T) {
		var created, closed atomic.Int32
		m := NewManaged(func(context.Context) (types.Backend, error) {
			created.Add(1)
			return closingBackend{imgtest.NewStubBackend(), &closed}, nil
		}, LifetimePerJob)

		require.NoError(t, m.Warm(context.Background()))
		require.Equal(t, int32(0), created.Load())

		for range 3 {
			img, err := m.Generate(context.Background(), params)
			require.NoError(t, err)
			require.Equal(t, "img:1:fox", string(img.Data))
		}
		require.Equal(t, int32(3), created.Load())
		require.Equal(t, int32(3), closed.Load())
	})

	t.Run("factory error", func(t *testing.T) {
		boom := errors.New("no gpu")
		m := NewManaged(func(context.Context) (types.Backend, error) { return nil, boom }, LifetimeShared)
		require.ErrorIs(t, m.Warm(context.Background()), boom)
		_, err := m.Generate(context.Background(), params)
		require.ErrorIs(t, err, boom)
	})
}

func TestSerialized(t *testing.T) {
	stub := imgtest.NewStubBackend()
	stub.Delay = 10 * time.Millisecond
	b := Serialized(stub)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = b.Generate(context.Background(), types.GenerateParams{})
		}()
	}
	wg.Wait()

	require.Equal(t, 8, stub.CallCount())
	require.Equal(t, 1, stub.MaxConcurrent())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Generate(ctx, types.GenerateParams{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestSafe(t *testing.T) {
	stub := imgtest.NewStubBackend()
	stub.Panic = "tensor shape mismatch"

	img, err := Safe(stub).Generate(context.Background(), types.GenerateParams{})
	require.ErrorIs(t, err, types.ErrBackendPanic)
	require.Empty(t, img.Data)

	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "tensor shape mismatch", pe.Value)
	require.NotEmpty(t, pe.Stack)
}
