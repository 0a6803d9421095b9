package hooks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/imgpool/types"
)

func TestFill(t *testing.T) {
	called := false
	h := Fill(types.Hooks{
		OnStateChanged: func(context.Context, types.State, types.State) error {
			called = true
			return nil
		},
	})

	require.NotNil(t, h.OnJobCompleted)
	require.NotNil(t, h.OnError)
	require.NoError(t, h.OnStateChanged(context.Background(), types.StateInit, types.StateRunning))
	require.True(t, called)
	require.NoError(t, h.OnError(context.Background(), nil))
}
