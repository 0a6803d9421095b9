// Package hooks provides default lifecycle hook implementations.
package hooks

import (
	"context"
	"time"

	"github.com/arloliu/imgpool/types"
)

// NopHooks implements every hook callback as a no-op, so callers never nil-check.
type NopHooks struct{}

var (
	_ func(context.Context, types.State, types.State) error = (*NopHooks)(nil).OnStateChanged
	_ func(context.Context, bool, time.Duration) error      = (*NopHooks)(nil).OnJobCompleted
	_ func(context.Context, error) error                    = (*NopHooks)(nil).OnError
)

// NewNop returns Hooks whose callbacks all do nothing.
func NewNop() types.Hooks {
	h := &NopHooks{}

	return types.Hooks{
		OnStateChanged: h.OnStateChanged,
		OnJobCompleted: h.OnJobCompleted,
		OnError:        h.OnError,
	}
}

// Fill returns h with every nil callback replaced by its no-op.
func Fill(h types.Hooks) types.Hooks {
	nop := NewNop()
	if h.OnStateChanged == nil {
		h.OnStateChanged = nop.OnStateChanged
	}
	if h.OnJobCompleted == nil {
		h.OnJobCompleted = nop.OnJobCompleted
	}
	if h.OnError == nil {
		h.OnError = nop.OnError
	}

	return h
}

func (h *NopHooks) OnStateChanged(_ context.Context, _, _ types.State) error {
	return nil
}

func (h *NopHooks) OnJobCompleted(_ context.Context, _ bool, _ time.Duration) error {
	return nil
}

func (h *NopHooks) OnError(_ context.Context, _ error) error {
	return nil
}
