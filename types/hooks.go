package types

import (
	"context"
	"time"
)

// Hooks defines optional lifecycle callbacks of a worker.
//
// Callbacks run synchronously on the goroutine that triggered them; keep them short.
// Errors returned by a callback are logged and otherwise ignored.
type Hooks struct {
	// OnStateChanged is called after every worker state transition.
	OnStateChanged func(ctx context.Context, from, to State) error

	// OnJobCompleted is called after a reply has been handed to the bus.
	//
	// Parameters:
	//   - success: Value of the reply's success header
	//   - duration: Time from message receipt to reply publish
	OnJobCompleted func(ctx context.Context, success bool, duration time.Duration) error

	// OnError is called when a recoverable error occurs.
	OnError func(ctx context.Context, err error) error
}
