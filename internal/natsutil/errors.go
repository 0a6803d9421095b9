// Package natsutil holds small helpers around nats.go error values.
package natsutil

import (
	"errors"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// IsConnectivityError reports whether err comes from the transport rather than
// from the application: timeouts, refused or dropped connections, a closed
// connection or a JetStream API that did not answer.
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrDisconnected) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrConnectionDraining) ||
		errors.Is(err, jetstream.ErrNoStreamResponse) ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "i/o timeout")
}

// IsNoWorkers reports whether a request found no subscriber on the subject,
// meaning no worker is currently in the queue group.
func IsNoWorkers(err error) bool {
	return errors.Is(err, nats.ErrNoResponders)
}
