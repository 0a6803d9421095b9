package bus

import "errors"

var (
	// ErrConnect is returned when the initial connection to the bus fails.
	ErrConnect = errors.New("bus: connect failed")

	// ErrNilConn is returned when Wrap receives a nil connection.
	ErrNilConn = errors.New("bus: nil connection")

	// ErrNoAddress is returned when Publish is called without a destination.
	ErrNoAddress = errors.New("bus: empty publish address")
)
