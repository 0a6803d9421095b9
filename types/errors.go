package types

import "errors"

// Sentinel errors shared across imgpool packages.
//
// Check them with errors.Is; wrap external errors with context using
// fmt.Errorf("...: %w", err).

// Worker errors.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNATSConnectionRequired is returned when the NATS connection is nil.
	ErrNATSConnectionRequired = errors.New("NATS connection is required")

	// ErrBackendRequired is returned when no generation backend is supplied.
	ErrBackendRequired = errors.New("generation backend is required")

	// ErrAlreadyStarted is returned when Start is called on a started worker.
	ErrAlreadyStarted = errors.New("worker already started")

	// ErrNotStarted is returned when an operation requires a running worker.
	ErrNotStarted = errors.New("worker not started")

	// ErrInvalidStateTransition is returned when a state change is not allowed.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrDrainTimeout is returned when in-flight work did not finish before the
	// shutdown deadline.
	ErrDrainTimeout = errors.New("drain timed out")
)

// Backend errors.
var (
	// ErrGenerationFailed is returned when a backend cannot produce an image.
	ErrGenerationFailed = errors.New("image generation failed")

	// ErrBackendPanic is returned when a backend panics during generation.
	ErrBackendPanic = errors.New("backend panicked")

	// ErrEmptyImage is returned when a backend reports success without data.
	ErrEmptyImage = errors.New("backend returned an empty image")
)
