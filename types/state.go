package types

// State represents the worker lifecycle state.
//
// A worker moves strictly forward through its states:
//
//	StateInit → StateRunning → StateDraining → StateClosed
//
// StateInit may also go straight to StateClosed when Stop is called on a worker
// that never started. StateClosed is terminal.
type State int

const (
	// StateInit is the state before Start registers the subscription.
	StateInit State = iota

	// StateRunning indicates the worker is subscribed and accepting jobs.
	StateRunning

	// StateDraining indicates intake has stopped and in-flight jobs are finishing.
	StateDraining

	// StateClosed indicates the bus connection has been closed.
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateRunning:
		return "Running"
	case StateDraining:
		return "Draining"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}
