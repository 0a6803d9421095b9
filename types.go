package imgpool

import "github.com/arloliu/imgpool/types"

// Type aliases so callers can use imgpool.State, imgpool.Backend and so on
// without importing the types package.
type (
	State            = types.State
	Backend          = types.Backend
	BackendFunc      = types.BackendFunc
	GenerateParams   = types.GenerateParams
	Image            = types.Image
	Logger           = types.Logger
	MetricsCollector = types.MetricsCollector
	Hooks            = types.Hooks
)

const (
	StateInit     = types.StateInit
	StateRunning  = types.StateRunning
	StateDraining = types.StateDraining
	StateClosed   = types.StateClosed
)
