package imgpool

import "github.com/arloliu/imgpool/types"

// Sentinel errors returned by the Worker. They alias the types package values so
// errors.Is works with either import.
var (
	ErrInvalidConfig          = types.ErrInvalidConfig
	ErrNATSConnectionRequired = types.ErrNATSConnectionRequired
	ErrBackendRequired        = types.ErrBackendRequired
	ErrAlreadyStarted         = types.ErrAlreadyStarted
	ErrNotStarted             = types.ErrNotStarted
	ErrInvalidStateTransition = types.ErrInvalidStateTransition
	ErrDrainTimeout           = types.ErrDrainTimeout
)
