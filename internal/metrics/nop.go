package metrics

import "github.com/arloliu/imgpool/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. It is the default when no collector is configured.
type NopMetrics struct{}

var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// WorkerMetrics implementation

func (n *NopMetrics) RecordStateTransition(_ /* from */, _ /* to */ types.State, _ /* duration */ float64) {
	// No-op
}

func (n *NopMetrics) SetInFlightJobs(_ /* count */ int) {
	// No-op
}

// JobMetrics implementation

func (n *NopMetrics) RecordJobReceived() {
	// No-op
}

func (n *NopMetrics) RecordJobCompleted(_ /* result */ string, _ /* duration */ float64) {
	// No-op
}

func (n *NopMetrics) RecordReplyError(_ /* reason */ string) {
	// No-op
}

// PresenceMetrics implementation

func (n *NopMetrics) RecordHeartbeat(_ /* workerID */ string, _ /* success */ bool) {
	// No-op
}

// GatewayMetrics implementation

func (n *NopMetrics) RecordGatewayRequest(_ /* status */ int, _ /* duration */ float64) {
	// No-op
}

// CacheMetrics implementation

func (n *NopMetrics) RecordCacheLookup(_ /* hit */ bool) {
	// No-op
}
