package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations must be thread-safe and must not block. The interface composes
// smaller domain interfaces so components can depend on only what they record.
type MetricsCollector interface {
	WorkerMetrics
	JobMetrics
	PresenceMetrics
	GatewayMetrics
	CacheMetrics
}

// WorkerMetrics defines metrics for the worker lifecycle.
type WorkerMetrics interface {
	// RecordStateTransition records a worker state transition.
	//
	// Parameters:
	//   - from: Previous state
	//   - to: New state
	//   - duration: Seconds spent in the previous state
	RecordStateTransition(from, to State, duration float64)

	// SetInFlightJobs sets the number of jobs currently being handled (gauge).
	SetInFlightJobs(count int)
}

// JobMetrics defines metrics for job handling and replies.
type JobMetrics interface {
	// RecordJobReceived records a message delivered by the queue subscription.
	RecordJobReceived()

	// RecordJobCompleted records the outcome of one job.
	//
	// Parameters:
	//   - result: "success", "invalid_request" or "generation_failed"
	//   - duration: Handling time in seconds
	RecordJobCompleted(result string, duration float64)

	// RecordReplyError records a reply that could not be published.
	//
	// Parameters:
	//   - reason: "no_reply_address", "disconnected" or "publish_failed"
	RecordReplyError(reason string)
}

// PresenceMetrics defines metrics for the worker presence heartbeat.
type PresenceMetrics interface {
	// RecordHeartbeat records a presence heartbeat write.
	RecordHeartbeat(workerID string, success bool)
}

// GatewayMetrics defines metrics for the synchronous HTTP gateway.
type GatewayMetrics interface {
	// RecordGatewayRequest records one gateway request.
	//
	// Parameters:
	//   - status: HTTP status code written
	//   - duration: Request latency in seconds
	RecordGatewayRequest(status int, duration float64)
}

// CacheMetrics defines metrics for the generated image cache.
type CacheMetrics interface {
	// RecordCacheLookup records a cache lookup and whether it hit.
	RecordCacheLookup(hit bool)
}
