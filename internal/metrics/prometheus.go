package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arloliu/imgpool/types"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Collectors are created and registered lazily on first use, so constructing one
// that is never exercised registers nothing.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	stateTransitions *prometheus.CounterVec
	stateDuration    *prometheus.HistogramVec
	inFlight         prometheus.Gauge

	jobsReceived prometheus.Counter
	jobsTotal    *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	replyErrors  *prometheus.CounterVec

	heartbeats *prometheus.CounterVec

	gatewayRequests *prometheus.CounterVec
	gatewayLatency  prometheus.Histogram

	cacheLookups *prometheus.CounterVec
}

var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer (prometheus.DefaultRegisterer if nil)
//   - namespace: Metrics namespace ("imgpool" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "imgpool"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		factory := promauto.With(p.reg)

		p.stateTransitions = factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "worker",
			Name:      "state_transitions_total",
			Help:      "Total worker state transitions by source and target state.",
		}, []string{"from", "to"})
		p.stateDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "worker",
			Name:      "state_duration_seconds",
			Help:      "Time spent in a state before leaving it.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"state"})
		p.inFlight = factory.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "worker",
			Name:      "jobs_in_flight",
			Help:      "Jobs currently inside the handler.",
		})

		p.jobsReceived = factory.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "jobs",
			Name:      "received_total",
			Help:      "Messages delivered by the queue subscription.",
		})
		p.jobsTotal = factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "jobs",
			Name:      "completed_total",
			Help:      "Completed jobs by result (success, invalid_request, generation_failed).",
		}, []string{"result"})
		p.jobDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Job handling time from receipt to reply, by result.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"result"})
		p.replyErrors = factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "jobs",
			Name:      "reply_errors_total",
			Help:      "Replies that could not be published, by reason.",
		}, []string{"reason"})

		p.heartbeats = factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "presence",
			Name:      "heartbeats_total",
			Help:      "Presence heartbeat writes by result.",
		}, []string{"result"})

		p.gatewayRequests = factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Gateway requests by HTTP status code.",
		}, []string{"code"})
		p.gatewayLatency = factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Gateway request latency in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		})

		p.cacheLookups = factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Image cache lookups by result (hit, miss).",
		}, []string{"result"})
	})
}

func (p *PrometheusCollector) RecordStateTransition(from, to types.State, duration float64) {
	p.ensureRegistered()
	p.stateTransitions.WithLabelValues(from.String(), to.String()).Inc()
	p.stateDuration.WithLabelValues(from.String()).Observe(duration)
}

func (p *PrometheusCollector) SetInFlightJobs(count int) {
	p.ensureRegistered()
	p.inFlight.Set(float64(count))
}

func (p *PrometheusCollector) RecordJobReceived() {
	p.ensureRegistered()
	p.jobsReceived.Inc()
}

func (p *PrometheusCollector) RecordJobCompleted(result string, duration float64) {
	p.ensureRegistered()
	p.jobsTotal.WithLabelValues(result).Inc()
	p.jobDuration.WithLabelValues(result).Observe(duration)
}

func (p *PrometheusCollector) RecordReplyError(reason string) {
	p.ensureRegistered()
	p.replyErrors.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) RecordHeartbeat(_ string, success bool) {
	p.ensureRegistered()
	p.heartbeats.WithLabelValues(resultLabel(success)).Inc()
}

func (p *PrometheusCollector) RecordGatewayRequest(status int, duration float64) {
	p.ensureRegistered()
	p.gatewayRequests.WithLabelValues(strconv.Itoa(status)).Inc()
	p.gatewayLatency.Observe(duration)
}

func (p *PrometheusCollector) RecordCacheLookup(hit bool) {
	p.ensureRegistered()
	if hit {
		p.cacheLookups.WithLabelValues("hit").Inc()
	} else {
		p.cacheLookups.WithLabelValues("miss").Inc()
	}
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}

	return "failure"
}
