// Package handler turns one bus message into exactly one reply.
package handler

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/arloliu/imgpool/backend"
	"github.com/arloliu/imgpool/internal/hooks"
	"github.com/arloliu/imgpool/internal/logging"
	"github.com/arloliu/imgpool/internal/metrics"
	"github.com/arloliu/imgpool/internal/natsutil"
	"github.com/arloliu/imgpool/internal/reply"
	"github.com/arloliu/imgpool/job"
	"github.com/arloliu/imgpool/types"
)

// Config tunes a Handler.
type Config struct {
	// Limits bound the accepted request values.
	Limits job.Limits

	// GenerateTimeout, when positive, is passed to the backend as a context
	// deadline. Backends that ignore the context are not interrupted.
	GenerateTimeout time.Duration
}

// Handler validates a job, runs the backend and publishes the reply.
//
// A Handler holds no per-job state; the worker decides whether calls are serial.
type Handler struct {
	cfg       Config
	backend   types.Backend
	publisher *reply.Publisher
	logger    types.Logger
	metrics   types.MetricsCollector
	hooks     types.Hooks
}

// New creates a handler. Nil logger, metrics or hooks fields fall back to no-ops.
func New(cfg Config, b types.Backend, publisher *reply.Publisher, logger types.Logger, mc types.MetricsCollector, h types.Hooks) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	if mc == nil {
		mc = metrics.NewNop()
	}

	return &Handler{
		cfg:       cfg,
		backend:   backend.Safe(b),
		publisher: publisher,
		logger:    logger,
		metrics:   mc,
		hooks:     hooks.Fill(h),
	}
}

// Handle processes msg and publishes one reply to msg.Reply.
//
// It never panics on bad input and never returns an error: every problem is
// folded into the returned outcome, logged and answered with success=false.
//
// Parameters:
//   - ctx: Base context for the backend call
//   - jobID: Identifier used in logs
//   - msg: The delivered message
//
// Returns:
//   - job.Outcome: The outcome that was (or would have been) published
func (h *Handler) Handle(ctx context.Context, jobID string, msg *nats.Msg) job.Outcome {
	start := time.Now()
	h.metrics.RecordJobReceived()

	outcome := job.Normalize(h.process(ctx, jobID, msg.Data))

	switch {
	case msg.Reply == "":
		h.logger.Warn("job has no reply address, reply dropped", "job_id", jobID, "subject", msg.Subject)
		h.metrics.RecordReplyError("no_reply_address")
	default:
		if err := h.publisher.Publish(msg.Reply, outcome); err != nil {
			if natsutil.IsConnectivityError(err) {
				// The connection handlers already report the outage.
				h.logger.Warn("reply not delivered, bus unavailable", "job_id", jobID, "reply_to", msg.Reply, "error", err)
				h.metrics.RecordReplyError("disconnected")
			} else {
				h.logger.Error("failed to publish reply", "job_id", jobID, "reply_to", msg.Reply, "error", err)
				h.metrics.RecordReplyError("publish_failed")
			}
			_ = h.hooks.OnError(ctx, err)
		}
	}

	elapsed := time.Since(start)
	label := job.Label(outcome)
	h.metrics.RecordJobCompleted(label, elapsed.Seconds())

	_, success := outcome.(job.Success)
	if err := h.hooks.OnJobCompleted(ctx, success, elapsed); err != nil {
		h.logger.Warn("OnJobCompleted hook failed", "job_id", jobID, "error", err)
	}
	h.logger.Debug("job completed", "job_id", jobID, "result", label, "duration", elapsed)

	return outcome
}

func (h *Handler) process(ctx context.Context, jobID string, data []byte) job.Outcome {
	req, err := job.Decode(data, h.cfg.Limits)
	if err != nil {
		h.logger.Warn("rejected job", "job_id", jobID, "error", err)
		return job.Failure{Reason: job.ReasonInvalidRequest, Err: err}
	}

	if h.cfg.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.GenerateTimeout)
		defer cancel()
	}

	img, err := h.backend.Generate(ctx, req.Params())
	if err != nil {
		keys := []any{"job_id", jobID, "seed", req.Seed, "steps", req.NumSteps, "height", req.Height, "width", req.Width, "error", err}
		var pe *backend.PanicError
		if errors.As(err, &pe) {
			keys = append(keys, "stack", string(pe.Stack))
		}
		h.logger.Error("generation failed", keys...)

		return job.Failure{Reason: job.ReasonGenerationFailed, Err: err}
	}

	return job.Success{Payload: img.Data, MediaType: img.MediaType}
}
