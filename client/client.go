// Package client submits image generation jobs to a worker pool over NATS
// request/reply and decodes the replies.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/arloliu/imgpool/internal/natsutil"
	"github.com/arloliu/imgpool/internal/reply"
	"github.com/arloliu/imgpool/job"
	"github.com/arloliu/imgpool/types"
)

var (
	// ErrNoWorkers is returned when no worker is subscribed to the subject.
	ErrNoWorkers = errors.New("client: no workers available")

	// ErrJobFailed is returned by GenerateImage when the worker answered with success=false.
	ErrJobFailed = errors.New("client: job failed")

	// ErrNilConn is returned by New without a connection.
	ErrNilConn = errors.New("client: nats connection is required")
)

// DefaultTimeout bounds a request whose context has no deadline.
const DefaultTimeout = 5 * time.Minute

// Option configures a Client.
type Option func(*Client)

// WithSubject sets the job subject. Default: job.DefaultSubject.
func WithSubject(subject string) Option {
	return func(c *Client) {
		if subject != "" {
			c.subject = subject
		}
	}
}

// WithTimeout sets the timeout used when the context has no deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Client sends jobs to the pool. It is safe for concurrent use.
type Client struct {
	nc      *nats.Conn
	subject string
	timeout time.Duration
}

// Result is a decoded reply together with the failure code, when the worker
// exposes one.
type Result struct {
	job.Reply
	Reason job.FailureReason
}

// New creates a client on nc. The caller keeps ownership of nc.
//
// Example:
//
//	c, err := client.New(nc)
//	if err != nil {
//	    return err
//	}
//	res, err := c.Generate(ctx, job.Request{Seed: 1, Prompt: "cat", NumSteps: 20, Height: 512, Width: 512})
func New(nc *nats.Conn, opts ...Option) (*Client, error) {
	if nc == nil {
		return nil, ErrNilConn
	}

	c := &Client{nc: nc, subject: job.DefaultSubject, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Generate sends req and waits for its reply.
//
// A worker-side failure is not an error: it comes back as a Result with
// Success false. Errors are transport problems only.
//
// Returns:
//   - Result: The decoded reply
//   - error: ErrNoWorkers, a timeout or another transport error
func (c *Client) Generate(ctx context.Context, req job.Request) (Result, error) {
	data, err := req.Marshal()
	if err != nil {
		return Result{}, fmt.Errorf("encode request: %w", err)
	}

	return c.Raw(ctx, data)
}

// Raw sends an arbitrary payload as a job. Useful for probing validation.
func (c *Client) Raw(ctx context.Context, data []byte) (Result, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	msg, err := c.nc.RequestWithContext(ctx, c.subject, data)
	if err != nil {
		if natsutil.IsNoWorkers(err) {
			return Result{}, fmt.Errorf("%w on subject %q", ErrNoWorkers, c.subject)
		}

		return Result{}, fmt.Errorf("request on %q: %w", c.subject, err)
	}

	return Result{Reply: reply.Decode(msg), Reason: reply.Reason(msg)}, nil
}

// GenerateImage is Generate with a failed reply turned into an error wrapping
// ErrJobFailed.
func (c *Client) GenerateImage(ctx context.Context, req job.Request) (types.Image, error) {
	res, err := c.Generate(ctx, req)
	if err != nil {
		return types.Image{}, err
	}
	if !res.Success {
		if res.Reason != "" {
			return types.Image{}, fmt.Errorf("%w: %s", ErrJobFailed, res.Reason)
		}

		return types.Image{}, ErrJobFailed
	}

	return types.Image{Data: res.Payload, MediaType: res.MediaType}, nil
}
