package imgpool

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/imgpool/internal/bus"
	"github.com/arloliu/imgpool/internal/handler"
	"github.com/arloliu/imgpool/internal/hooks"
	"github.com/arloliu/imgpool/internal/logging"
	"github.com/arloliu/imgpool/internal/metrics"
	"github.com/arloliu/imgpool/internal/presence"
	"github.com/arloliu/imgpool/internal/reply"
)

// Worker is one member of the image generation pool.
//
// A Worker owns its NATS connection and exactly one queue subscription. Jobs are
// handled serially unless Config.Concurrency says otherwise. Stop drains: it
// stops intake, lets every job already received finish and publish its reply,
// and only then closes the connection.
//
// Lifecycle:
//
//	Init → Running → Draining → Closed
type Worker struct {
	cfg      Config
	id       string
	hostname string
	conn     *nats.Conn
	client   *bus.Client
	handler  *handler.Handler
	hooks    Hooks
	metrics  MetricsCollector
	logger   Logger

	// mu serializes Start and Stop.
	mu        sync.Mutex
	state     atomic.Int32
	stateAt   atomic.Int64
	startedAt time.Time

	sub      *bus.Subscription
	presence *presence.Publisher

	jobCtx    context.Context
	jobCancel context.CancelFunc
	active    atomic.Int64
	inflight  *xsync.Map[string, time.Time]
	handled   atomic.Int64
	sem       chan struct{}

	doneOnce sync.Once
	done     chan struct{}
}

// NewWorker creates a worker that will serve jobs from conn using backend.
//
// The worker takes ownership of conn: Stop drains and closes it. cfg is copied
// after defaults are applied and validated.
//
// Parameters:
//   - cfg: Worker configuration (modified in place by SetDefaults)
//   - conn: Open NATS connection, owned by the worker from now on
//   - backend: Image generation backend
//   - opts: Optional logger, metrics, hooks and worker ID
//
// Returns:
//   - *Worker: A worker in StateInit
//   - error: ErrInvalidConfig, ErrNATSConnectionRequired or ErrBackendRequired
//
// Example:
//
//	cfg := imgpool.DefaultConfig()
//	w, err := imgpool.NewWorker(&cfg, nc, pattern.New(), imgpool.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := w.Start(ctx); err != nil {
//	    return err
//	}
//	defer w.Stop(context.Background())
func NewWorker(cfg *Config, conn *nats.Conn, backend Backend, opts ...Option) (*Worker, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if conn == nil {
		return nil, ErrNATSConnectionRequired
	}
	if backend == nil {
		return nil, ErrBackendRequired
	}

	SetDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	options := &workerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	metricsCollector := options.metrics
	if metricsCollector == nil {
		metricsCollector = metrics.NewNop()
	}
	loggerInstance := options.logger
	if loggerInstance == nil {
		loggerInstance = logging.NewNop()
	}
	cfg.ValidateWithWarnings(loggerInstance)

	var h Hooks
	if options.hooks != nil {
		h = *options.hooks
	}
	h = hooks.Fill(h)

	id := options.workerID
	if id == "" {
		id = uuid.NewString()
	}

	hostname, err := os.Hostname()
	if err != nil {
		loggerInstance.Warn("hostname unavailable, presence records will omit it", "worker_id", id, "error", err)
	}

	client, err := bus.Wrap(conn, loggerInstance)
	if err != nil {
		return nil, err
	}

	w := &Worker{
		cfg:      *cfg,
		id:       id,
		hostname: hostname,
		conn:     conn,
		client:   client,
		hooks:    h,
		metrics:  metricsCollector,
		logger:   loggerInstance,
		inflight: xsync.NewMap[string, time.Time](),
		done:     make(chan struct{}),
	}
	w.jobCtx, w.jobCancel = context.WithCancel(context.Background())
	w.handler = handler.New(handler.Config{
		Limits:          cfg.Limits,
		GenerateTimeout: cfg.GenerateTimeout,
	}, backend, reply.New(client, cfg.ExposeFailureReason), loggerInstance, metricsCollector, h)
	if cfg.Concurrency > 1 {
		w.sem = make(chan struct{}, cfg.Concurrency)
	}

	w.state.Store(int32(StateInit))
	w.stateAt.Store(time.Now().UnixNano())

	return w, nil
}

// Start subscribes to the job subject in the queue group and moves to
// StateRunning. When presence is enabled the worker also registers itself in
// the presence bucket.
//
// Returns:
//   - error: ErrAlreadyStarted, or a subscription / presence bucket error
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.State() != StateInit {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithTimeout(ctx, w.cfg.StartupTimeout)
	defer cancel()

	var kv jetstream.KeyValue
	if w.cfg.Presence.Enabled {
		js, err := jetstream.New(w.conn)
		if err != nil {
			return fmt.Errorf("create JetStream context: %w", err)
		}
		kv, err = presence.OpenBucket(ctx, js, w.cfg.Presence.Bucket, w.cfg.Presence.Interval)
		if err != nil {
			return fmt.Errorf("open presence bucket: %w", err)
		}
	}

	sub, err := w.client.Subscribe(w.cfg.Subject, w.cfg.QueueGroup, w.onMessage)
	if err != nil {
		return err
	}
	w.sub = sub
	w.startedAt = time.Now().UTC()

	if err := w.transitionState(StateInit, StateRunning); err != nil {
		return err
	}

	if kv != nil {
		pub := presence.New(kv, w.cfg.Presence.KeyPrefix, w.cfg.Presence.Interval, w.Snapshot)
		pub.SetMetrics(w.metrics)
		pub.SetLogger(w.logger)
		if err := pub.Start(ctx); err != nil {
			w.logger.Warn("presence registration failed, continuing without it", "worker_id", w.id, "error", err)
		} else {
			w.presence = pub
		}
	}

	go w.watchConnection()

	w.logger.Info("worker started",
		"worker_id", w.id,
		"subject", w.cfg.Subject,
		"queue_group", w.cfg.QueueGroup,
		"concurrency", w.cfg.Concurrency,
	)

	return nil
}

// Stop drains the worker.
//
// Intake stops first; jobs already delivered to this worker still run to
// completion and publish their replies; then the connection is drained and
// closed. A job is never interrupted unless ctx expires, in which case the
// connection is closed at once and an error wrapping ErrDrainTimeout is returned.
// Without a ctx deadline, Config.DrainTimeout applies.
//
// Stop is idempotent once the worker is closed.
//
// Returns:
//   - error: ErrNotStarted before Start, ErrDrainTimeout on deadline
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.State() {
	case StateInit:
		return ErrNotStarted
	case StateClosed:
		return nil
	default:
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.DrainTimeout)
		defer cancel()
	}

	if err := w.transitionState(StateRunning, StateDraining); err != nil {
		// The connection was lost concurrently and the worker is already closed.
		if w.State() == StateClosed {
			return nil
		}

		return err
	}
	w.logger.Info("draining worker", "worker_id", w.id, "in_flight", w.InFlight())

	w.stopPresence()

	err := w.client.Unsubscribe(ctx, w.sub)
	if err == nil {
		err = w.waitIdle(ctx)
	}
	if err == nil {
		err = w.client.Drain(ctx)
	}
	if err != nil {
		w.client.Close()
		w.logger.Error("drain did not complete", "worker_id", w.id, "in_flight", w.InFlight(), "error", err)
		_ = w.hooks.OnError(ctx, err)
	}

	w.jobCancel()
	if tErr := w.transitionState(StateDraining, StateClosed); tErr != nil {
		w.logger.Error("failed to close worker", "worker_id", w.id, "error", tErr)
	}
	w.closeDone()

	w.logger.Info("worker stopped", "worker_id", w.id, "jobs_handled", w.handled.Load())

	return err
}

// waitIdle blocks until no job is inside the handler.
func (w *Worker) waitIdle(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for w.active.Load() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %d jobs still in flight: %w", ErrDrainTimeout, w.active.Load(), ctx.Err())
		case <-ticker.C:
		}
	}

	return nil
}

func (w *Worker) onMessage(msg *nats.Msg) {
	w.active.Add(1)

	if w.sem == nil {
		defer w.active.Add(-1)
		w.process(msg)

		return
	}

	w.sem <- struct{}{}
	go func() {
		defer w.active.Add(-1)
		defer func() { <-w.sem }()
		w.process(msg)
	}()
}

func (w *Worker) process(msg *nats.Msg) {
	jobID := uuid.NewString()
	w.inflight.Store(jobID, time.Now())
	w.metrics.SetInFlightJobs(w.inflight.Size())

	defer func() {
		w.inflight.Delete(jobID)
		w.metrics.SetInFlightJobs(w.inflight.Size())
		w.handled.Add(1)
	}()

	w.handler.Handle(w.jobCtx, jobID, msg)
}

// watchConnection closes the worker when the connection ends outside Stop,
// e.g. when the reconnect budget runs out.
func (w *Worker) watchConnection() {
	select {
	case <-w.done:
		return
	case <-w.client.Done():
	}

	if w.State() != StateRunning {
		return
	}
	if err := w.transitionState(StateRunning, StateClosed); err != nil {
		return
	}

	w.logger.Error("bus connection closed while running", "worker_id", w.id, "last_error", w.conn.LastError())
	_ = w.hooks.OnError(context.Background(), fmt.Errorf("bus connection closed: %w", nats.ErrConnectionClosed))
	w.stopPresence()
	w.jobCancel()
	w.closeDone()
}

func (w *Worker) stopPresence() {
	if w.presence == nil || !w.presence.IsStarted() {
		return
	}
	if err := w.presence.Stop(); err != nil {
		w.logger.Warn("failed to remove presence record", "worker_id", w.id, "error", err)
	}
}

func (w *Worker) closeDone() {
	w.doneOnce.Do(func() { close(w.done) })
}

// ID returns the worker's process-unique identifier.
func (w *Worker) ID() string {
	return w.id
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Done is closed when the worker reaches StateClosed, whether through Stop or
// because the bus connection was lost.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// InFlight returns the number of jobs currently being handled.
func (w *Worker) InFlight() int {
	return int(w.active.Load())
}

// JobsHandled returns the number of jobs answered so far.
func (w *Worker) JobsHandled() int64 {
	return w.handled.Load()
}

// Snapshot returns the worker's presence record.
func (w *Worker) Snapshot() presence.Record {
	return presence.Record{
		ID:          w.id,
		Hostname:    w.hostname,
		State:       w.State().String(),
		Subject:     w.cfg.Subject,
		Group:       w.cfg.QueueGroup,
		StartedAt:   w.startedAt,
		JobsHandled: w.handled.Load(),
		InFlight:    w.InFlight(),
	}
}

// WaitState waits for the worker to reach expectedState.
//
// The returned channel receives nil when the state is reached or
// context.DeadlineExceeded after timeout, then closes.
func (w *Worker) WaitState(expectedState State, timeout time.Duration) <-chan error {
	ch := make(chan error, 1)

	go func() {
		defer close(ch)

		if w.State() == expectedState {
			ch <- nil
			return
		}

		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		for {
			select {
			case <-ticker.C:
				if w.State() == expectedState {
					ch <- nil
					return
				}
			case <-timer.C:
				ch <- context.DeadlineExceeded
				return
			}
		}
	}()

	return ch
}

var validTransitions = map[State][]State{
	StateInit:     {StateRunning, StateClosed},
	StateRunning:  {StateDraining, StateClosed},
	StateDraining: {StateClosed},
	StateClosed:   {},
}

func isValidTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}

	return false
}

// transitionState moves from → to atomically. It fails if the transition is not
// allowed or the worker is no longer in from.
func (w *Worker) transitionState(from, to State) error {
	if !isValidTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, from, to)
	}
	if !w.state.CompareAndSwap(int32(from), int32(to)) { //nolint:gosec // State values are a small enum
		return fmt.Errorf("%w: %s -> %s, current state %s", ErrInvalidStateTransition, from, to, w.State())
	}

	now := time.Now()
	since := time.Unix(0, w.stateAt.Swap(now.UnixNano()))

	w.logger.Info("state transition", "from", from.String(), "to", to.String(), "worker_id", w.id)
	w.metrics.RecordStateTransition(from, to, now.Sub(since).Seconds())

	if err := w.hooks.OnStateChanged(context.Background(), from, to); err != nil {
		w.logger.Warn("state change hook error", "from", from.String(), "to", to.String(), "error", err)
	}

	return nil
}
