package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/imgpool/internal/kvutil"
	"github.com/arloliu/imgpool/internal/logging"
	"github.com/arloliu/imgpool/internal/natsutil"
	"github.com/arloliu/imgpool/types"
)

var (
	ErrNotStarted     = errors.New("presence publisher not started")
	ErrAlreadyStarted = errors.New("presence publisher already started")
	ErrNoWorkerID     = errors.New("snapshot has no worker ID")
)

// Record is the value stored for one worker.
type Record struct {
	ID          string    `json:"id"`
	Hostname    string    `json:"hostname,omitempty"`
	State       string    `json:"state"`
	Subject     string    `json:"subject"`
	Group       string    `json:"group"`
	StartedAt   time.Time `json:"started_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	JobsHandled int64     `json:"jobs_handled"`
	InFlight    int       `json:"in_flight"`
}

// OpenBucket creates or opens the presence bucket with a TTL of three intervals.
func OpenBucket(ctx context.Context, js jetstream.JetStream, bucket string, interval time.Duration) (jetstream.KeyValue, error) {
	return kvutil.EnsureBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "imgpool live workers",
		History:     1,
		TTL:         3 * interval,
		Storage:     jetstream.MemoryStorage,
	}, kvutil.RetryPolicy{Attempts: 5})
}

// Publisher writes a worker's Record to the bucket periodically.
type Publisher struct {
	kv       jetstream.KeyValue
	prefix   string
	interval time.Duration
	snapshot func() Record
	metrics  types.MetricsCollector
	logger   types.Logger

	mu      sync.Mutex
	started bool
	key     string
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a publisher. snapshot is called on every write and must be safe
// to call from another goroutine.
func New(kv jetstream.KeyValue, prefix string, interval time.Duration, snapshot func() Record) *Publisher {
	return &Publisher{
		kv:       kv,
		prefix:   prefix,
		interval: interval,
		snapshot: snapshot,
		logger:   logging.NewNop(),
	}
}

// SetMetrics sets the collector heartbeat results are reported to.
func (p *Publisher) SetMetrics(metrics types.MetricsCollector) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.metrics = metrics
}

// SetLogger sets the logger used for failed background writes.
func (p *Publisher) SetLogger(logger types.Logger) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.logger = logger
}

// Start writes the first record synchronously and then keeps writing every
// interval until Stop.
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}

	rec := p.snapshot()
	if rec.ID == "" {
		return ErrNoWorkerID
	}
	p.key = Key(p.prefix, rec.ID)

	if err := p.put(ctx, rec); err != nil {
		return fmt.Errorf("failed to publish initial presence: %w", err)
	}

	p.started = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	go p.loop(p.stopCh, p.doneCh)

	return nil
}

// Stop ends the loop and deletes the worker's key.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrNotStarted
	}
	p.started = false
	close(p.stopCh)
	done := p.doneCh
	p.mu.Unlock()

	<-done

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := p.kv.Delete(ctx, p.key); err != nil {
		return fmt.Errorf("stopped but failed to delete presence key: %w", err)
	}

	return nil
}

// IsStarted reports whether the loop is running.
func (p *Publisher) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.started
}

func (p *Publisher) loop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), p.interval)
			err := p.put(ctx, p.snapshot())
			cancel()

			if err != nil {
				p.mu.Lock()
				logger := p.logger
				p.mu.Unlock()
				if natsutil.IsConnectivityError(err) {
					logger.Debug("presence heartbeat skipped, bus unavailable", "key", p.key, "error", err)
				} else {
					logger.Warn("presence heartbeat failed", "key", p.key, "error", err)
				}
			}
		}
	}
}

func (p *Publisher) put(ctx context.Context, rec Record) error {
	rec.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	_, err = p.kv.Put(ctx, Key(p.prefix, rec.ID), data)
	p.record(rec.ID, err == nil)
	if err != nil {
		return fmt.Errorf("failed to publish presence for %s: %w", rec.ID, err)
	}

	return nil
}

func (p *Publisher) record(workerID string, success bool) {
	if p.metrics != nil {
		p.metrics.RecordHeartbeat(workerID, success)
	}
}

// Key returns the KV key of a worker.
func Key(prefix, workerID string) string {
	return prefix + "." + workerID
}
