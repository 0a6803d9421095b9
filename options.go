package imgpool

// Option configures a Worker with optional dependencies.
type Option func(*workerOptions)

type workerOptions struct {
	hooks    *Hooks
	metrics  MetricsCollector
	logger   Logger
	workerID string
}

// WithHooks sets lifecycle callbacks. Nil callbacks are ignored.
//
// Example:
//
//	w, _ := imgpool.NewWorker(&cfg, nc, backend, imgpool.WithHooks(&imgpool.Hooks{
//	    OnJobCompleted: func(ctx context.Context, ok bool, d time.Duration) error {
//	        return nil
//	    },
//	}))
func WithHooks(hooks *Hooks) Option {
	return func(o *workerOptions) {
		o.hooks = hooks
	}
}

// WithMetrics sets a metrics collector.
//
// Example:
//
//	collector := metrics.NewPrometheus(prometheus.DefaultRegisterer, "imgpool")
//	w, _ := imgpool.NewWorker(&cfg, nc, backend, imgpool.WithMetrics(collector))
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *workerOptions) {
		o.metrics = metrics
	}
}

// WithLogger sets a logger. The default discards everything.
func WithLogger(logger Logger) Option {
	return func(o *workerOptions) {
		o.logger = logger
	}
}

// WithWorkerID overrides the generated worker ID. IDs must be unique within the
// presence registry; the default is a random UUID.
func WithWorkerID(id string) Option {
	return func(o *workerOptions) {
		o.workerID = id
	}
}
