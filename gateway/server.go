package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/imgpool/backend"
	"github.com/arloliu/imgpool/internal/logging"
	"github.com/arloliu/imgpool/internal/metrics"
	"github.com/arloliu/imgpool/job"
	"github.com/arloliu/imgpool/types"
)

// HeaderRequestID carries the request identifier. An incoming value is kept,
// otherwise a UUID is assigned.
const HeaderRequestID = "X-Request-Id"

// ErrBackendRequired is returned by New without a backend.
var ErrBackendRequired = errors.New("gateway: backend is required")

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l types.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.MetricsCollector) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithGatherer mounts /metrics for g.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// Server is the HTTP gateway.
type Server struct {
	cfg      Config
	backend  types.Backend
	logger   types.Logger
	metrics  types.MetricsCollector
	gatherer prometheus.Gatherer
	limiter  *limiter
	router   *mux.Router
	srv      *http.Server
}

// New creates a gateway serving b.
//
// b is wrapped so that calls are serialized and panics become errors; it does
// not need to be safe for concurrent use.
//
// Parameters:
//   - cfg: Gateway configuration (modified in place by SetDefaults)
//   - b: Generation backend
//   - opts: Logger, metrics and /metrics gatherer
//
// Returns:
//   - *Server: A server ready for ListenAndServe or Handler
//   - error: Invalid configuration or missing backend
//
// Example:
//
//	cfg := gateway.DefaultConfig()
//	srv, err := gateway.New(&cfg, pattern.New(), gateway.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	go srv.ListenAndServe()
//	defer srv.Shutdown(context.Background())
func New(cfg *Config, b types.Backend, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("gateway: config is required")
	}
	if b == nil {
		return nil, ErrBackendRequired
	}

	SetDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("gateway: invalid config: %w", err)
	}

	s := &Server{
		cfg:     *cfg,
		backend: backend.Safe(backend.Serialized(b)),
		logger:  logging.NewNop(),
		metrics: metrics.NewNop(),
		limiter: newLimiter(cfg.RateLimit),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router = s.routes()
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	return s, nil
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestID)

	r.Handle("/imagePrompt", s.instrument(s.rateLimit(http.HandlerFunc(s.handleImagePrompt)))).
		Methods(http.MethodGet, http.MethodPost)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	if s.gatherer != nil {
		r.Handle("/metrics", metrics.Handler(s.gatherer)).Methods(http.MethodGet)
	}

	return r
}

// Handler returns the gateway's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe listens on Config.Addr until Shutdown. It returns nil after a
// clean shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("gateway listening", "addr", s.cfg.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("gateway listening", "addr", l.Addr().String())
	if err := s.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown stops accepting requests and waits for running ones, bounded by ctx
// or, without a ctx deadline, Config.ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}

	return s.srv.Shutdown(ctx)
}

func (s *Server) handleImagePrompt(w http.ResponseWriter, r *http.Request) {
	requestID := w.Header().Get(HeaderRequestID)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", requestID)
			return
		}
		// An unreadable body counts as no body.
		body = nil
	}

	req, err := ParseRequest(r.URL.Query(), body, s.cfg.Limits)
	if err != nil {
		s.logger.Warn("rejected request", "request_id", requestID, "error", err)
		writeError(w, http.StatusBadRequest, err.Error(), requestID)

		return
	}

	img, err := s.generate(r.Context(), req)
	if err != nil {
		keys := []any{"request_id", requestID, "seed", req.Seed, "steps", req.NumSteps, "error", err}
		var pe *backend.PanicError
		if errors.As(err, &pe) {
			keys = append(keys, "stack", string(pe.Stack))
		}
		s.logger.Error("generation failed", keys...)
		writeError(w, http.StatusInternalServerError, "image generation failed", requestID)

		return
	}

	w.Header().Set("Content-Type", img.MediaType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Data)
}

func (s *Server) generate(ctx context.Context, req job.Request) (types.Image, error) {
	if s.cfg.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.GenerateTimeout)
		defer cancel()
	}

	img, err := s.backend.Generate(ctx, req.Params())
	if err != nil {
		return types.Image{}, err
	}

	out, ok := job.Normalize(job.Success{Payload: img.Data, MediaType: img.MediaType}).(job.Success)
	if !ok {
		return types.Image{}, types.ErrEmptyImage
	}

	return types.Image{Data: out.Payload, MediaType: out.MediaType}, nil
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.allow(r) {
			writeError(w, http.StatusTooManyRequests, "too many requests", w.Header().Get(HeaderRequestID))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		s.metrics.RecordGatewayRequest(rec.status, elapsed.Seconds())
		s.logger.Debug("request served",
			"request_id", w.Header().Get(HeaderRequestID),
			"method", r.Method,
			"status", rec.status,
			"duration", elapsed,
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg, RequestID: requestID})
}
