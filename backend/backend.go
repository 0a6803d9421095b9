// Package backend provides lifetime management and safety wrappers around
// types.Backend implementations.
//
// Concrete generators live in subpackages: pattern (deterministic procedural
// PNG), openai (hosted image API) and cache (Redis-backed result cache).
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync"

	"github.com/arloliu/imgpool/types"
)

// Lifetime selects when a backend instance is created.
type Lifetime string

const (
	// LifetimeShared creates one instance on first use and reuses it.
	LifetimeShared Lifetime = "shared"

	// LifetimePerJob creates a fresh instance for every call and closes it after.
	LifetimePerJob Lifetime = "per_job"
)

// ErrUnknownLifetime is returned by ParseLifetime for unsupported values.
var ErrUnknownLifetime = errors.New("backend: unknown lifetime")

// ParseLifetime parses "shared" or "per_job". The empty string is "shared".
func ParseLifetime(s string) (Lifetime, error) {
	switch Lifetime(s) {
	case "", LifetimeShared:
		return LifetimeShared, nil
	case LifetimePerJob:
		return LifetimePerJob, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownLifetime, s)
	}
}

// Factory creates a backend instance. Instances implementing io.Closer are
// closed when their lifetime ends.
type Factory func(ctx context.Context) (types.Backend, error)

// Managed is a backend whose instances are created by a Factory according to a
// Lifetime.
type Managed struct {
	factory  Factory
	lifetime Lifetime

	mu       sync.Mutex
	instance types.Backend
}

var _ types.Backend = (*Managed)(nil)

// NewManaged creates a managed backend. No instance is created until the first
// Generate or an explicit Warm.
func NewManaged(factory Factory, lifetime Lifetime) *Managed {
	return &Managed{factory: factory, lifetime: lifetime}
}

// Warm creates the shared instance ahead of the first job, so model loading
// happens at worker startup. It is a no-op for per-job lifetime.
func (m *Managed) Warm(ctx context.Context) error {
	if m.lifetime == LifetimePerJob {
		return nil
	}
	_, err := m.shared(ctx)

	return err
}

func (m *Managed) shared(ctx context.Context) (types.Backend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.instance == nil {
		b, err := m.factory(ctx)
		if err != nil {
			return nil, fmt.Errorf("create backend: %w", err)
		}
		m.instance = b
	}

	return m.instance, nil
}

// Generate implements types.Backend.
func (m *Managed) Generate(ctx context.Context, params types.GenerateParams) (types.Image, error) {
	if m.lifetime == LifetimePerJob {
		b, err := m.factory(ctx)
		if err != nil {
			return types.Image{}, fmt.Errorf("create backend: %w", err)
		}
		defer closeBackend(b)

		return b.Generate(ctx, params)
	}

	b, err := m.shared(ctx)
	if err != nil {
		return types.Image{}, err
	}

	return b.Generate(ctx, params)
}

// Close releases the shared instance, if any.
func (m *Managed) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.instance
	m.instance = nil
	if c, ok := b.(io.Closer); ok {
		return c.Close()
	}

	return nil
}

func closeBackend(b types.Backend) {
	if c, ok := b.(io.Closer); ok {
		_ = c.Close()
	}
}

// Serialized wraps b so that at most one Generate runs at a time. Use it when
// several goroutines (HTTP handlers) share one backend that is not safe for
// concurrent use.
func Serialized(b types.Backend) types.Backend {
	return &serialized{next: b}
}

type serialized struct {
	mu   sync.Mutex
	next types.Backend
}

func (s *serialized) Generate(ctx context.Context, params types.GenerateParams) (types.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return types.Image{}, err
	}

	return s.next.Generate(ctx, params)
}

// PanicError is returned by Safe when the wrapped backend panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("backend panicked: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	return types.ErrBackendPanic
}

// Safe wraps b so that a panic inside Generate is returned as a *PanicError.
func Safe(b types.Backend) types.Backend {
	return types.BackendFunc(func(ctx context.Context, params types.GenerateParams) (img types.Image, err error) {
		defer func() {
			if r := recover(); r != nil {
				img = types.Image{}
				err = &PanicError{Value: r, Stack: debug.Stack()}
			}
		}()

		return b.Generate(ctx, params)
	})
}
