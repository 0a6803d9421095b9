package testing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/imgpool/types"
)

// StubMediaType is the media type StubBackend reports.
const StubMediaType = "image/x-stub"

// StubBackend is a scripted types.Backend.
//
// By default every call succeeds with payload "img:<seed>:<prompt>", so replies
// can be correlated with their requests. Configure the exported fields before the
// backend is first used.
type StubBackend struct {
	// Err, when set, is returned by every call.
	Err error

	// Panic, when non-nil, is raised by every call.
	Panic any

	// Delay is slept before answering.
	Delay time.Duration

	// Gate, when non-nil, blocks every call until it is closed.
	Gate chan struct{}

	// Started, when non-nil, receives the params of each call as it begins.
	Started chan types.GenerateParams

	mu        sync.Mutex
	calls     []types.GenerateParams
	active    atomic.Int32
	maxActive atomic.Int32
}

var _ types.Backend = (*StubBackend)(nil)

// NewStubBackend returns a backend that always succeeds.
func NewStubBackend() *StubBackend {
	return &StubBackend{}
}

// Generate implements types.Backend.
func (s *StubBackend) Generate(_ context.Context, params types.GenerateParams) (types.Image, error) {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		cur := s.maxActive.Load()
		if n <= cur || s.maxActive.CompareAndSwap(cur, n) {
			break
		}
	}

	s.mu.Lock()
	s.calls = append(s.calls, params)
	s.mu.Unlock()

	if s.Started != nil {
		s.Started <- params
	}
	if s.Gate != nil {
		<-s.Gate
	}
	if s.Delay > 0 {
		time.Sleep(s.Delay)
	}
	if s.Panic != nil {
		panic(s.Panic)
	}
	if s.Err != nil {
		return types.Image{}, s.Err
	}

	return types.Image{
		Data:      []byte(fmt.Sprintf("img:%d:%s", params.Seed, params.Prompt)),
		MediaType: StubMediaType,
	}, nil
}

// Calls returns a copy of the parameters of every call so far.
func (s *StubBackend) Calls() []types.GenerateParams {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]types.GenerateParams(nil), s.calls...)
}

// CallCount returns the number of calls so far.
func (s *StubBackend) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.calls)
}

// MaxConcurrent returns the highest number of overlapping calls observed.
func (s *StubBackend) MaxConcurrent() int {
	return int(s.maxActive.Load())
}
