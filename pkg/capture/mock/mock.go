// Package mock provides a scriptable test double for the capture package.
//
// Use Source to control exactly which frames and route events the engine
// sees, and to count device acquisitions:
//
//	src := mock.NewSource()
//	_ = src.Start(ctx)
//	src.EmitFrame(frame)
//	src.EmitRoute(capture.RouteEvent{Reason: capture.RouteChanged})
package mock

import (
	"context"
	"sync"

	"github.com/mia21com/handsfree/pkg/audio"
	"github.com/mia21com/handsfree/pkg/capture"
)

// Source is a mock implementation of capture.Source. Frames and route events
// are injected by the test via EmitFrame / EmitRoute.
type Source struct {
	mu sync.Mutex

	// StartErrs is a script of errors returned by successive Start calls
	// that attempt an acquisition (calls while already running consume
	// nothing). Once exhausted, Start succeeds.
	StartErrs []error

	// StartCallCount counts every Start invocation, including no-ops.
	StartCallCount int

	// AcquireCount counts successful device acquisitions (Start calls that
	// transitioned the source from stopped to running).
	AcquireCount int

	// StopCallCount counts every Stop invocation.
	StopCallCount int

	running bool
	nextErr int

	frames chan audio.Frame
	routes chan capture.RouteEvent
}

// Compile-time check that *Source satisfies capture.Source.
var _ capture.Source = (*Source)(nil)

// NewSource creates a mock source with generously buffered channels so tests
// never block on emission.
func NewSource() *Source {
	return &Source{
		frames: make(chan audio.Frame, 256),
		routes: make(chan capture.RouteEvent, 16),
	}
}

// Start records the call and consumes the next scripted error, if any.
func (s *Source) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.StartCallCount++
	if s.running {
		return nil
	}
	if s.nextErr < len(s.StartErrs) {
		err := s.StartErrs[s.nextErr]
		s.nextErr++
		if err != nil {
			return err
		}
	}
	s.running = true
	s.AcquireCount++
	return nil
}

// Stop records the call.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StopCallCount++
	s.running = false
	return nil
}

// Frames implements capture.Source.
func (s *Source) Frames() <-chan audio.Frame { return s.frames }

// Routes implements capture.Source.
func (s *Source) Routes() <-chan capture.RouteEvent { return s.routes }

// Running reports whether the source is currently "acquired".
func (s *Source) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// EmitFrame injects a frame as if the device had captured it.
func (s *Source) EmitFrame(f audio.Frame) { s.frames <- f }

// EmitRoute injects a route-change event.
func (s *Source) EmitRoute(ev capture.RouteEvent) { s.routes <- ev }
