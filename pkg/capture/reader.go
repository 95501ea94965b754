package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mia21com/handsfree/pkg/audio"
)

const (
	// defaultFrameChanDepth bounds the capture→processing handoff. At 64 ms
	// per frame this is roughly two seconds of headroom before drops begin.
	defaultFrameChanDepth = 32

	// routeChanDepth bounds the route-event channel.
	routeChanDepth = 4
)

// ReaderSource is a [Source] backed by an io.Reader of raw little-endian
// int16 mono PCM. It paces frame delivery at the real-time rate implied by
// the sample rate and frame size, which makes it suitable both for driving
// the demo binary from a file or pipe and for exercising the pipeline in
// tests (pacing can be disabled for deterministic, fast runs).
//
// When the reader reaches EOF the source stops producing frames but stays
// "running" until Stop is called, mirroring a microphone that has gone quiet.
type ReaderSource struct {
	r          io.Reader
	sampleRate int
	frameSize  int // samples per frame
	paced      bool

	frames chan audio.Frame
	routes chan RouteEvent

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	dropped atomic.Uint64
}

// Compile-time check that *ReaderSource satisfies [Source].
var _ Source = (*ReaderSource)(nil)

// ReaderOption configures a [ReaderSource] during construction.
type ReaderOption func(*ReaderSource)

// WithoutPacing disables real-time pacing so frames are emitted as fast as
// the reader and consumer allow. Intended for tests.
func WithoutPacing() ReaderOption {
	return func(s *ReaderSource) { s.paced = false }
}

// WithFrameChannelDepth overrides the bounded frame channel depth.
func WithFrameChannelDepth(n int) ReaderOption {
	return func(s *ReaderSource) {
		if n > 0 {
			s.frames = make(chan audio.Frame, n)
		}
	}
}

// NewReaderSource creates a ReaderSource that cuts r into frames of
// frameSize samples at sampleRate Hz.
func NewReaderSource(r io.Reader, sampleRate, frameSize int, opts ...ReaderOption) *ReaderSource {
	s := &ReaderSource{
		r:          r,
		sampleRate: sampleRate,
		frameSize:  frameSize,
		paced:      true,
		frames:     make(chan audio.Frame, defaultFrameChanDepth),
		routes:     make(chan RouteEvent, routeChanDepth),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start implements [Source]. The first call spawns the capture goroutine;
// subsequent calls while running are no-ops.
func (s *ReaderSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if s.r == nil {
		return ErrDeviceUnavailable
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.captureLoop(runCtx, s.done)
	return nil
}

// Stop implements [Source]. It halts the capture goroutine and waits for it
// to exit. Safe to call repeatedly.
func (s *ReaderSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Frames implements [Source].
func (s *ReaderSource) Frames() <-chan audio.Frame { return s.frames }

// Routes implements [Source].
func (s *ReaderSource) Routes() <-chan RouteEvent { return s.routes }

// Dropped returns the number of frames discarded because the frame channel
// was full.
func (s *ReaderSource) Dropped() uint64 { return s.dropped.Load() }

// captureLoop reads, paces, and emits frames until the context is cancelled
// or the reader is exhausted.
func (s *ReaderSource) captureLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	frameBytes := s.frameSize * 2
	frameDur := time.Duration(s.frameSize) * time.Second / time.Duration(s.sampleRate)

	var ticker *time.Ticker
	if s.paced {
		ticker = time.NewTicker(frameDur)
		defer ticker.Stop()
	}

	var ts time.Duration
	for {
		if ticker != nil {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		} else if ctx.Err() != nil {
			return
		}

		buf := make([]byte, frameBytes)
		n, err := io.ReadFull(s.r, buf)
		if n == 0 {
			if errors.Is(err, io.EOF) {
				// Source exhausted: park until stopped.
				<-ctx.Done()
				return
			}
			s.reportReadFailure(err)
			return
		}
		// A short final read still yields a (shorter) frame.
		frame := audio.Frame{
			Data:       buf[:n-n%2],
			SampleRate: s.sampleRate,
			Channels:   1,
			Timestamp:  ts,
		}
		ts += frame.Duration()

		select {
		case s.frames <- frame:
		default:
			// Never block the capture loop on a slow consumer.
			if s.dropped.Add(1) == 1 {
				slog.Warn("capture: frame channel full, dropping frames")
			}
		}

		if err != nil {
			if !errors.Is(err, io.ErrUnexpectedEOF) {
				s.reportReadFailure(err)
				return
			}
			// Short final read: the stream ended. Park until stopped.
			<-ctx.Done()
			return
		}
	}
}

// reportReadFailure surfaces a broken reader to the consumer as an
// interrupted route, so the engine's restart path takes over instead of the
// frame stream going quiet with no explanation.
func (s *ReaderSource) reportReadFailure(err error) {
	slog.Warn("capture: read failed", "err", err)
	select {
	case s.routes <- RouteEvent{Reason: Interrupted, Detail: err.Error()}:
	default:
	}
}
