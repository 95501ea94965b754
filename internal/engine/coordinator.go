package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mia21com/handsfree/internal/observe"
	"github.com/mia21com/handsfree/internal/segment"
	"github.com/mia21com/handsfree/pkg/capture"
	"github.com/mia21com/handsfree/pkg/transcribe"
	"github.com/mia21com/handsfree/pkg/vad"
)

// Default restart policy applied by [NewCoordinator] when the corresponding
// Config field is zero.
const (
	defaultSettleDelay    = 200 * time.Millisecond
	defaultRestartBackoff = 250 * time.Millisecond
	defaultRestartMaxBack = 4 * time.Second
	defaultRestartRetries = 5
	defaultEventBuffer    = 64
)

// ErrRestartFailed is wrapped into the [EventError] emitted when the capture
// source cannot be re-acquired within the configured attempt budget.
var ErrRestartFailed = errors.New("engine: capture restart failed")

// Config assembles the coordinator's collaborators and tuning values.
type Config struct {
	// Source provides microphone frames. Required.
	Source capture.Source

	// Detector classifies frames as speech or silence. Required.
	Detector vad.Detector

	// Gateway receives finished WAV segments. Required.
	Gateway transcribe.Gateway

	// Segmenter configures utterance boundaries. Segmenter.SampleRate is
	// required.
	Segmenter segment.Config

	// SettleDelay is how long after assistant playback stops before capture
	// resumes. Default: 200 ms.
	SettleDelay time.Duration

	// RestartBackoff is the initial delay before a capture restart attempt.
	// Doubles per attempt up to RestartMaxBackoff. Default: 250 ms.
	RestartBackoff time.Duration

	// RestartMaxBackoff caps the exponential backoff. Default: 4 s.
	RestartMaxBackoff time.Duration

	// RestartMaxAttempts bounds consecutive failed restarts before the
	// engine gives up and emits [EventError]. Default: 5.
	RestartMaxAttempts int

	// Metrics receives pipeline instrumentation. When nil the package-level
	// default instance is used.
	Metrics *observe.Metrics

	// EventBuffer is the capacity of the Events channel. Default: 64.
	EventBuffer int
}

// commandKind identifies a suppression notification queued for the run
// goroutine.
type commandKind int

const (
	cmdSpeakingStarted commandKind = iota
	cmdSpeakingStopped
)

// Coordinator drives the hands-free conversation pipeline. Create one with
// [NewCoordinator]; all exported methods are safe for concurrent use.
type Coordinator struct {
	source   capture.Source
	detector vad.Detector
	gateway  transcribe.Gateway
	metrics  *observe.Metrics

	settleDelay    time.Duration
	restartBackoff time.Duration
	restartMaxBack time.Duration
	restartRetries int

	asm    *segment.Assembler
	events chan Event
	cmds   chan commandKind

	state atomic.Int32

	// wg tracks in-flight transcription goroutines.
	wg sync.WaitGroup

	// eventsDropped counts events discarded because the consumer lagged.
	eventsDropped atomic.Int64
	dropWarnOnce  sync.Once

	mu      sync.Mutex
	running bool
	done    chan struct{}
	exited  chan struct{}
}

// NewCoordinator validates cfg and builds a stopped [Coordinator].
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("engine: Source is required")
	}
	if cfg.Detector == nil {
		return nil, fmt.Errorf("engine: Detector is required")
	}
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("engine: Gateway is required")
	}
	asm, err := segment.New(cfg.Segmenter)
	if err != nil {
		return nil, err
	}

	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	if cfg.RestartBackoff <= 0 {
		cfg.RestartBackoff = defaultRestartBackoff
	}
	if cfg.RestartMaxBackoff <= 0 {
		cfg.RestartMaxBackoff = defaultRestartMaxBack
	}
	if cfg.RestartMaxAttempts <= 0 {
		cfg.RestartMaxAttempts = defaultRestartRetries
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}

	return &Coordinator{
		source:         cfg.Source,
		detector:       cfg.Detector,
		gateway:        cfg.Gateway,
		metrics:        cfg.Metrics,
		settleDelay:    cfg.SettleDelay,
		restartBackoff: cfg.RestartBackoff,
		restartMaxBack: cfg.RestartMaxBackoff,
		restartRetries: cfg.RestartMaxAttempts,
		asm:            asm,
		events:         make(chan Event, cfg.EventBuffer),
		cmds:           make(chan commandKind, 16),
	}, nil
}

// Events returns the engine notification channel. Events are dropped, not
// blocked on, when the consumer falls behind; the channel is never closed.
func (c *Coordinator) Events() <-chan Event { return c.events }

// State returns the current lifecycle state.
func (c *Coordinator) State() State { return State(c.state.Load()) }

// EventsDropped returns how many events were discarded because the consumer
// lagged.
func (c *Coordinator) EventsDropped() int64 { return c.eventsDropped.Load() }

// Start acquires the capture source and launches the pipeline goroutine.
// Calling Start while already running is a no-op returning nil — exactly one
// device acquisition occurs per running period. Permission failures are
// returned directly (and mirrored as [EventPermissionDenied]) so callers can
// prompt the user. After the engine has given up on capture recovery
// ([ErrRestartFailed] or permission revocation mid-restart) it is back in
// [StateIdle] and Start may be called again to acquire the device anew.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	if err := c.source.Start(ctx); err != nil {
		if errors.Is(err, capture.ErrPermissionDenied) {
			c.emit(Event{Kind: EventPermissionDenied, Err: err})
		}
		return fmt.Errorf("engine: start capture: %w", err)
	}

	c.running = true
	c.done = make(chan struct{})
	c.exited = make(chan struct{})
	c.state.Store(int32(StateListening))
	c.detector.Reset()

	go c.run(ctx, c.done, c.exited)

	c.emit(Event{Kind: EventListeningStarted})
	return nil
}

// Stop halts the pipeline, releases the capture device, and waits for
// in-flight transcriptions to finish. A partially accumulated segment is
// discarded, not transcribed. Safe to call multiple times and when not
// running.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	done, exited := c.done, c.exited
	c.mu.Unlock()

	close(done)
	<-exited

	err := c.source.Stop()
	c.wg.Wait()

	c.state.Store(int32(StateIdle))
	c.emit(Event{Kind: EventListeningStopped})
	if err != nil {
		return fmt.Errorf("engine: stop capture: %w", err)
	}
	return nil
}

// NotifySpeakingStarted suppresses capture while the assistant speaks. Any
// partially accumulated user segment is discarded so the assistant's voice
// cannot leak into a transcription. No-op when the engine is not running.
func (c *Coordinator) NotifySpeakingStarted() {
	c.send(cmdSpeakingStarted)
}

// NotifySpeakingStopped schedules capture to resume after the settle delay,
// letting speaker echo decay before frames are classified again. No-op when
// the engine is not running.
func (c *Coordinator) NotifySpeakingStopped() {
	c.send(cmdSpeakingStopped)
}

// send queues a suppression notification for the run goroutine, giving up if
// the engine stops first. The channel is buffered so playback callbacks are
// never stalled behind a capture restart.
func (c *Coordinator) send(kind commandKind) {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	done := c.done
	c.mu.Unlock()

	select {
	case c.cmds <- kind:
	case <-done:
	}
}

// emit publishes an event without ever blocking the pipeline.
func (c *Coordinator) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.eventsDropped.Add(1)
		c.dropWarnOnce.Do(func() {
			slog.Warn("engine: event consumer lagging, dropping events",
				"kind", ev.Kind.String(),
			)
		})
	}
}

// run is the pipeline goroutine. It owns the assembler, the detector, the
// suppression timer, and all state transitions.
func (c *Coordinator) run(ctx context.Context, done <-chan struct{}, exited chan<- struct{}) {
	defer close(exited)

	// lastActive tracks the previous VAD label for edge-triggered
	// voice-activity events.
	lastActive := false

	// settle is armed when assistant playback stops; capture resumes when
	// it fires.
	var settle *time.Timer
	var settleC <-chan time.Time
	stopSettle := func() {
		if settle != nil {
			settle.Stop()
			settle = nil
			settleC = nil
		}
	}
	defer stopSettle()

	for {
		select {
		case <-done:
			c.discardPartial(ctx, observe.DiscardReasonShutdown)
			return

		case <-ctx.Done():
			c.discardPartial(ctx, observe.DiscardReasonShutdown)
			return

		case frame := <-c.source.Frames():
			if c.State() == StateSuppressed || c.State() == StateRestarting {
				continue
			}

			label, err := c.detector.Classify(frame)
			if err != nil {
				slog.Warn("engine: frame classification failed", "err", err)
				continue
			}
			c.metrics.FramesProcessed.Add(ctx, 1)

			active := label == vad.Speech
			if active != lastActive {
				lastActive = active
				c.emit(Event{Kind: EventVoiceActivity, Active: active})
			}

			res := c.asm.Process(frame, label)
			switch {
			case res.Opened:
				c.state.Store(int32(StateSpeechActive))
				c.emit(Event{Kind: EventSegmentStarted})
			case res.Segment != nil:
				c.state.Store(int32(StateListening))
				c.dispatchTranscription(ctx, res.Segment)
			case res.DiscardedShort:
				c.state.Store(int32(StateListening))
				c.metrics.RecordSegmentDiscarded(ctx, observe.DiscardReasonTooShort)
			}

		case ev := <-c.source.Routes():
			if !c.restart(ctx, done, ev) {
				// Capture is gone for good. Release the running flag so
				// a fresh Start can acquire the device again.
				c.mu.Lock()
				c.running = false
				c.mu.Unlock()
				return
			}

		case <-settleC:
			stopSettle()
			c.state.Store(int32(StateListening))
			lastActive = false
			c.detector.Reset()
			c.metrics.RecordSuppression(ctx, false)

		case kind := <-c.cmds:
			switch kind {
			case cmdSpeakingStarted:
				stopSettle()
				if c.State() != StateSuppressed {
					c.discardPartial(ctx, observe.DiscardReasonSuppression)
					c.state.Store(int32(StateSuppressed))
					c.metrics.RecordSuppression(ctx, true)
					if lastActive {
						lastActive = false
						c.emit(Event{Kind: EventVoiceActivity, Active: false})
					}
				}
			case cmdSpeakingStopped:
				if c.State() == StateSuppressed && settle == nil {
					settle = time.NewTimer(c.settleDelay)
					settleC = settle.C
				}
			}
		}
	}
}

// discardPartial drops any accumulating segment and records why.
func (c *Coordinator) discardPartial(ctx context.Context, reason string) {
	if c.asm.Discard() {
		c.metrics.RecordSegmentDiscarded(ctx, reason)
	}
}

// dispatchTranscription forwards a finished segment to the gateway on its own
// goroutine so a slow transcriber never stalls frame intake. Failures are
// reported as [EventError] and counted; they do not halt the pipeline.
func (c *Coordinator) dispatchTranscription(ctx context.Context, seg *segment.Segment) {
	c.metrics.RecordSegmentEmitted(ctx, seg.Duration.Seconds())
	c.emit(Event{Kind: EventSegmentFinished, Duration: seg.Duration})

	c.wg.Add(1)
	c.metrics.ActiveTranscriptions.Add(ctx, 1)
	go func() {
		defer c.wg.Done()
		defer c.metrics.ActiveTranscriptions.Add(ctx, -1)

		start := time.Now()
		res, err := c.gateway.Transcribe(ctx, seg.WAV)
		c.metrics.TranscriptionDuration.Record(ctx, time.Since(start).Seconds())

		if err != nil {
			c.metrics.TranscriptionErrors.Add(ctx, 1)
			slog.Warn("engine: transcription failed",
				"speech_duration", seg.Duration,
				"err", err,
			)
			c.emit(Event{Kind: EventError, Err: fmt.Errorf("engine: transcribe segment: %w", err)})
			return
		}
		c.emit(Event{Kind: EventTranscript, Transcript: res})
	}()
}

// restart tears the capture source down and re-acquires it with exponential
// backoff after a route change or OS interruption. If the engine was
// suppressed when the event arrived, suppression is restored on recovery so
// assistant playback still in progress is never transcribed. Returns false
// when capture could not be recovered (attempt budget exhausted or permission
// revoked); the caller must then tear the engine down so Start works again.
func (c *Coordinator) restart(ctx context.Context, done <-chan struct{}, ev capture.RouteEvent) bool {
	wasSuppressed := c.State() == StateSuppressed

	c.discardPartial(ctx, observe.DiscardReasonRestart)
	c.state.Store(int32(StateRestarting))
	c.metrics.RecordCaptureRestart(ctx, ev.Reason.String())
	c.emit(Event{Kind: EventRestarting, Detail: ev.Detail})

	if err := c.source.Stop(); err != nil {
		slog.Warn("engine: stopping capture for restart", "err", err)
	}

	backoff := c.restartBackoff
	for attempt := 1; attempt <= c.restartRetries; attempt++ {
		timer := time.NewTimer(backoff)
		select {
		case <-done:
			timer.Stop()
			return true
		case <-ctx.Done():
			timer.Stop()
			return true
		case <-timer.C:
		}

		slog.Info("engine: attempting capture restart",
			"reason", ev.Reason.String(),
			"attempt", attempt,
			"max_attempts", c.restartRetries,
			"backoff", backoff,
		)

		err := c.source.Start(ctx)
		if err == nil {
			if wasSuppressed {
				c.state.Store(int32(StateSuppressed))
			} else {
				c.state.Store(int32(StateListening))
			}
			c.detector.Reset()
			slog.Info("engine: capture restarted", "attempt", attempt)
			return true
		}
		if errors.Is(err, capture.ErrPermissionDenied) {
			c.state.Store(int32(StateIdle))
			c.emit(Event{Kind: EventPermissionDenied, Err: err})
			return false
		}

		slog.Warn("engine: capture restart failed", "attempt", attempt, "err", err)
		backoff = min(backoff*2, c.restartMaxBack)
	}

	c.state.Store(int32(StateIdle))
	c.emit(Event{
		Kind: EventError,
		Err:  fmt.Errorf("%w after %d attempts", ErrRestartFailed, c.restartRetries),
	})
	return false
}
