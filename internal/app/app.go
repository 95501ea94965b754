// Package app wires the capture, detection, transcription and playback
// subsystems into a running hands-free conversation service.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the serving loops, and Shutdown tears everything
// down in order.
//
// For testing, inject doubles via functional options (WithRenderer,
// WithMetrics, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mia21com/handsfree/internal/config"
	"github.com/mia21com/handsfree/internal/engine"
	"github.com/mia21com/handsfree/internal/health"
	"github.com/mia21com/handsfree/internal/observe"
	"github.com/mia21com/handsfree/internal/segment"
	"github.com/mia21com/handsfree/pkg/capture"
	"github.com/mia21com/handsfree/pkg/playback"
	"github.com/mia21com/handsfree/pkg/speech"
	"github.com/mia21com/handsfree/pkg/transcribe"
	"github.com/mia21com/handsfree/pkg/vad"
)

// shutdownTimeout bounds the HTTP server drain during Shutdown.
const shutdownTimeout = 5 * time.Second

// ErrNoSpeechProvider is returned by Speak when no synthesis provider is
// configured.
var ErrNoSpeechProvider = errors.New("app: no speech provider configured")

// Providers holds one interface value per provider slot. Source, Detector and
// Transcriber are required; Speech is optional (Speak returns
// [ErrNoSpeechProvider] without it). Populated by main.go via the config
// registry, or directly with mocks in tests.
type Providers struct {
	Source      capture.Source
	Detector    vad.Detector
	Transcriber transcribe.Gateway
	Speech      speech.Synthesizer
}

// App owns all subsystem lifetimes and orchestrates the hands-free pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	engine   *engine.Coordinator
	playback *playback.Coordinator
	server   *http.Server

	metrics      *observe.Metrics
	renderer     playback.Renderer
	sink         func(pcm []byte)
	onTranscript func(transcribe.Result)

	speakSeq atomic.Int64

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRenderer injects a playback renderer instead of the default PCM sink
// renderer.
func WithRenderer(r playback.Renderer) Option {
	return func(a *App) { a.renderer = r }
}

// WithMetrics injects a metrics instance instead of the package default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithAudioSink directs rendered assistant PCM to fn. Ignored when
// WithRenderer is also given.
func WithAudioSink(fn func(pcm []byte)) Option {
	return func(a *App) { a.sink = fn }
}

// WithTranscriptHandler routes finished transcripts to fn instead of the log.
func WithTranscriptHandler(fn func(transcribe.Result)) Option {
	return func(a *App) { a.onTranscript = fn }
}

// New creates an App from config and providers. The engine is not started
// until Run is called.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if providers == nil {
		return nil, errors.New("app: providers must not be nil")
	}
	if providers.Source == nil {
		return nil, errors.New("app: capture source must not be nil")
	}
	if providers.Detector == nil {
		return nil, errors.New("app: vad detector must not be nil")
	}
	if providers.Transcriber == nil {
		return nil, errors.New("app: transcriber must not be nil")
	}

	a := &App{cfg: cfg, providers: providers}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.renderer == nil {
		a.renderer = &sinkRenderer{sink: a.sink}
	}

	eng, err := engine.NewCoordinator(engine.Config{
		Source:   providers.Source,
		Detector: providers.Detector,
		Gateway:  providers.Transcriber,
		Segmenter: segment.Config{
			SampleRate: cfg.Audio.SampleRateHz,
			MinSpeech:  cfg.Segmenter.MinSpeech(),
			MaxSilence: cfg.Segmenter.MaxSilence(),
		},
		SettleDelay:        cfg.Suppression.SettleDelay(),
		RestartBackoff:     cfg.Capture.RestartBackoff(),
		RestartMaxBackoff:  cfg.Capture.RestartMaxBackoff(),
		RestartMaxAttempts: cfg.Capture.RestartMaxAttempts,
		Metrics:            a.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("app: build engine: %w", err)
	}
	a.engine = eng

	a.playback = playback.New(a.renderer, playback.WithItemHook(a.onPlaybackItem))
	a.playback.OnSpeakingStarted(eng.NotifySpeakingStarted)
	a.playback.OnSpeakingStopped(eng.NotifySpeakingStopped)

	a.initServer()

	a.closers = append(a.closers,
		a.engine.Stop,
		a.playback.Close,
		func() error {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return a.server.Shutdown(ctx)
		},
	)

	return a, nil
}

// initServer builds the metrics/health HTTP server.
func (a *App) initServer() {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(
		health.Checker{Name: "engine", Check: a.checkEngine},
	).Register(mux)

	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// checkEngine reports readiness: the process is ready once the engine has
// acquired the capture device and is listening.
func (a *App) checkEngine(context.Context) error {
	if s := a.engine.State(); s == engine.StateIdle {
		return errors.New("engine is not listening")
	}
	return nil
}

// Run starts the engine and serves until ctx is cancelled or a subsystem
// fails. It blocks; cancel ctx to initiate shutdown, then call Shutdown to
// release resources.
func (a *App) Run(ctx context.Context) error {
	if err := a.engine.Start(ctx); err != nil {
		return fmt.Errorf("app: start engine: %w", err)
	}
	slog.Info("pipeline started", "listen_addr", a.cfg.Server.ListenAddr)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.consumeEvents(ctx)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.server.Shutdown(sctx)
	})

	return g.Wait()
}

// consumeEvents drains engine events until ctx is cancelled, logging them and
// forwarding transcripts to the configured handler.
func (a *App) consumeEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-a.engine.Events():
			a.handleEvent(ev)
		}
	}
}

func (a *App) handleEvent(ev engine.Event) {
	switch ev.Kind {
	case engine.EventTranscript:
		if a.onTranscript != nil {
			a.onTranscript(ev.Transcript)
			return
		}
		slog.Info("transcript", "text", ev.Transcript.Text, "language", ev.Transcript.Language)
	case engine.EventSegmentFinished:
		slog.Debug("segment finished", "speech_duration", ev.Duration)
	case engine.EventVoiceActivity:
		slog.Debug("voice activity", "active", ev.Active)
	case engine.EventRestarting:
		slog.Warn("capture restarting", "detail", ev.Detail)
	case engine.EventPermissionDenied:
		slog.Error("microphone permission denied", "error", ev.Err)
	case engine.EventError:
		slog.Error("pipeline error", "error", ev.Err)
	default:
		slog.Debug("engine event", "kind", ev.Kind)
	}
}

// Speak synthesizes text with the configured speech provider and queues the
// resulting audio for playback. Capture is suppressed for the duration of the
// playback burst. Blocks until the synthesis stream is fully enqueued.
func (a *App) Speak(ctx context.Context, text string) error {
	if a.providers.Speech == nil {
		return ErrNoSpeechProvider
	}

	fragments := make(chan string, 1)
	fragments <- text
	close(fragments)

	chunks, err := a.providers.Speech.Synthesize(ctx, fragments)
	if err != nil {
		return fmt.Errorf("app: synthesize: %w", err)
	}

	burst := a.speakSeq.Add(1)
	n := 0
	for chunk := range chunks {
		n++
		a.playback.Enqueue(playback.Item{
			ID:   fmt.Sprintf("speak-%d-%d", burst, n),
			Data: chunk,
		})
	}
	return ctx.Err()
}

// Interrupt cancels the current playback burst and drops queued audio,
// letting the user barge in over the assistant.
func (a *App) Interrupt() {
	a.playback.Reset()
}

// Engine exposes the conversation coordinator, e.g. for state inspection.
func (a *App) Engine() *engine.Coordinator { return a.engine }

// onPlaybackItem records the outcome of each rendered playback item.
func (a *App) onPlaybackItem(item playback.Item, err error) {
	ctx := context.Background()
	switch {
	case err == nil:
		a.metrics.RecordPlaybackItem(ctx, "played")
	case errors.Is(err, context.Canceled):
		a.metrics.RecordPlaybackItem(ctx, "cancelled")
	default:
		a.metrics.RecordPlaybackItem(ctx, "failed")
		slog.Warn("playback item failed", "item_id", item.ID, "error", err)
	}
}

// Shutdown tears subsystems down in order: stop capture and wait for
// in-flight transcriptions, drain playback, then close the HTTP server. Safe
// to call multiple times.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		slog.Info("shutting down")
		for _, closer := range a.closers {
			if err := ctx.Err(); err != nil {
				errs = append(errs, fmt.Errorf("app: shutdown aborted: %w", err))
				return
			}
			if err := closer(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// sinkRenderer forwards rendered PCM to a caller-supplied sink, or discards
// it when none is configured. Used when no platform audio output is wired.
type sinkRenderer struct {
	sink func(pcm []byte)
}

var _ playback.Renderer = (*sinkRenderer)(nil)

func (r *sinkRenderer) Render(ctx context.Context, item playback.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.sink != nil {
		r.sink(item.Data)
	}
	return nil
}

func (r *sinkRenderer) Close() error { return nil }
