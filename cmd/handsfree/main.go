// Command handsfree runs the hands-free voice conversation pipeline: it
// captures microphone PCM from stdin (or a file), detects speech, transcribes
// finished utterances, and coordinates assistant playback so the assistant
// never transcribes itself.
//
// Typical usage with an ALSA microphone:
//
//	arecord -f S16_LE -r 16000 -c 1 -t raw | handsfree -config config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mia21com/handsfree/internal/app"
	"github.com/mia21com/handsfree/internal/config"
	"github.com/mia21com/handsfree/internal/observe"
	"github.com/mia21com/handsfree/pkg/capture"
	"github.com/mia21com/handsfree/pkg/playback/opus"
	"github.com/mia21com/handsfree/pkg/vad/energy"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	audioIn := flag.String("audio-in", "-", "raw little-endian int16 PCM input (\"-\" for stdin)")
	audioOut := flag.String("audio-out", "", "write rendered assistant PCM to this file (\"-\" for stdout)")
	opusIn := flag.Bool("opus", false, "treat assistant playback chunks as Opus frames and decode them")
	say := flag.String("say", "", "speak this text once at startup (requires a speech provider)")
	listVoices := flag.Bool("list-voices", false, "list the configured speech provider's voices and exit")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "handsfree: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "handsfree: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := new(slog.LevelVar)
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("handsfree starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := app.DefaultRegistry()

	providers, err := app.Resolve(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *listVoices {
		return printVoices(ctx, providers)
	}
	if providers.Transcriber == nil {
		slog.Error("no transcriber configured", "config", *configPath)
		return 1
	}

	// ── Capture source ────────────────────────────────────────────────────────
	in, closeIn, err := openAudioIn(*audioIn)
	if err != nil {
		slog.Error("failed to open audio input", "err", err)
		return 1
	}
	defer closeIn()
	providers.Source = capture.NewReaderSource(in, cfg.Audio.SampleRateHz, cfg.Audio.FrameSizeSamples)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Application ───────────────────────────────────────────────────────────
	opts, err := buildAppOptions(cfg, *audioOut, *opusIn)
	if err != nil {
		slog.Error("failed to configure playback output", "err", err)
		return 1
	}

	application, err := app.New(cfg, providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		applyReload(config.Diff(old, new), logLevel, providers)
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	if *say != "" {
		go func() {
			if err := application.Speak(ctx, *say); err != nil {
				slog.Warn("startup speech failed", "err", err)
			}
		}()
	}

	slog.Info("pipeline ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// applyReload pushes hot-reloadable config changes into the running pipeline.
// Segmenter and suppression timings are wired into the engine at construction
// time, so those changes only take effect after a restart.
func applyReload(diff config.ConfigDiff, logLevel *slog.LevelVar, providers *app.Providers) {
	if diff.Empty() {
		return
	}

	if diff.LogLevelChanged {
		logLevel.Set(slogLevel(diff.NewLogLevel))
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}
	if diff.VADChanged {
		if det, ok := providers.Detector.(*energy.Detector); ok {
			if err := det.SetThresholds(diff.NewVAD.SpeechThreshold, diff.NewVAD.SilenceThreshold); err != nil {
				slog.Warn("rejected new vad thresholds", "err", err)
			} else {
				slog.Info("vad thresholds changed",
					"speech", diff.NewVAD.SpeechThreshold,
					"silence", diff.NewVAD.SilenceThreshold,
				)
			}
		}
	}
	if diff.SegmenterChanged || diff.SuppressionChanged {
		slog.Info("segmenter/suppression changes take effect after restart")
	}
}

// buildAppOptions wires the rendered-audio output selected on the command
// line.
func buildAppOptions(cfg *config.Config, audioOut string, opusIn bool) ([]app.Option, error) {
	var sink func([]byte)
	switch audioOut {
	case "":
		// Rendered audio is discarded; playback still drives suppression.
	case "-":
		sink = func(pcm []byte) { _, _ = os.Stdout.Write(pcm) }
	default:
		f, err := os.Create(audioOut)
		if err != nil {
			return nil, err
		}
		sink = func(pcm []byte) { _, _ = f.Write(pcm) }
	}

	if !opusIn {
		if sink == nil {
			return nil, nil
		}
		return []app.Option{app.WithAudioSink(sink)}, nil
	}

	if sink == nil {
		sink = func([]byte) {}
	}
	renderer, err := opus.New(cfg.Audio.SampleRateHz, 1, sink)
	if err != nil {
		return nil, err
	}
	return []app.Option{app.WithRenderer(renderer)}, nil
}

// printVoices lists the configured speech provider's voices on stdout.
func printVoices(ctx context.Context, providers *app.Providers) int {
	if providers.Speech == nil {
		fmt.Fprintln(os.Stderr, "handsfree: no speech provider configured")
		return 1
	}
	voices, err := providers.Speech.Voices(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "handsfree: list voices: %v\n", err)
		return 1
	}
	for _, v := range voices {
		fmt.Printf("%s\t%s\n", v.ID, v.Name)
	}
	return 0
}

// openAudioIn resolves the -audio-in flag to a reader.
func openAudioIn(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

// slogLevel maps a config log level onto slog's scale.
func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
