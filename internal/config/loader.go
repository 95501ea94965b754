package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"transcriber": {"openai", "mock"},
	"speech":      {"elevenlabs", "mock"},
	"vad":         {"energy", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio format
	if cfg.Audio.SampleRateHz <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate_hz %d must be positive", cfg.Audio.SampleRateHz))
	}
	if cfg.Audio.FrameSizeSamples <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size_samples %d must be positive", cfg.Audio.FrameSizeSamples))
	}

	// VAD thresholds
	if cfg.VAD.SpeechThreshold < 0 || cfg.VAD.SpeechThreshold > 1 {
		errs = append(errs, fmt.Errorf("vad.speech_threshold %.4f is out of range [0, 1]", cfg.VAD.SpeechThreshold))
	}
	if cfg.VAD.SilenceThreshold < 0 || cfg.VAD.SilenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("vad.silence_threshold %.4f is out of range [0, 1]", cfg.VAD.SilenceThreshold))
	}
	if cfg.VAD.SpeechThreshold <= cfg.VAD.SilenceThreshold {
		errs = append(errs, fmt.Errorf("vad.speech_threshold %.4f must exceed vad.silence_threshold %.4f", cfg.VAD.SpeechThreshold, cfg.VAD.SilenceThreshold))
	}

	// Segmenter
	if cfg.Segmenter.MinSpeechMs < 0 {
		errs = append(errs, fmt.Errorf("segmenter.min_speech_duration_ms %d must not be negative", cfg.Segmenter.MinSpeechMs))
	}
	if cfg.Segmenter.MaxSilenceMs <= 0 {
		errs = append(errs, fmt.Errorf("segmenter.max_silence_duration_ms %d must be positive", cfg.Segmenter.MaxSilenceMs))
	}

	// Suppression
	if cfg.Suppression.SettleDelayMs < 0 {
		errs = append(errs, fmt.Errorf("suppression.settle_delay_ms %d must not be negative", cfg.Suppression.SettleDelayMs))
	}

	// Capture restart policy
	if cfg.Capture.RestartBackoffMs <= 0 {
		errs = append(errs, fmt.Errorf("capture.restart_backoff_ms %d must be positive", cfg.Capture.RestartBackoffMs))
	}
	if cfg.Capture.RestartMaxBackoffMs < cfg.Capture.RestartBackoffMs {
		errs = append(errs, fmt.Errorf("capture.restart_max_backoff_ms %d must be at least restart_backoff_ms %d", cfg.Capture.RestartMaxBackoffMs, cfg.Capture.RestartBackoffMs))
	}
	if cfg.Capture.RestartMaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("capture.restart_max_attempts %d must be positive", cfg.Capture.RestartMaxAttempts))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("transcriber", cfg.Providers.Transcriber.Name)
	validateProviderName("speech", cfg.Providers.Speech.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)

	// Provider availability warnings
	if cfg.Providers.Transcriber.Name == "" {
		slog.Warn("no transcriber provider configured; speech segments will be detected but never transcribed")
	}
	if cfg.Providers.Speech.Name == "" {
		slog.Warn("no speech provider configured; assistant responses cannot be synthesized")
	}

	// Provider-specific requirements
	if cfg.Providers.Speech.Name == "elevenlabs" && cfg.Providers.Speech.VoiceID == "" {
		errs = append(errs, fmt.Errorf("providers.speech.voice_id is required for the elevenlabs provider"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
