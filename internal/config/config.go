// Package config provides the configuration schema, loader, and provider
// registry for the hands-free conversation engine.
package config

import "time"

// LogLevel controls log verbosity for the engine.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults for the audio pipeline. These match the values the engine was
// tuned with; override them in the config file only when the capture
// hardware differs.
const (
	DefaultSampleRateHz      = 16000
	DefaultFrameSizeSamples  = 1024
	DefaultMinSpeechMs       = 300
	DefaultMaxSilenceMs      = 2000
	DefaultSettleDelayMs     = 200
	DefaultSpeechThreshold   = 0.015
	DefaultSilenceThreshold  = 0.008
	DefaultRestartBackoffMs  = 250
	DefaultRestartMaxBackMs  = 4000
	DefaultRestartMaxRetries = 5
)

// Config is the root configuration structure for the engine.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Audio       AudioConfig       `yaml:"audio"`
	VAD         VADConfig         `yaml:"vad"`
	Segmenter   SegmenterConfig   `yaml:"segmenter"`
	Suppression SuppressionConfig `yaml:"suppression"`
	Capture     CaptureConfig     `yaml:"capture"`
	Providers   ProvidersConfig   `yaml:"providers"`
}

// ServerConfig holds network and logging settings for the metrics/health
// endpoint.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig describes the capture format.
type AudioConfig struct {
	// SampleRateHz is the capture sample rate. Defaults to 16000.
	SampleRateHz int `yaml:"sample_rate_hz"`

	// FrameSizeSamples is the number of samples per captured frame.
	// Defaults to 1024 (64 ms at 16 kHz).
	FrameSizeSamples int `yaml:"frame_size_samples"`
}

// VADConfig holds the energy detector thresholds. Both are normalized RMS
// values in [0, 1]; speech_threshold must exceed silence_threshold so the
// detector has a hysteresis band.
type VADConfig struct {
	SpeechThreshold  float64 `yaml:"speech_threshold"`
	SilenceThreshold float64 `yaml:"silence_threshold"`
}

// SegmenterConfig controls when speech segments open and close.
type SegmenterConfig struct {
	// MinSpeechMs is the minimum accumulated speech required before a
	// segment is emitted rather than discarded. Defaults to 300.
	MinSpeechMs int `yaml:"min_speech_duration_ms"`

	// MaxSilenceMs is the trailing silence that closes an open segment.
	// Defaults to 2000.
	MaxSilenceMs int `yaml:"max_silence_duration_ms"`
}

// MinSpeech returns the minimum speech duration.
func (s SegmenterConfig) MinSpeech() time.Duration {
	return time.Duration(s.MinSpeechMs) * time.Millisecond
}

// MaxSilence returns the closing silence duration.
func (s SegmenterConfig) MaxSilence() time.Duration {
	return time.Duration(s.MaxSilenceMs) * time.Millisecond
}

// SuppressionConfig controls capture suppression around assistant playback.
type SuppressionConfig struct {
	// SettleDelayMs is how long after playback stops before capture
	// resumes, allowing speaker echo to decay. Defaults to 200.
	SettleDelayMs int `yaml:"settle_delay_ms"`
}

// SettleDelay returns the post-playback settle delay.
func (s SuppressionConfig) SettleDelay() time.Duration {
	return time.Duration(s.SettleDelayMs) * time.Millisecond
}

// CaptureConfig controls recovery when the audio source fails or the
// device route changes.
type CaptureConfig struct {
	// RestartBackoffMs is the initial delay before a restart attempt.
	// Defaults to 250. Doubles per attempt up to RestartMaxBackoffMs.
	RestartBackoffMs int `yaml:"restart_backoff_ms"`

	// RestartMaxBackoffMs caps the exponential backoff. Defaults to 4000.
	RestartMaxBackoffMs int `yaml:"restart_max_backoff_ms"`

	// RestartMaxAttempts bounds consecutive failed restarts before the
	// engine reports a fatal error. Defaults to 5.
	RestartMaxAttempts int `yaml:"restart_max_attempts"`
}

// RestartBackoff returns the initial restart backoff.
func (c CaptureConfig) RestartBackoff() time.Duration {
	return time.Duration(c.RestartBackoffMs) * time.Millisecond
}

// RestartMaxBackoff returns the backoff cap.
func (c CaptureConfig) RestartMaxBackoff() time.Duration {
	return time.Duration(c.RestartMaxBackoffMs) * time.Millisecond
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	Transcriber ProviderEntry `yaml:"transcriber"`
	Speech      ProviderEntry `yaml:"speech"`
	VAD         ProviderEntry `yaml:"vad"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "whisper-1").
	Model string `yaml:"model"`

	// Language is an optional ISO-639-1 language hint for transcription.
	Language string `yaml:"language"`

	// VoiceID selects the synthesis voice for speech providers.
	VoiceID string `yaml:"voice_id"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// ApplyDefaults fills every zero-valued tunable with its default.
// Called by [LoadFromReader] after decoding, before validation.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Audio.SampleRateHz == 0 {
		c.Audio.SampleRateHz = DefaultSampleRateHz
	}
	if c.Audio.FrameSizeSamples == 0 {
		c.Audio.FrameSizeSamples = DefaultFrameSizeSamples
	}
	if c.VAD.SpeechThreshold == 0 {
		c.VAD.SpeechThreshold = DefaultSpeechThreshold
	}
	if c.VAD.SilenceThreshold == 0 {
		c.VAD.SilenceThreshold = DefaultSilenceThreshold
	}
	if c.Segmenter.MinSpeechMs == 0 {
		c.Segmenter.MinSpeechMs = DefaultMinSpeechMs
	}
	if c.Segmenter.MaxSilenceMs == 0 {
		c.Segmenter.MaxSilenceMs = DefaultMaxSilenceMs
	}
	if c.Suppression.SettleDelayMs == 0 {
		c.Suppression.SettleDelayMs = DefaultSettleDelayMs
	}
	if c.Capture.RestartBackoffMs == 0 {
		c.Capture.RestartBackoffMs = DefaultRestartBackoffMs
	}
	if c.Capture.RestartMaxBackoffMs == 0 {
		c.Capture.RestartMaxBackoffMs = DefaultRestartMaxBackMs
	}
	if c.Capture.RestartMaxAttempts == 0 {
		c.Capture.RestartMaxAttempts = DefaultRestartMaxRetries
	}
}

// Default returns a Config populated with every default value and no
// providers configured.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}
