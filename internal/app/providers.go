package app

import (
	"fmt"

	"github.com/mia21com/handsfree/internal/config"
	"github.com/mia21com/handsfree/pkg/speech"
	"github.com/mia21com/handsfree/pkg/speech/elevenlabs"
	speechmock "github.com/mia21com/handsfree/pkg/speech/mock"
	"github.com/mia21com/handsfree/pkg/transcribe"
	trmock "github.com/mia21com/handsfree/pkg/transcribe/mock"
	"github.com/mia21com/handsfree/pkg/transcribe/openai"
	"github.com/mia21com/handsfree/pkg/vad"
	"github.com/mia21com/handsfree/pkg/vad/energy"
	vadmock "github.com/mia21com/handsfree/pkg/vad/mock"
)

// DefaultRegistry returns a provider registry with all built-in providers
// registered. main.go extends it with platform-specific entries if needed.
func DefaultRegistry() *config.Registry {
	reg := config.NewRegistry()

	reg.RegisterTranscriber("openai", func(entry config.ProviderEntry) (transcribe.Gateway, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, openai.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, openai.WithLanguage(entry.Language))
		}
		return openai.New(entry.APIKey, opts...)
	})
	reg.RegisterTranscriber("mock", func(config.ProviderEntry) (transcribe.Gateway, error) {
		return &trmock.Gateway{}, nil
	})

	reg.RegisterSpeech("elevenlabs", func(entry config.ProviderEntry) (speech.Synthesizer, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		return elevenlabs.New(entry.APIKey, entry.VoiceID, opts...)
	})
	reg.RegisterSpeech("mock", func(config.ProviderEntry) (speech.Synthesizer, error) {
		return &speechmock.Synthesizer{}, nil
	})

	reg.RegisterVAD("mock", func(config.ProviderEntry) (vad.Detector, error) {
		return &vadmock.Detector{}, nil
	})

	return reg
}

// Resolve builds the provider set declared in cfg using reg. The energy
// detector is constructed directly because its thresholds live in the
// top-level vad block, not the provider entry. The capture source is
// platform-specific and stays nil; main.go fills it in.
func Resolve(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	p := &Providers{}

	if name := cfg.Providers.Transcriber.Name; name != "" {
		gw, err := reg.CreateTranscriber(cfg.Providers.Transcriber)
		if err != nil {
			return nil, fmt.Errorf("app: transcriber %q: %w", name, err)
		}
		p.Transcriber = gw
	}

	if name := cfg.Providers.Speech.Name; name != "" {
		syn, err := reg.CreateSpeech(cfg.Providers.Speech)
		if err != nil {
			return nil, fmt.Errorf("app: speech %q: %w", name, err)
		}
		p.Speech = syn
	}

	switch name := cfg.Providers.VAD.Name; name {
	case "", "energy":
		det, err := energy.New(energy.Config{
			SpeechThreshold:  cfg.VAD.SpeechThreshold,
			SilenceThreshold: cfg.VAD.SilenceThreshold,
		})
		if err != nil {
			return nil, fmt.Errorf("app: vad energy: %w", err)
		}
		p.Detector = det
	default:
		det, err := reg.CreateVAD(cfg.Providers.VAD)
		if err != nil {
			return nil, fmt.Errorf("app: vad %q: %w", name, err)
		}
		p.Detector = det
	}

	return p, nil
}
