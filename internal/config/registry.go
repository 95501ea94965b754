package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mia21com/handsfree/pkg/speech"
	"github.com/mia21com/handsfree/pkg/transcribe"
	"github.com/mia21com/handsfree/pkg/vad"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	transcriber map[string]func(ProviderEntry) (transcribe.Gateway, error)
	speech      map[string]func(ProviderEntry) (speech.Synthesizer, error)
	vad         map[string]func(ProviderEntry) (vad.Detector, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		transcriber: make(map[string]func(ProviderEntry) (transcribe.Gateway, error)),
		speech:      make(map[string]func(ProviderEntry) (speech.Synthesizer, error)),
		vad:         make(map[string]func(ProviderEntry) (vad.Detector, error)),
	}
}

// RegisterTranscriber registers a transcription gateway factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterTranscriber(name string, factory func(ProviderEntry) (transcribe.Gateway, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcriber[name] = factory
}

// RegisterSpeech registers a speech synthesizer factory under name.
func (r *Registry) RegisterSpeech(name string, factory func(ProviderEntry) (speech.Synthesizer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speech[name] = factory
}

// RegisterVAD registers a voice activity detector factory under name.
func (r *Registry) RegisterVAD(name string, factory func(ProviderEntry) (vad.Detector, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// CreateTranscriber builds the transcription gateway selected by entry.Name.
func (r *Registry) CreateTranscriber(entry ProviderEntry) (transcribe.Gateway, error) {
	r.mu.RLock()
	factory, ok := r.transcriber[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: transcriber %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSpeech builds the speech synthesizer selected by entry.Name.
func (r *Registry) CreateSpeech(entry ProviderEntry) (speech.Synthesizer, error) {
	r.mu.RLock()
	factory, ok := r.speech[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: speech %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateVAD builds the voice activity detector selected by entry.Name.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Detector, error) {
	r.mu.RLock()
	factory, ok := r.vad[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
