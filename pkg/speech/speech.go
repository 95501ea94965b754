// Package speech defines the interface for streaming text-to-speech
// synthesis used to produce assistant audio.
//
// Implementations live in subpackages (e.g. the ElevenLabs-backed
// synthesizer) and a mock for tests lives under mock.
package speech

import "context"

// Voice describes one selectable synthesis voice.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string
	// Name is the human-readable voice name.
	Name string
	// Metadata carries provider-specific labels (gender, accent, ...).
	Metadata map[string]string
}

// Synthesizer converts streamed text into streamed PCM audio.
type Synthesizer interface {
	// Synthesize opens a synthesis stream. Text fragments read from text are
	// converted to 16 kHz mono little-endian PCM chunks emitted on the
	// returned channel. The channel is closed when text is closed and all
	// audio has been delivered, or when ctx is cancelled.
	Synthesize(ctx context.Context, text <-chan string) (<-chan []byte, error)

	// Voices lists the voices available to the configured credentials.
	Voices(ctx context.Context) ([]Voice, error)
}
