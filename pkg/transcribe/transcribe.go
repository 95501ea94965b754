// Package transcribe defines the Gateway interface for speech-to-text
// backends.
//
// The hands-free engine treats transcription as a single opaque
// request/response call: it hands over a finished WAV segment and receives
// recognized text or an error. Backends that stream internally (chunked
// upload, server-side endpointing) hide that behind this interface.
//
// Implementations must be safe for concurrent use: utterances are usually
// sequential, but nothing stops two segments from being in flight at once.
package transcribe

import "context"

// Result is the recognized text for one speech segment.
type Result struct {
	// Text is the transcribed speech content. May be empty when the
	// backend recognized nothing intelligible.
	Text string

	// Language is the BCP-47 tag the backend detected or was configured
	// with. Empty when the backend does not report it.
	Language string
}

// Gateway is the abstraction over any speech-to-text backend.
type Gateway interface {
	// Transcribe submits a complete WAV container and returns the
	// recognized text. The call blocks until the backend responds or ctx
	// is cancelled; the engine invokes it off its state-machine goroutine.
	Transcribe(ctx context.Context, wav []byte) (Result, error)
}
