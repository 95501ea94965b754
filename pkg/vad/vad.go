// Package vad defines the Detector interface for voice activity detection.
//
// A detector classifies one audio frame at a time as speech or silence. It is
// deliberately narrow: the utterance-level hysteresis (minimum speech
// duration, trailing-silence timeout) lives in the segment assembler, so a
// detector only has to answer "does this frame sound like speech". Detectors
// may keep internal smoothing state between frames — two thresholds with a
// gap between them prevent rapid speech/silence flapping — and expose Reset
// to clear it when the stream restarts.
//
// Classification is synchronous by design and must complete well within the
// frame's real-time budget (the frame duration at the configured sample
// rate); the processing loop calls Classify once per captured frame and any
// backlog here delays the whole pipeline.
//
// A Detector instance is owned by a single processing goroutine and is not
// required to be safe for concurrent use.
package vad

import "github.com/mia21com/handsfree/pkg/audio"

// Label is the per-frame classification result.
type Label int

const (
	// Silence indicates the frame contains no detected speech.
	Silence Label = iota

	// Speech indicates the frame contains detected speech.
	Speech
)

// String returns the human-readable name of the label.
func (l Label) String() string {
	switch l {
	case Silence:
		return "SILENCE"
	case Speech:
		return "SPEECH"
	default:
		return "UNKNOWN"
	}
}

// Detector classifies audio frames as speech or silence.
//
// Implementations may be a simple energy threshold (see the energy
// subpackage) or wrap a machine-learned model; the pipeline depends only on
// this interface so the classifier is swappable.
type Detector interface {
	// Classify analyses a single frame and returns its label. Returns an
	// error if the frame is malformed (odd byte count, wrong sample rate)
	// or the underlying model fails; the caller treats a failed frame as
	// silence and keeps going.
	Classify(frame audio.Frame) (Label, error)

	// Reset clears accumulated smoothing state. Call when the capture
	// stream is interrupted or restarted so stale state from the previous
	// run does not bleed into the next one.
	Reset()
}
