// Package segment accumulates classified audio frames into speech segments.
//
// The [Assembler] is a small state machine driven entirely by frame
// timestamps, which keeps it deterministic under test: a new segment opens on
// the first speech-labelled frame, trailing silence is appended without
// refreshing the speech clock, and the segment closes once the trailing
// silence exceeds the configured timeout. Segments whose speech run is
// shorter than the minimum duration are treated as noise and discarded
// silently — never emitted, never surfaced as errors.
package segment

import (
	"fmt"
	"time"

	"github.com/mia21com/handsfree/pkg/audio"
	"github.com/mia21com/handsfree/pkg/vad"
)

// Defaults applied by [New] when the corresponding Config field is zero.
const (
	DefaultMinSpeech  = 300 * time.Millisecond
	DefaultMaxSilence = 2 * time.Second
)

// State identifies the assembler's position in the utterance lifecycle.
type State int

const (
	// Idle means no utterance is in progress.
	Idle State = iota

	// Accumulating means an open segment is collecting frames.
	Accumulating
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Accumulating:
		return "ACCUMULATING"
	default:
		return "UNKNOWN"
	}
}

// Config holds the utterance-boundary parameters.
type Config struct {
	// SampleRate is the PCM sample rate written into emitted WAV
	// containers. Required.
	SampleRate int

	// MinSpeech is the floor below which a closed segment is discarded as
	// noise. Measured on the speech run only (first speech frame to the
	// end of the last speech frame), not on appended trailing silence.
	// Default: 300 ms.
	MinSpeech time.Duration

	// MaxSilence is the trailing-silence duration that closes an open
	// segment. Default: 2 s.
	MaxSilence time.Duration
}

// Segment is one finalized utterance.
type Segment struct {
	// WAV is the complete RIFF container: the speech run plus the trailing
	// silence that closed it.
	WAV []byte

	// Start is the capture timestamp of the first speech frame.
	Start time.Duration

	// Duration is the length of the speech run (trailing silence
	// excluded). This is the value reported to the UI.
	Duration time.Duration

	// TrailingSilence is the silence span appended after the last speech
	// frame, bounded by the configured MaxSilence.
	TrailingSilence time.Duration
}

// Result describes what a single [Assembler.Process] call did.
type Result struct {
	// Opened is true when this frame started a new segment.
	Opened bool

	// Segment is non-nil when this frame closed a segment that met the
	// minimum speech duration.
	Segment *Segment

	// DiscardedShort is true when this frame closed a segment that was
	// below the minimum speech duration and was dropped.
	DiscardedShort bool
}

// Assembler builds speech segments from labelled frames. It is owned by the
// engine's processing goroutine and is not safe for concurrent use.
type Assembler struct {
	cfg Config

	state         State
	buf           []byte
	start         time.Duration
	lastSpeechEnd time.Duration
}

// New creates an Assembler. Zero durations take the package defaults.
func New(cfg Config) (*Assembler, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("segment: sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.MinSpeech == 0 {
		cfg.MinSpeech = DefaultMinSpeech
	}
	if cfg.MaxSilence == 0 {
		cfg.MaxSilence = DefaultMaxSilence
	}
	if cfg.MinSpeech < 0 || cfg.MaxSilence < 0 {
		return nil, fmt.Errorf("segment: durations must not be negative")
	}
	return &Assembler{cfg: cfg}, nil
}

// State returns the current lifecycle state.
func (a *Assembler) State() State { return a.state }

// Process feeds one labelled frame into the state machine.
//
// A speech frame always extends (or opens) the segment — arriving speech
// cancels any pending silence close, and a speech frame immediately after an
// emission opens a fresh segment with no cooldown. A silence frame while
// accumulating is appended as trailing audio; once the gap since the last
// speech frame reaches MaxSilence the segment closes and is either emitted
// or, if the speech run was shorter than MinSpeech, discarded.
func (a *Assembler) Process(frame audio.Frame, label vad.Label) Result {
	switch a.state {
	case Idle:
		if label != vad.Speech {
			return Result{}
		}
		a.state = Accumulating
		a.start = frame.Timestamp
		a.lastSpeechEnd = frame.End()
		a.buf = append(a.buf[:0], frame.Data...)
		return Result{Opened: true}

	case Accumulating:
		a.buf = append(a.buf, frame.Data...)
		if label == vad.Speech {
			a.lastSpeechEnd = frame.End()
			return Result{}
		}
		if frame.End()-a.lastSpeechEnd < a.cfg.MaxSilence {
			return Result{}
		}
		return a.close(frame.End())
	}
	return Result{}
}

// Discard drops any in-progress buffer without emitting and returns whether
// something was dropped. Used when suppression engages or the engine stops.
func (a *Assembler) Discard() bool {
	if a.state != Accumulating {
		return false
	}
	a.reset()
	return true
}

// close finalizes the open segment at end and resets to Idle.
func (a *Assembler) close(end time.Duration) Result {
	speech := a.lastSpeechEnd - a.start
	if speech < a.cfg.MinSpeech {
		a.reset()
		return Result{DiscardedShort: true}
	}

	seg := &Segment{
		WAV:             audio.EncodeWAV(a.buf, a.cfg.SampleRate, 1),
		Start:           a.start,
		Duration:        speech,
		TrailingSilence: end - a.lastSpeechEnd,
	}
	a.reset()
	return Result{Segment: seg}
}

func (a *Assembler) reset() {
	a.state = Idle
	a.buf = nil
	a.start = 0
	a.lastSpeechEnd = 0
}
