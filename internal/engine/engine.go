// Package engine implements the hands-free conversation coordinator.
//
// The [Coordinator] owns the capture → VAD → segmentation → transcription
// pipeline for a single conversation: it pulls frames from a
// [capture.Source], classifies them with a [vad.Detector], assembles speech
// runs into WAV segments, and forwards finished segments to a
// [transcribe.Gateway] without ever blocking frame intake. Assistant playback
// suppresses capture so the engine does not transcribe its own voice.
//
// All pipeline state lives on a single goroutine started by
// [Coordinator.Start]; the exported methods communicate with it through
// channels, so no lock ordering exists for callers to get wrong.
//
// This package lives under internal/ because it encapsulates
// application-private processing logic and is not intended to be imported by
// external code.
package engine

import (
	"time"

	"github.com/mia21com/handsfree/pkg/transcribe"
)

// State identifies the coordinator's position in the conversation lifecycle.
type State int32

const (
	// StateIdle means the engine is not capturing.
	StateIdle State = iota

	// StateListening means frames are being classified but no speech run is
	// open.
	StateListening

	// StateSpeechActive means a speech segment is accumulating.
	StateSpeechActive

	// StateSuppressed means capture is paused while the assistant speaks
	// (plus the settle delay after it stops).
	StateSuppressed

	// StateRestarting means the capture source failed or the route changed
	// and the engine is re-acquiring the device.
	StateRestarting
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateSpeechActive:
		return "SPEECH_ACTIVE"
	case StateSuppressed:
		return "SUPPRESSED"
	case StateRestarting:
		return "RESTARTING"
	default:
		return "UNKNOWN"
	}
}

// EventKind discriminates the [Event] union.
type EventKind int

const (
	// EventListeningStarted fires once capture is running.
	EventListeningStarted EventKind = iota

	// EventListeningStopped fires when the engine stops capturing.
	EventListeningStopped

	// EventVoiceActivity fires when the VAD label flips. Event.Active
	// carries the new label.
	EventVoiceActivity

	// EventSegmentStarted fires when a speech segment opens.
	EventSegmentStarted

	// EventSegmentFinished fires when a segment closes and is handed to the
	// transcriber. Event.Duration carries the speech duration.
	EventSegmentFinished

	// EventTranscript fires when an async transcription completes.
	// Event.Transcript carries the result.
	EventTranscript

	// EventRestarting fires when the engine begins re-acquiring the capture
	// device after a route change or failure.
	EventRestarting

	// EventPermissionDenied fires when the capture source reports missing
	// microphone permission. The engine does not retry; the caller must
	// re-request permission and Start again.
	EventPermissionDenied

	// EventError fires for non-fatal pipeline errors (failed transcription,
	// exhausted restart attempts). Event.Err carries the cause.
	EventError
)

// String returns the human-readable name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventListeningStarted:
		return "LISTENING_STARTED"
	case EventListeningStopped:
		return "LISTENING_STOPPED"
	case EventVoiceActivity:
		return "VOICE_ACTIVITY"
	case EventSegmentStarted:
		return "SEGMENT_STARTED"
	case EventSegmentFinished:
		return "SEGMENT_FINISHED"
	case EventTranscript:
		return "TRANSCRIPT"
	case EventRestarting:
		return "RESTARTING"
	case EventPermissionDenied:
		return "PERMISSION_DENIED"
	case EventError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is one engine notification. Only the fields relevant to Kind are
// populated.
type Event struct {
	Kind EventKind

	// Active is the new VAD label for [EventVoiceActivity].
	Active bool

	// Duration is the speech duration for [EventSegmentFinished].
	Duration time.Duration

	// Transcript is the result for [EventTranscript].
	Transcript transcribe.Result

	// Err is the cause for [EventError].
	Err error

	// Detail is an optional human-readable note (route-change description,
	// restart attempt count).
	Detail string
}
