// Package capture defines the Source interface for microphone frame capture.
//
// A Source owns the platform audio device. It runs a dedicated capture
// goroutine that emits fixed-size [audio.Frame] values on a bounded channel;
// the capture goroutine never blocks on a slow consumer — when the channel is
// full the frame is dropped and counted instead, because stalling the device
// callback corrupts the stream worse than a lost frame does.
//
// Route changes (device plugged/unplugged, OS interruptions) are surfaced as
// [RouteEvent] values on a second channel. They are transient conditions, not
// fatal errors: the conversation engine reacts by tearing the source down and
// calling Start again.
//
// Implementations wrap a concrete device API (or, for tests and offline
// replay, an io.Reader). All exported methods must be safe for concurrent use.
package capture

import (
	"context"
	"errors"

	"github.com/mia21com/handsfree/pkg/audio"
)

// Sentinel errors returned by [Source.Start].
var (
	// ErrPermissionDenied indicates microphone access has not been granted.
	// Recoverable: re-request permission and call Start again.
	ErrPermissionDenied = errors.New("capture: microphone permission denied")

	// ErrDeviceUnavailable indicates the audio input device could not be
	// opened (missing, busy, or mid route change).
	ErrDeviceUnavailable = errors.New("capture: audio input device unavailable")
)

// RouteReason classifies why a [RouteEvent] was emitted.
type RouteReason int

const (
	// RouteChanged indicates the audio route changed (e.g., headset
	// plugged or unplugged).
	RouteChanged RouteReason = iota

	// Interrupted indicates the OS suspended the audio session (e.g., an
	// incoming call took over the device).
	Interrupted
)

// String returns the human-readable name of the reason.
func (r RouteReason) String() string {
	switch r {
	case RouteChanged:
		return "ROUTE_CHANGED"
	case Interrupted:
		return "INTERRUPTED"
	default:
		return "UNKNOWN"
	}
}

// RouteEvent describes an audio-route change or OS interruption observed by
// the capture device.
type RouteEvent struct {
	// Reason classifies the event.
	Reason RouteReason

	// Detail is an optional human-readable description from the platform.
	Detail string
}

// Source is the abstraction over a microphone frame source.
type Source interface {
	// Start acquires the device and begins emitting frames. It returns once
	// the device has transitioned: [ErrPermissionDenied] when microphone
	// access is missing, [ErrDeviceUnavailable] when the device cannot be
	// opened, nil on success. Start while already running is a no-op, not
	// an error — exactly one underlying device acquisition occurs.
	Start(ctx context.Context) error

	// Stop releases the device and halts frame production. Safe to call
	// multiple times and when not running.
	Stop() error

	// Frames returns the bounded frame channel. The channel is owned by the
	// Source and stays valid across Stop/Start cycles; it is never closed.
	Frames() <-chan audio.Frame

	// Routes returns the route-change event channel. Same ownership rules
	// as Frames.
	Routes() <-chan RouteEvent
}
