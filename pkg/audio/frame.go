// Package audio defines the frame type and PCM/WAV primitives shared by the
// hands-free pipeline stages.
//
// A [Frame] is the atomic unit of audio transport: captured by a
// capture.Source, classified by a vad.Detector, and accumulated by the
// segment assembler. Frames are immutable once produced — ownership passes
// from the capture goroutine to the processing goroutine through a bounded
// channel, and no stage mutates Data in place.
package audio

import "time"

// Frame is a fixed-size block of little-endian signed 16-bit PCM samples.
type Frame struct {
	// Data is raw PCM. Length is always even (2 bytes per sample).
	Data []byte

	// SampleRate in Hz (e.g., 16000 for the STT-optimised capture path).
	SampleRate int

	// Channels is the channel count. The hands-free pipeline runs mono (1).
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	// It is monotonic within one capture run.
	Timestamp time.Duration
}

// Samples returns the number of PCM samples per channel in the frame.
func (f Frame) Samples() int {
	if f.Channels <= 0 {
		return len(f.Data) / 2
	}
	return len(f.Data) / (2 * f.Channels)
}

// Duration returns the wall-clock span the frame covers, derived from its
// sample count and sample rate. Returns zero for an unconfigured frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.Samples()) * time.Second / time.Duration(f.SampleRate)
}

// End returns the timestamp just past the last sample of the frame.
func (f Frame) End() time.Duration {
	return f.Timestamp + f.Duration()
}
