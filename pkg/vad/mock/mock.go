// Package mock provides test doubles for the vad package interfaces.
//
// Use Detector to script per-frame labels and inspect the frames that were
// submitted for classification:
//
//	det := &mock.Detector{Labels: []vad.Label{vad.Silence, vad.Speech, vad.Speech}}
//	label, _ := det.Classify(frame)
package mock

import (
	"sync"

	"github.com/mia21com/handsfree/pkg/audio"
	"github.com/mia21com/handsfree/pkg/vad"
)

// ClassifyCall records a single invocation of Detector.Classify.
type ClassifyCall struct {
	// Frame is the frame passed to Classify (not copied — frames are
	// immutable by contract).
	Frame audio.Frame
}

// Detector is a mock implementation of vad.Detector. It replays the Labels
// slice one entry per Classify call; once exhausted it keeps returning the
// last entry (or vad.Silence if Labels is empty).
type Detector struct {
	mu sync.Mutex

	// Labels is the scripted sequence of classification results.
	Labels []vad.Label

	// ClassifyErr, if non-nil, is returned by every Classify call.
	ClassifyErr error

	// ClassifyCalls records every call to Classify in order.
	ClassifyCalls []ClassifyCall

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	next int
}

// Compile-time check that *Detector satisfies vad.Detector.
var _ vad.Detector = (*Detector)(nil)

// Classify records the call and returns the next scripted label.
func (d *Detector) Classify(frame audio.Frame) (vad.Label, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ClassifyCalls = append(d.ClassifyCalls, ClassifyCall{Frame: frame})
	if d.ClassifyErr != nil {
		return vad.Silence, d.ClassifyErr
	}
	if len(d.Labels) == 0 {
		return vad.Silence, nil
	}
	label := d.Labels[min(d.next, len(d.Labels)-1)]
	d.next++
	return label, nil
}

// Reset records the call by incrementing ResetCallCount.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ResetCallCount++
}

// ResetCalls clears all recorded call history and rewinds the label script.
// Thread-safe.
func (d *Detector) ResetCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ClassifyCalls = nil
	d.ResetCallCount = 0
	d.next = 0
}
