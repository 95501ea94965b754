// Package energy implements a short-term RMS energy voice activity detector.
//
// The detector compares each frame's root-mean-square level (normalised to
// [0, 1]) against two thresholds: speech begins when the level rises above
// SpeechThreshold and ends only when it falls below the lower
// SilenceThreshold. The gap between the two is the hysteresis band that
// keeps the label from toggling on every borderline frame.
package energy

import (
	"fmt"
	"math"
	"sync"

	"github.com/mia21com/handsfree/pkg/audio"
	"github.com/mia21com/handsfree/pkg/vad"
)

// Default thresholds, tuned for 16 kHz mono speech at conversational volume.
// Both are normalised RMS values in [0, 1].
const (
	DefaultSpeechThreshold  = 0.015
	DefaultSilenceThreshold = 0.008
)

// Config holds the tuning knobs for a [Detector].
type Config struct {
	// SpeechThreshold is the normalised RMS level above which a frame is
	// classified as speech while the detector is in the silence state.
	// Must be > SilenceThreshold. Default: 0.015.
	SpeechThreshold float64

	// SilenceThreshold is the normalised RMS level below which a frame is
	// classified as silence while the detector is in the speech state.
	// Default: 0.008.
	SilenceThreshold float64
}

// Detector is a pure-Go [vad.Detector] based on frame RMS energy with
// dual-threshold hysteresis. It keeps one bit of state (currently inside a
// speech run or not). Classification runs on a single goroutine; the
// thresholds may be retuned concurrently via SetThresholds.
type Detector struct {
	mu               sync.Mutex
	speechThreshold  float64
	silenceThreshold float64
	inSpeech         bool
}

// Compile-time check that *Detector satisfies [vad.Detector].
var _ vad.Detector = (*Detector)(nil)

// New creates a Detector from cfg. Zero thresholds are replaced with the
// package defaults. Returns an error if the thresholds do not leave a
// hysteresis gap (speech must be strictly above silence).
func New(cfg Config) (*Detector, error) {
	if cfg.SpeechThreshold == 0 {
		cfg.SpeechThreshold = DefaultSpeechThreshold
	}
	if cfg.SilenceThreshold == 0 {
		cfg.SilenceThreshold = DefaultSilenceThreshold
	}
	if cfg.SpeechThreshold <= cfg.SilenceThreshold {
		return nil, fmt.Errorf("energy: speech threshold %g must be greater than silence threshold %g",
			cfg.SpeechThreshold, cfg.SilenceThreshold)
	}
	if cfg.SpeechThreshold > 1 || cfg.SilenceThreshold < 0 {
		return nil, fmt.Errorf("energy: thresholds must lie in [0, 1], got speech=%g silence=%g",
			cfg.SpeechThreshold, cfg.SilenceThreshold)
	}
	return &Detector{
		speechThreshold:  cfg.SpeechThreshold,
		silenceThreshold: cfg.SilenceThreshold,
	}, nil
}

// Classify implements [vad.Detector]. Empty frames are silence.
func (d *Detector) Classify(frame audio.Frame) (vad.Label, error) {
	if len(frame.Data)%2 != 0 {
		return vad.Silence, fmt.Errorf("energy: odd PCM byte count %d", len(frame.Data))
	}
	if len(frame.Data) == 0 {
		return vad.Silence, nil
	}

	level := RMS(frame.Data)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.inSpeech {
		if level < d.silenceThreshold {
			d.inSpeech = false
		}
	} else {
		if level >= d.speechThreshold {
			d.inSpeech = true
		}
	}

	if d.inSpeech {
		return vad.Speech, nil
	}
	return vad.Silence, nil
}

// Reset implements [vad.Detector].
func (d *Detector) Reset() {
	d.mu.Lock()
	d.inSpeech = false
	d.mu.Unlock()
}

// SetThresholds retunes the detector, e.g. after a config reload. The same
// validation as [New] applies. The in-speech bit is preserved so an ongoing
// utterance is not cut mid-run.
func (d *Detector) SetThresholds(speech, silence float64) error {
	if speech <= silence {
		return fmt.Errorf("energy: speech threshold %g must be greater than silence threshold %g",
			speech, silence)
	}
	if speech > 1 || silence < 0 {
		return fmt.Errorf("energy: thresholds must lie in [0, 1], got speech=%g silence=%g",
			speech, silence)
	}
	d.mu.Lock()
	d.speechThreshold = speech
	d.silenceThreshold = silence
	d.mu.Unlock()
	return nil
}

// RMS computes the root-mean-square level of little-endian int16 PCM,
// normalised to [0, 1]. A trailing odd byte is ignored.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := float64(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
		sum += s * s
	}
	return math.Sqrt(sum/float64(n)) / 32768.0
}
