package audio

import (
	"testing"
	"time"
)

func TestFrameDuration(t *testing.T) {
	t.Parallel()

	f := Frame{
		Data:       make([]byte, 2048), // 1024 samples
		SampleRate: 16000,
		Channels:   1,
		Timestamp:  time.Second,
	}

	if got := f.Samples(); got != 1024 {
		t.Errorf("Samples() = %d, want 1024", got)
	}
	want := 1024 * time.Second / 16000 // 64ms
	if got := f.Duration(); got != want {
		t.Errorf("Duration() = %v, want %v", got, want)
	}
	if got := f.End(); got != time.Second+want {
		t.Errorf("End() = %v, want %v", got, time.Second+want)
	}
}

func TestFrameDurationZeroRate(t *testing.T) {
	t.Parallel()

	f := Frame{Data: make([]byte, 64)}
	if got := f.Duration(); got != 0 {
		t.Errorf("Duration() = %v for zero sample rate, want 0", got)
	}
}
