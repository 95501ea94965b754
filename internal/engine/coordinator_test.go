package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mia21com/handsfree/internal/engine"
	"github.com/mia21com/handsfree/internal/segment"
	"github.com/mia21com/handsfree/pkg/audio"
	"github.com/mia21com/handsfree/pkg/capture"
	capmock "github.com/mia21com/handsfree/pkg/capture/mock"
	"github.com/mia21com/handsfree/pkg/transcribe"
	trmock "github.com/mia21com/handsfree/pkg/transcribe/mock"
	"github.com/mia21com/handsfree/pkg/vad"
	vadmock "github.com/mia21com/handsfree/pkg/vad/mock"
)

const (
	testSampleRate = 16000
	testFrameSize  = 1024 // samples; 64 ms at 16 kHz
)

var testFrameDur = time.Duration(testFrameSize) * time.Second / testSampleRate

// testFrame builds frame number i of a sequential capture stream.
func testFrame(i int) audio.Frame {
	return audio.Frame{
		Data:       make([]byte, testFrameSize*2),
		SampleRate: testSampleRate,
		Channels:   1,
		Timestamp:  time.Duration(i) * testFrameDur,
	}
}

// labels builds a classification script of n copies of l.
func labels(l vad.Label, n int) []vad.Label {
	out := make([]vad.Label, n)
	for i := range out {
		out[i] = l
	}
	return out
}

// fixture bundles a coordinator and its mocks.
type fixture struct {
	c   *engine.Coordinator
	src *capmock.Source
	det *vadmock.Detector
	gw  *trmock.Gateway
}

func newFixture(t *testing.T, mutate func(*engine.Config)) *fixture {
	t.Helper()

	f := &fixture{
		src: capmock.NewSource(),
		det: &vadmock.Detector{},
		gw:  &trmock.Gateway{},
	}
	cfg := engine.Config{
		Source:   f.src,
		Detector: f.det,
		Gateway:  f.gw,
		Segmenter: segment.Config{
			SampleRate: testSampleRate,
		},
		SettleDelay:    10 * time.Millisecond,
		RestartBackoff: 5 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	c, err := engine.NewCoordinator(cfg)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	f.c = c
	return f
}

// feed emits n frames starting at sequence start.
func (f *fixture) feed(start, n int) {
	for i := 0; i < n; i++ {
		f.src.EmitFrame(testFrame(start + i))
	}
}

// waitEvent reads events until one of the wanted kind arrives.
func waitEvent(t *testing.T, c *engine.Coordinator, kind engine.EventKind) engine.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %v", kind)
		}
	}
}

// waitState polls until the coordinator reaches want.
func waitState(t *testing.T, c *engine.Coordinator, want engine.State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %v, still %v", want, c.State())
}

func TestNewCoordinatorValidation(t *testing.T) {
	t.Parallel()

	src := capmock.NewSource()
	det := &vadmock.Detector{}
	gw := &trmock.Gateway{}
	seg := segment.Config{SampleRate: testSampleRate}

	cases := []struct {
		name string
		cfg  engine.Config
	}{
		{"missing source", engine.Config{Detector: det, Gateway: gw, Segmenter: seg}},
		{"missing detector", engine.Config{Source: src, Gateway: gw, Segmenter: seg}},
		{"missing gateway", engine.Config{Source: src, Detector: det, Segmenter: seg}},
		{"bad segmenter", engine.Config{Source: src, Detector: det, Gateway: gw}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := engine.NewCoordinator(tc.cfg); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestStartIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	if err := f.c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.c.Stop()

	if err := f.c.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if err := f.c.Start(ctx); err != nil {
		t.Fatalf("third Start: %v", err)
	}

	if f.src.AcquireCount != 1 {
		t.Errorf("device acquisitions = %d, want 1", f.src.AcquireCount)
	}
	waitEvent(t, f.c, engine.EventListeningStarted)
	if f.c.State() != engine.StateListening {
		t.Errorf("state = %v, want LISTENING", f.c.State())
	}
}

func TestPermissionDeniedOnStart(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.src.StartErrs = []error{capture.ErrPermissionDenied}

	err := f.c.Start(context.Background())
	if !errors.Is(err, capture.ErrPermissionDenied) {
		t.Fatalf("Start error = %v, want ErrPermissionDenied", err)
	}
	ev := waitEvent(t, f.c, engine.EventPermissionDenied)
	if !errors.Is(ev.Err, capture.ErrPermissionDenied) {
		t.Errorf("event error = %v, want ErrPermissionDenied", ev.Err)
	}
	if f.c.State() != engine.StateIdle {
		t.Errorf("state = %v, want IDLE", f.c.State())
	}
}

func TestUtteranceIsTranscribed(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.gw.Results = []trmock.Scripted{
		{Result: transcribe.Result{Text: "turn on the lights"}},
	}

	// 5 silence, 6 speech (384 ms, above the floor), then enough silence to
	// close the segment.
	script := labels(vad.Silence, 5)
	script = append(script, labels(vad.Speech, 6)...)
	script = append(script, labels(vad.Silence, 40)...)
	f.det.Labels = script

	if err := f.c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.c.Stop()

	f.feed(0, len(script))

	waitEvent(t, f.c, engine.EventSegmentStarted)
	finished := waitEvent(t, f.c, engine.EventSegmentFinished)
	if want := 6 * testFrameDur; finished.Duration != want {
		t.Errorf("segment duration = %v, want %v", finished.Duration, want)
	}

	tr := waitEvent(t, f.c, engine.EventTranscript)
	if tr.Transcript.Text != "turn on the lights" {
		t.Errorf("transcript = %q, want %q", tr.Transcript.Text, "turn on the lights")
	}

	if got := f.gw.CallCount(); got != 1 {
		t.Errorf("gateway calls = %d, want 1", got)
	}
	// The submitted WAV covers speech plus trailing silence.
	wantPayload := (6 + 32) * testFrameSize * 2
	gotWAV := f.gw.TranscribeCalls[0].WAV
	if len(gotWAV) != 44+wantPayload {
		t.Errorf("WAV size = %d, want %d", len(gotWAV), 44+wantPayload)
	}
}

func TestShortBlipIsDiscarded(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	// 2 speech frames (128 ms) is below the 300 ms floor.
	script := labels(vad.Speech, 2)
	script = append(script, labels(vad.Silence, 40)...)
	f.det.Labels = script

	if err := f.c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.c.Stop()

	f.feed(0, len(script))

	waitEvent(t, f.c, engine.EventSegmentStarted)
	waitState(t, f.c, engine.StateListening)

	// Drain long enough for any wrongly emitted segment to surface.
	deadline := time.After(200 * time.Millisecond)
	for {
		select {
		case ev := <-f.c.Events():
			if ev.Kind == engine.EventSegmentFinished || ev.Kind == engine.EventTranscript {
				t.Fatalf("short blip must not emit %v", ev.Kind)
			}
		case <-deadline:
			if got := f.gw.CallCount(); got != 0 {
				t.Errorf("gateway calls = %d, want 0", got)
			}
			return
		}
	}
}

func TestSuppressionDiscardsAccumulation(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.det.Labels = labels(vad.Speech, 1000)

	if err := f.c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.c.Stop()

	// Open a segment with under 300 ms of speech accumulated.
	f.feed(0, 3)
	waitEvent(t, f.c, engine.EventSegmentStarted)

	f.c.NotifySpeakingStarted()
	waitState(t, f.c, engine.StateSuppressed)

	classified := len(f.det.ClassifyCalls)

	// Frames arriving while suppressed must not reach the detector or
	// resurrect the discarded accumulation.
	f.feed(3, 10)
	time.Sleep(50 * time.Millisecond)
	if got := len(f.det.ClassifyCalls); got != classified {
		t.Errorf("classified during suppression: %d extra frames", got-classified)
	}

	f.c.NotifySpeakingStopped()
	waitState(t, f.c, engine.StateListening)

	if got := f.gw.CallCount(); got != 0 {
		t.Errorf("gateway calls = %d, want 0 (accumulation was discarded)", got)
	}
}

func TestSuppressionStartCancelsPendingResume(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(cfg *engine.Config) {
		cfg.SettleDelay = 40 * time.Millisecond
	})

	if err := f.c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.c.Stop()

	f.c.NotifySpeakingStarted()
	waitState(t, f.c, engine.StateSuppressed)

	// A new burst begins before the settle delay elapses; capture must stay
	// suppressed.
	f.c.NotifySpeakingStopped()
	f.c.NotifySpeakingStarted()
	time.Sleep(100 * time.Millisecond)
	if got := f.c.State(); got != engine.StateSuppressed {
		t.Fatalf("state = %v, want SUPPRESSED", got)
	}

	f.c.NotifySpeakingStopped()
	waitState(t, f.c, engine.StateListening)
}

func TestTranscriptionFailureDoesNotHalt(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.gw.Results = []trmock.Scripted{
		{Err: errors.New("gateway unavailable")},
		{Result: transcribe.Result{Text: "second try"}},
	}

	utterance := labels(vad.Speech, 6)
	utterance = append(utterance, labels(vad.Silence, 32)...)
	script := append(append([]vad.Label{}, utterance...), utterance...)
	f.det.Labels = script

	if err := f.c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.c.Stop()

	f.feed(0, len(script))

	ev := waitEvent(t, f.c, engine.EventError)
	if ev.Err == nil {
		t.Error("error event should carry the cause")
	}

	tr := waitEvent(t, f.c, engine.EventTranscript)
	if tr.Transcript.Text != "second try" {
		t.Errorf("transcript = %q, want %q", tr.Transcript.Text, "second try")
	}
	if got := f.gw.CallCount(); got != 2 {
		t.Errorf("gateway calls = %d, want 2", got)
	}
}

func TestRouteChangeRestartsCapture(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	if err := f.c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.c.Stop()

	f.src.EmitRoute(capture.RouteEvent{Reason: capture.RouteChanged, Detail: "headset unplugged"})

	ev := waitEvent(t, f.c, engine.EventRestarting)
	if ev.Detail != "headset unplugged" {
		t.Errorf("detail = %q, want route description", ev.Detail)
	}
	waitState(t, f.c, engine.StateListening)

	if f.src.AcquireCount != 2 {
		t.Errorf("device acquisitions = %d, want 2", f.src.AcquireCount)
	}
}

func TestRestartGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(cfg *engine.Config) {
		cfg.RestartMaxAttempts = 2
	})
	// Initial acquisition succeeds; both restart attempts fail.
	f.src.StartErrs = []error{nil, capture.ErrDeviceUnavailable, capture.ErrDeviceUnavailable}

	if err := f.c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.c.Stop()

	f.src.EmitRoute(capture.RouteEvent{Reason: capture.Interrupted})

	ev := waitEvent(t, f.c, engine.EventError)
	if !errors.Is(ev.Err, engine.ErrRestartFailed) {
		t.Errorf("event error = %v, want ErrRestartFailed", ev.Err)
	}
	waitState(t, f.c, engine.StateIdle)
}

func TestStartAgainAfterRestartExhaustion(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(cfg *engine.Config) {
		cfg.RestartMaxAttempts = 2
	})
	// Initial acquisition succeeds, both restart attempts fail, and the
	// device comes back only after the engine has given up.
	f.src.StartErrs = []error{nil, capture.ErrDeviceUnavailable, capture.ErrDeviceUnavailable}

	if err := f.c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.c.Stop()

	f.src.EmitRoute(capture.RouteEvent{Reason: capture.Interrupted})
	ev := waitEvent(t, f.c, engine.EventError)
	if !errors.Is(ev.Err, engine.ErrRestartFailed) {
		t.Fatalf("event error = %v, want ErrRestartFailed", ev.Err)
	}
	waitState(t, f.c, engine.StateIdle)

	// The engine gave up, so a fresh Start must acquire the device anew.
	// The running flag is released just after the fatal event, so poll.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if err := f.c.Start(context.Background()); err != nil {
			t.Fatalf("re-Start: %v", err)
		}
		if f.c.State() == engine.StateListening {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("engine never resumed listening after re-Start")
		}
		time.Sleep(time.Millisecond)
	}

	if f.src.AcquireCount != 2 {
		t.Errorf("device acquisitions = %d, want 2", f.src.AcquireCount)
	}
}

func TestStartAgainAfterPermissionRevokedMidRestart(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.src.StartErrs = []error{nil, capture.ErrPermissionDenied}

	if err := f.c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.c.Stop()

	f.src.EmitRoute(capture.RouteEvent{Reason: capture.Interrupted})
	waitEvent(t, f.c, engine.EventPermissionDenied)
	waitState(t, f.c, engine.StateIdle)

	// Permission re-granted: a fresh Start recovers the pipeline.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if err := f.c.Start(context.Background()); err != nil {
			t.Fatalf("re-Start: %v", err)
		}
		if f.c.State() == engine.StateListening {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("engine never resumed listening after re-Start")
		}
		time.Sleep(time.Millisecond)
	}

	if f.src.AcquireCount != 2 {
		t.Errorf("device acquisitions = %d, want 2", f.src.AcquireCount)
	}
}

func TestRouteChangeWhileSuppressedKeepsSuppression(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.det.Labels = labels(vad.Speech, 1000)

	if err := f.c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.c.Stop()

	f.c.NotifySpeakingStarted()
	waitState(t, f.c, engine.StateSuppressed)

	// The device route flips while the assistant is still speaking. Once the
	// restarting event is out the state is RESTARTING, so reaching SUPPRESSED
	// again proves recovery restored it rather than falling back to listening.
	f.src.EmitRoute(capture.RouteEvent{Reason: capture.RouteChanged})
	waitEvent(t, f.c, engine.EventRestarting)
	waitState(t, f.c, engine.StateSuppressed)

	// Assistant playback reaching the recovered microphone must not be
	// classified or transcribed.
	f.feed(0, 10)
	time.Sleep(50 * time.Millisecond)
	if got := len(f.det.ClassifyCalls); got != 0 {
		t.Errorf("classified %d frames while the assistant was speaking", got)
	}
	if got := f.gw.CallCount(); got != 0 {
		t.Errorf("gateway calls = %d, want 0", got)
	}

	// Only the stop notification plus the settle delay resumes capture.
	f.c.NotifySpeakingStopped()
	waitState(t, f.c, engine.StateListening)

	f.feed(10, 1)
	waitEvent(t, f.c, engine.EventSegmentStarted)
}

func TestStopDiscardsPartialSegment(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.det.Labels = labels(vad.Speech, 1000)

	if err := f.c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	f.feed(0, 4)
	waitEvent(t, f.c, engine.EventSegmentStarted)

	if err := f.c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	waitEvent(t, f.c, engine.EventListeningStopped)

	if got := f.gw.CallCount(); got != 0 {
		t.Errorf("gateway calls = %d, want 0", got)
	}
	if f.c.State() != engine.StateIdle {
		t.Errorf("state = %v, want IDLE", f.c.State())
	}
	if !errorsIsNil(f.c.Stop()) {
		t.Error("second Stop should be a no-op")
	}
}

func errorsIsNil(err error) bool { return err == nil }

func TestVoiceActivityEdges(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	script := labels(vad.Silence, 2)
	script = append(script, labels(vad.Speech, 6)...)
	script = append(script, labels(vad.Silence, 40)...)
	f.det.Labels = script

	if err := f.c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.c.Stop()

	f.feed(0, len(script))

	up := waitEvent(t, f.c, engine.EventVoiceActivity)
	if !up.Active {
		t.Error("first activity edge should be active=true")
	}
	down := waitEvent(t, f.c, engine.EventVoiceActivity)
	if down.Active {
		t.Error("second activity edge should be active=false")
	}
}
