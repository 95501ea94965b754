// Package mock provides a scriptable test double for the transcribe package.
//
// Use Gateway to inject transcription results or failures and inspect the
// WAV segments that were submitted:
//
//	gw := &mock.Gateway{Results: []mock.Scripted{
//	    {Result: transcribe.Result{Text: "hello"}},
//	    {Err: errors.New("upstream down")},
//	}}
package mock

import (
	"context"
	"sync"

	"github.com/mia21com/handsfree/pkg/transcribe"
)

// Scripted is one pre-programmed Transcribe outcome.
type Scripted struct {
	Result transcribe.Result
	Err    error
}

// TranscribeCall records a single invocation of Gateway.Transcribe.
type TranscribeCall struct {
	// WAV is a copy of the container passed to Transcribe.
	WAV []byte
}

// Gateway is a mock implementation of transcribe.Gateway. Successive calls
// consume the Results script in order; once exhausted, calls return the
// zero Result with no error.
type Gateway struct {
	mu sync.Mutex

	// Results is the scripted sequence of outcomes.
	Results []Scripted

	// TranscribeCalls records every call in order.
	TranscribeCalls []TranscribeCall

	next int
}

// Compile-time check that *Gateway satisfies transcribe.Gateway.
var _ transcribe.Gateway = (*Gateway)(nil)

// Transcribe records the call and returns the next scripted outcome.
func (g *Gateway) Transcribe(ctx context.Context, wav []byte) (transcribe.Result, error) {
	if err := ctx.Err(); err != nil {
		return transcribe.Result{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	cp := make([]byte, len(wav))
	copy(cp, wav)
	g.TranscribeCalls = append(g.TranscribeCalls, TranscribeCall{WAV: cp})

	if g.next < len(g.Results) {
		s := g.Results[g.next]
		g.next++
		return s.Result, s.Err
	}
	return transcribe.Result{}, nil
}

// CallCount returns the number of Transcribe invocations. Thread-safe.
func (g *Gateway) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.TranscribeCalls)
}
