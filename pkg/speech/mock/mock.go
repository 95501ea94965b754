// Package mock provides a scriptable test double for the speech package.
package mock

import (
	"context"
	"sync"

	"github.com/mia21com/handsfree/pkg/speech"
)

// Synthesizer is a mock implementation of speech.Synthesizer. Each call to
// Synthesize echoes received text fragments back as PCM chunks (the
// fragment's bytes), unless Chunks overrides the output.
type Synthesizer struct {
	mu sync.Mutex

	// Chunks, when non-nil, is emitted verbatim instead of echoed text.
	Chunks [][]byte

	// SynthesizeErr, when set, is returned by Synthesize immediately.
	SynthesizeErr error

	// VoiceList is returned by Voices.
	VoiceList []speech.Voice

	// VoicesErr, when set, is returned by Voices.
	VoicesErr error

	// SynthesizeCallCount counts Synthesize invocations.
	SynthesizeCallCount int

	// Fragments records every text fragment read across all calls.
	Fragments []string
}

// Compile-time check that *Synthesizer satisfies speech.Synthesizer.
var _ speech.Synthesizer = (*Synthesizer)(nil)

// Synthesize consumes text and emits scripted or echoed audio chunks.
func (s *Synthesizer) Synthesize(ctx context.Context, text <-chan string) (<-chan []byte, error) {
	s.mu.Lock()
	s.SynthesizeCallCount++
	errOut := s.SynthesizeErr
	chunks := s.Chunks
	s.mu.Unlock()

	if errOut != nil {
		return nil, errOut
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		for {
			select {
			case fragment, ok := <-text:
				if !ok {
					for _, c := range chunks {
						select {
						case out <- c:
						case <-ctx.Done():
							return
						}
					}
					return
				}
				s.mu.Lock()
				s.Fragments = append(s.Fragments, fragment)
				s.mu.Unlock()
				if chunks == nil {
					select {
					case out <- []byte(fragment):
					case <-ctx.Done():
						return
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Voices returns the scripted voice list.
func (s *Synthesizer) Voices(ctx context.Context) ([]speech.Voice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.VoicesErr != nil {
		return nil, s.VoicesErr
	}
	return s.VoiceList, nil
}

// ReceivedFragments returns a copy of all recorded text fragments.
func (s *Synthesizer) ReceivedFragments() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Fragments))
	copy(out, s.Fragments)
	return out
}
