// Package mock provides a scriptable test double for the playback package.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/mia21com/handsfree/pkg/playback"
)

// RenderCall records a single invocation of Renderer.Render.
type RenderCall struct {
	// Item is the item passed to Render.
	Item playback.Item
}

// Renderer is a mock implementation of playback.Renderer.
type Renderer struct {
	mu sync.Mutex

	// Errs maps item IDs to the error Render returns for them. Items not
	// present render successfully.
	Errs map[string]error

	// Delay, if non-zero, is how long each Render blocks (respecting ctx)
	// before returning, simulating real rendering time.
	Delay time.Duration

	// RenderCalls records every call to Render in order.
	RenderCalls []RenderCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Compile-time check that *Renderer satisfies playback.Renderer.
var _ playback.Renderer = (*Renderer)(nil)

// Render records the call, waits out Delay, and returns the scripted error
// for the item's ID (nil when unscripted).
func (r *Renderer) Render(ctx context.Context, item playback.Item) error {
	r.mu.Lock()
	r.RenderCalls = append(r.RenderCalls, RenderCall{Item: item})
	delay := r.Delay
	err := r.Errs[item.ID]
	r.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Close records the call.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CloseCallCount++
	return nil
}

// Rendered returns the IDs of all rendered items in order. Thread-safe.
func (r *Renderer) Rendered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(r.RenderCalls))
	for i, c := range r.RenderCalls {
		ids[i] = c.Item.ID
	}
	return ids
}
