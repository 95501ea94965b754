package playback

import (
	"context"
	"testing"
)

type nopRenderer struct{}

func (nopRenderer) Render(context.Context, Item) error { return nil }
func (nopRenderer) Close() error                       { return nil }

// An item enqueued in the window between the dispatch loop seeing an empty
// queue and finishBurst taking the lock must not end the burst: the queue is
// non-empty, so a stopped callback (and the spurious started that would
// follow) would break the one-pair-per-burst contract.
func TestFinishBurstKeepsBurstAliveWhenItemRaces(t *testing.T) {
	t.Parallel()

	stops := 0
	c := New(nopRenderer{})
	defer c.Close()
	c.OnSpeakingStopped(func() { stops++ })

	// Recreate the race window directly: mid-burst, with an item that landed
	// after the last pop. The dispatch goroutine is parked on its notify
	// channel, so the state is ours to stage under the lock.
	c.mu.Lock()
	c.speaking = true
	c.queue = append(c.queue, Item{ID: "late"})
	c.mu.Unlock()

	c.finishBurst()

	c.mu.Lock()
	stillSpeaking := c.speaking
	c.mu.Unlock()
	if !stillSpeaking {
		t.Error("burst ended with an item still queued")
	}
	if stops != 0 {
		t.Errorf("stopped callbacks = %d, want 0", stops)
	}
}
