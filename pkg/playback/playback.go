// Package playback plays assistant speech chunks strictly in FIFO order and
// reports speaking-state transitions to the conversation engine.
//
// The central type is [Coordinator]: items are enqueued from any goroutine
// and rendered one at a time by a single background dispatch goroutine, so
// decoding and rendering never happen on the capture path. The coordinator
// emits the speaking-started callback exactly once when it transitions from
// drained to rendering and the speaking-stopped callback exactly once when
// the queue drains — including when items in between fail to decode and are
// skipped.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Item is one opaque audio chunk (already in a directly playable container,
// e.g. an Opus packet or a compressed file) submitted for playback.
type Item struct {
	// ID optionally identifies the chunk for logging. May be empty.
	ID string

	// Data is the playable payload. The coordinator never inspects it;
	// interpretation belongs to the [Renderer].
	Data []byte
}

// Renderer decodes and plays a single item. Implementations run on the
// coordinator's dispatch goroutine and should honour context cancellation so
// [Coordinator.Reset] can cut a chunk short.
type Renderer interface {
	// Render plays item to completion or until ctx is cancelled. A decode
	// or render failure is recoverable: the coordinator logs it and moves
	// on to the next item.
	Render(ctx context.Context, item Item) error

	// Close releases renderer resources.
	Close() error
}

// Option configures a [Coordinator] during construction.
type Option func(*Coordinator)

// WithQueueCapacity sets the initial capacity hint for the internal queue.
// This does not impose a hard limit — the queue grows as needed.
func WithQueueCapacity(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.queue = make([]Item, 0, n)
		}
	}
}

// WithItemHook registers fn to be called after every item finishes rendering,
// with the error it produced (nil on success, excluding cancellation).
// Intended for metrics.
func WithItemHook(fn func(Item, error)) Option {
	return func(c *Coordinator) { c.itemHook = fn }
}

// defaultQueueCap is the initial capacity hint for the item queue.
const defaultQueueCap = 16

// Coordinator schedules [Item] playback strictly first-in, first-out.
//
// All exported methods are safe for concurrent use; Reset and StopAll may be
// called from any goroutine and do not race with an in-flight Enqueue.
type Coordinator struct {
	renderer Renderer
	itemHook func(Item, error)

	mu            sync.Mutex
	queue         []Item
	speaking      bool
	cancelPlaying context.CancelFunc // non-nil while an item renders
	startedFn     func()
	stoppedFn     func()
	closed        bool

	notify chan struct{} // signalled when an item is enqueued
	done   chan struct{} // closed by Close to stop the dispatch goroutine
	exited chan struct{} // closed when the dispatch goroutine returns
}

// New creates a Coordinator that plays items through renderer. The dispatch
// goroutine starts immediately; call [Coordinator.Close] to stop it.
func New(renderer Renderer, opts ...Option) *Coordinator {
	c := &Coordinator{
		renderer: renderer,
		queue:    make([]Item, 0, defaultQueueCap),
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	go c.dispatch()
	return c
}

// OnSpeakingStarted registers fn as the callback invoked when the coordinator
// transitions from drained to rendering. Only one callback may be registered
// at a time; subsequent calls replace the previous registration. The callback
// runs on the dispatch goroutine and must not block.
func (c *Coordinator) OnSpeakingStarted(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startedFn = fn
}

// OnSpeakingStopped registers fn as the callback invoked when the queue
// drains with nothing left to play. Same registration rules as
// [Coordinator.OnSpeakingStarted].
func (c *Coordinator) OnSpeakingStopped(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stoppedFn = fn
}

// Enqueue schedules item for playback after everything already queued.
// Enqueue after Close is a silent no-op.
func (c *Coordinator) Enqueue(item Item) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.queue = append(c.queue, item)

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Reset drops all queued items and stops the currently rendering item
// immediately. If the coordinator was speaking, the speaking-stopped callback
// fires (once) as the dispatch goroutine observes the drained queue.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// StopAll stops playback immediately: nothing queued is finished, the current
// item is cut short, and the speaking-stopped callback fires if the
// coordinator had been speaking. Equivalent to [Coordinator.Reset]; the two
// names exist because callers distinguish a user-initiated stop from an
// internal flush.
func (c *Coordinator) StopAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// Close stops the dispatch goroutine, discards queued items, and closes the
// renderer. Close is idempotent.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stopLocked()
	close(c.done)
	c.mu.Unlock()

	<-c.exited
	return c.renderer.Close()
}

// stopLocked clears the queue and cancels the in-flight render.
// Must be called with c.mu held.
func (c *Coordinator) stopLocked() {
	c.queue = c.queue[:0]
	if c.cancelPlaying != nil {
		c.cancelPlaying()
	}
}

// dispatch is the single playback goroutine: it pops items FIFO, renders
// them, and maintains the speaking state.
func (c *Coordinator) dispatch() {
	defer close(c.exited)

	for {
		select {
		case <-c.done:
			c.finishBurst()
			return
		case <-c.notify:
		}

		for c.playNext() {
		}
		c.finishBurst()
	}
}

// playNext renders the head of the queue, firing the speaking-started
// callback on a drained→rendering transition. Returns false when the queue
// is empty or the coordinator is closed.
func (c *Coordinator) playNext() bool {
	c.mu.Lock()
	if c.closed || len(c.queue) == 0 {
		c.mu.Unlock()
		return false
	}
	item := c.queue[0]
	c.queue = c.queue[1:]

	justStarted := !c.speaking
	c.speaking = true
	started := c.startedFn

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelPlaying = cancel
	c.mu.Unlock()

	if justStarted && started != nil {
		started()
	}

	err := c.renderer.Render(ctx, item)
	cancel()

	c.mu.Lock()
	c.cancelPlaying = nil
	c.mu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) {
		// Recoverable: skip this item, attempt the next.
		slog.Warn("playback: item failed, skipping", "item_id", item.ID, "err", err)
		if c.itemHook != nil {
			c.itemHook(item, err)
		}
	} else if err == nil && c.itemHook != nil {
		c.itemHook(item, nil)
	}
	return true
}

// finishBurst flips speaking off and fires the speaking-stopped callback if a
// burst just ended. An item enqueued between the last pop and this check
// keeps the burst alive instead: the pending notify signal brings the
// dispatch loop straight back to playNext, with no stop/start pair in
// between.
func (c *Coordinator) finishBurst() {
	c.mu.Lock()
	if !c.closed && len(c.queue) > 0 {
		c.mu.Unlock()
		return
	}
	wasSpeaking := c.speaking
	c.speaking = false
	stopped := c.stoppedFn
	c.mu.Unlock()

	if wasSpeaking && stopped != nil {
		stopped()
	}
}
