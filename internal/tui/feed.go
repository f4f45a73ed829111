package tui

import (
	"io"
	"sync"

	"github.com/vito/progrock"
)

var _ progrock.Writer = (*Feed)(nil)

// Feed is a progrock.Writer that queues status updates for a reader.
// Updates written before Enable are dropped, so an unused feed holds nothing.
type Feed struct {
	mu      sync.Mutex
	cond    *sync.Cond
	enabled bool
	closed  bool
	queue   []*progrock.StatusUpdate
}

// NewFeed creates a disabled Feed.
func NewFeed() *Feed {
	f := &Feed{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Enable starts queueing updates.
func (f *Feed) Enable() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = true
}

// WriteStatus queues update. It never blocks the writer.
func (f *Feed) WriteStatus(update *progrock.StatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.enabled || f.closed {
		return nil
	}
	f.queue = append(f.queue, update)
	f.cond.Signal()
	return nil
}

// Close ends the feed. Queued updates remain readable. It is safe to call
// more than once.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.cond.Broadcast()
	return nil
}

// Read blocks until an update is available. It returns io.EOF once the
// feed is closed and drained.
func (f *Feed) Read() (*progrock.StatusUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.queue) == 0 && !f.closed {
		f.cond.Wait()
	}
	if len(f.queue) == 0 {
		return nil, io.EOF
	}
	update := f.queue[0]
	f.queue[0] = nil
	f.queue = f.queue[1:]
	return update, nil
}
