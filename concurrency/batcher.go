package concurrency

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Batch is a group of items drained from a Batcher together, either because
// maxOps was reached or maxDelay elapsed since the first item arrived.
type Batch struct {
	ID    string
	Items []interface{}
}

// Batcher coalesces individual write requests into batches for placement,
// generalizing write_optimizer.rs's WriteBatcher: that struct thresholds on
// item count or accumulated bytes, but config.Config carries no
// byte-budget knob for writes, so here the second threshold is elapsed
// time (config.WriteBatchMaxDelay) instead of accumulated size. onFlush is
// invoked with each completed batch; it runs on whichever goroutine
// triggers the flush (either the Add caller that fills the batch, or the
// internal timer).
type Batcher struct {
	maxOps   int
	maxDelay time.Duration
	onFlush  func(Batch)

	mu      sync.Mutex
	pending []interface{}
	timer   *time.Timer
}

// NewBatcher builds a batcher with the given thresholds. onFlush must not
// be nil.
func NewBatcher(maxOps int, maxDelay time.Duration, onFlush func(Batch)) *Batcher {
	if maxOps <= 0 {
		maxOps = 1
	}
	return &Batcher{maxOps: maxOps, maxDelay: maxDelay, onFlush: onFlush}
}

// Add queues item, flushing immediately if this fills the batch.
func (b *Batcher) Add(item interface{}) {
	b.mu.Lock()
	b.pending = append(b.pending, item)
	switch {
	case len(b.pending) >= b.maxOps:
		b.flushLocked()
	case len(b.pending) == 1:
		b.timer = time.AfterFunc(b.maxDelay, b.Flush)
	}
	b.mu.Unlock()
}

// Flush drains whatever is pending, if anything, regardless of thresholds.
func (b *Batcher) Flush() {
	b.mu.Lock()
	b.flushLocked()
	b.mu.Unlock()
}

// PendingCount reports how many items are currently queued.
func (b *Batcher) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// flushLocked must be called with mu held.
func (b *Batcher) flushLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if len(b.pending) == 0 {
		return
	}
	items := b.pending
	b.pending = nil
	b.onFlush(Batch{ID: uuid.NewString(), Items: items})
}
