package concurrency

import (
	"sync"

	"github.com/redfs/redfs/rfserr"
)

// Scheduler bounds in-flight I/O per device with a fixed-depth queue
// (spec.md §5). A device whose queue is already full rejects further
// submissions with QueueFull rather than blocking the caller.
type Scheduler struct {
	depth int

	mu     sync.Mutex
	queues map[string]chan struct{}
}

// NewScheduler builds a scheduler whose per-device queues hold depth slots.
// depth<=0 falls back to 100, matching config.DeviceQueueDepth's default.
func NewScheduler(depth int) *Scheduler {
	if depth <= 0 {
		depth = 100
	}
	return &Scheduler{depth: depth, queues: make(map[string]chan struct{})}
}

func (s *Scheduler) queueFor(deviceUID string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[deviceUID]
	if !ok {
		q = make(chan struct{}, s.depth)
		s.queues[deviceUID] = q
	}
	return q
}

// Submit reserves a slot in deviceUID's queue. On success it returns a
// release function the caller must invoke when the I/O completes. If the
// queue is already at depth, it fails immediately with rfserr.QueueFull.
func (s *Scheduler) Submit(deviceUID string) (func(), error) {
	q := s.queueFor(deviceUID)
	select {
	case q <- struct{}{}:
		return func() { <-q }, nil
	default:
		return nil, rfserr.NewQueueFull(deviceUID)
	}
}
