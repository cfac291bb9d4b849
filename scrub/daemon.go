package scrub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/redfs/redfs/config"
)

// DaemonState is the scrub daemon's externally-visible run state, matching
// the CLI's `scrub-daemon {start|stop|status|pause|resume}` surface
// (spec.md §6).
type DaemonState string

const (
	StateStopped DaemonState = "stopped"
	StateRunning DaemonState = "running"
	StatePaused  DaemonState = "paused"
)

// Daemon runs Scrubber sweeps on a schedule at a configurable intensity.
// The pause flag is honored between extents, never mid-extent (spec.md
// §4.5's cancellation model), by checking it inside the sweep loop rather
// than interrupting ScrubExtent.
type Daemon struct {
	scrubber *Scrubber
	history  *History
	cfg      *config.Config

	mu     sync.Mutex
	state  DaemonState
	stopCh chan struct{}
	doneCh chan struct{}
	paused int32
	repair bool
}

func NewDaemon(scrubber *Scrubber, history *History, cfg *config.Config, repair bool) *Daemon {
	return &Daemon{scrubber: scrubber, history: history, cfg: cfg, state: StateStopped, repair: repair}
}

func (d *Daemon) Status() DaemonState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Daemon) SetIntensity(i config.ScrubIntensity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.ScrubIntensity = i
}

// Start launches the background loop. A no-op if already running.
func (d *Daemon) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateStopped {
		return
	}
	d.state = StateRunning
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	go d.run(d.stopCh, d.doneCh)
}

// Stop signals the loop to exit and blocks until it does.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if d.state == StateStopped {
		d.mu.Unlock()
		return
	}
	stopCh, doneCh := d.stopCh, d.doneCh
	d.state = StateStopped
	d.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (d *Daemon) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateRunning {
		d.state = StatePaused
		atomic.StoreInt32(&d.paused, 1)
	}
}

func (d *Daemon) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StatePaused {
		d.state = StateRunning
		atomic.StoreInt32(&d.paused, 0)
	}
}

func (d *Daemon) scheduleInterval() time.Duration {
	switch d.cfg.ScrubSchedule {
	case config.ScrubContinuous:
		return 0
	case config.ScrubManual:
		return 0
	default: // ScrubNightly
		return 24 * time.Hour
	}
}

func (d *Daemon) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	if d.cfg.ScrubSchedule == config.ScrubManual {
		return
	}
	for {
		d.sweepOnce(stopCh)
		interval := d.scheduleInterval()
		if interval == 0 {
			interval = time.Second
		}
		select {
		case <-stopCh:
			return
		case <-time.After(interval):
		}
	}
}

// sweepOnce runs one full pool sweep, honoring the pause flag and
// intensity throttle between extents.
func (d *Daemon) sweepOnce(stopCh chan struct{}) {
	uids, err := d.scrubber.store.ListExtentUIDs()
	if err != nil {
		return
	}
	delay, batch := d.cfg.ScrubIntensity.Throttle()
	start := time.Now()
	results := make([]Result, 0, len(uids))

	for i, uid := range uids {
		select {
		case <-stopCh:
			return
		default:
		}
		for atomic.LoadInt32(&d.paused) == 1 {
			select {
			case <-stopCh:
				return
			case <-time.After(100 * time.Millisecond):
			}
		}

		results = append(results, d.scrubber.ScrubExtent(uid, d.repair))

		if (i+1)%batch == 0 {
			time.Sleep(delay)
		}
	}

	if d.history != nil && len(results) > 0 {
		sum := summarize(uuid.NewString(), start, intensityName(d.cfg.ScrubIntensity), results)
		_ = d.history.Record(sum)
	}
}

func intensityName(i config.ScrubIntensity) string {
	switch i {
	case config.ScrubLow:
		return "low"
	case config.ScrubHigh:
		return "high"
	default:
		return "medium"
	}
}
