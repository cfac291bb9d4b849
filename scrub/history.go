package scrub

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/sdomino/scribble"
)

const historyCollection = "scrub_runs"

// History is ancillary run-history bookkeeping, not part of the
// consistency-critical path (spec.md §4.2's records are the authoritative
// state; a lost scrub run only means a gap in a report), so it persists via
// scribble's JSON-per-key store rather than metadata's checksum-verified
// write-temp-fsync-rename protocol — grounded on the teacher's
// downloader/db.go, which makes exactly this same tradeoff for its own
// ancillary job bookkeeping.
type History struct {
	mu     sync.Mutex
	driver *scribble.Driver
}

func NewHistory(dir string) (*History, error) {
	driver, err := scribble.New(dir, nil)
	if err != nil {
		return nil, err
	}
	return &History{driver: driver}, nil
}

func (h *History) Record(sum Summary) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.driver.Write(historyCollection, sum.ID, sum)
}

func (h *History) Get(id string) (Summary, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var sum Summary
	err := h.driver.Read(historyCollection, id, &sum)
	return sum, err
}

func (h *History) List() ([]Summary, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	records, err := h.driver.ReadAll(historyCollection)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]Summary, 0, len(records))
	for _, raw := range records {
		var sum Summary
		if err := json.Unmarshal([]byte(raw), &sum); err != nil {
			continue
		}
		out = append(out, sum)
	}
	return out, nil
}
