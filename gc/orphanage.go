package gc

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sdomino/scribble"
)

const orphanCollection = "orphan_age"

// AgeTracker remembers the first-seen time of each orphan candidate key, so
// cleanup_orphans(min_age) can honor an age requirement across separate
// detection passes. Like scrub's History, this is observational state: if
// lost, the next detection pass simply restarts every orphan's clock, which
// is safe (it can only delay reclamation, never cause incorrect deletion of
// a still-referenced fragment) — so it is persisted via scribble rather
// than metadata's stricter protocol, grounded on the teacher's
// downloader/db.go.
type AgeTracker struct {
	mu     sync.Mutex
	dir    string
	driver *scribble.Driver
}

func NewAgeTracker(dir string) (*AgeTracker, error) {
	driver, err := scribble.New(dir, nil)
	if err != nil {
		return nil, err
	}
	return &AgeTracker{dir: dir, driver: driver}, nil
}

func (t *AgeTracker) FirstSeen(key string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ts time.Time
	if err := t.driver.Read(orphanCollection, safeKey(key), &ts); err != nil {
		return time.Time{}, false
	}
	return ts, true
}

func (t *AgeTracker) MarkSeen(key string, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.driver.Write(orphanCollection, safeKey(key), at)
}

func (t *AgeTracker) Forget(key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.driver.Delete(orphanCollection, safeKey(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ForgetExcept drops every tracked key not present in stillOrphaned — once
// a fragment is no longer detected as an orphan (referenced again, or
// already reclaimed), its clock should not persist. scribble exposes no
// key-listing call (ReadAll returns decoded values, not resource names), so
// this walks the collection directory scribble itself maintains.
func (t *AgeTracker) ForgetExcept(stillOrphaned map[string]bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	collectionDir := filepath.Join(t.dir, orphanCollection)
	entries, err := os.ReadDir(collectionDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		key := strings.TrimSuffix(e.Name(), ".json")
		if !stillOrphaned[unsafeKey(key)] {
			_ = t.driver.Delete(orphanCollection, key)
		}
	}
}

func safeKey(key string) string {
	return strings.ReplaceAll(key, "/", "_")
}

func unsafeKey(key string) string {
	return strings.ReplaceAll(key, "_", "/")
}
