// Package gc implements orphaned-fragment detection and reclamation
// (spec.md §4.5, component I).
package gc

import (
	"fmt"
	"time"

	"github.com/redfs/redfs/crashsim"
	"github.com/redfs/redfs/device"
	"github.com/redfs/redfs/metadata"
)

// OrphanKey identifies one physically-present fragment with no matching
// reference in any extent record.
type OrphanKey struct {
	DeviceUID string
	ExtentUID string
	Index     int
}

func (k OrphanKey) String() string {
	return fmt.Sprintf("%s/%s/%d", k.DeviceUID, k.ExtentUID, k.Index)
}

// Collector detects and reclaims orphaned fragments. GC never deletes a
// fragment referenced by any extent record (spec.md §4.5); it is built
// against metadata.Store and device.Pool directly rather than storage.Engine
// since it operates across the whole pool, not through any one inode.
type Collector struct {
	store   *metadata.Store
	pool    *device.Pool
	sim     *crashsim.Simulator
	tracker *AgeTracker
}

func NewCollector(store *metadata.Store, pool *device.Pool, sim *crashsim.Simulator, tracker *AgeTracker) *Collector {
	return &Collector{store: store, pool: pool, sim: sim, tracker: tracker}
}

// referencedSet is the union of every (device, extent, index) triple named
// by any extent record's fragment_locations.
func (c *Collector) referencedSet() (map[OrphanKey]bool, error) {
	uids, err := c.store.ListExtentUIDs()
	if err != nil {
		return nil, err
	}
	refs := make(map[OrphanKey]bool)
	for _, uid := range uids {
		ext, err := c.store.LoadExtent(uid)
		if err != nil {
			continue // corrupted record: left alone for scrub, not GC's concern
		}
		for _, loc := range ext.FragmentLocations {
			refs[OrphanKey{DeviceUID: loc.DeviceUID, ExtentUID: ext.UID, Index: loc.Index}] = true
		}
	}
	return refs, nil
}

// DetectOrphans cross-references every device's physically-present
// fragments against the referenced set (spec.md §4.5).
func (c *Collector) DetectOrphans() ([]OrphanKey, error) {
	refs, err := c.referencedSet()
	if err != nil {
		return nil, err
	}

	available, disabled := c.pool.Get()
	var orphans []OrphanKey
	for _, h := range append(available, disabled...) {
		present, err := h.ListFragments()
		if err != nil {
			continue
		}
		for _, f := range present {
			key := OrphanKey{DeviceUID: h.UID(), ExtentUID: f.ExtentUID, Index: f.Index}
			if !refs[key] {
				orphans = append(orphans, key)
			}
		}
	}
	return orphans, nil
}

// CleanupResult reports one orphan's disposition. Eligible means the
// orphan's tracked age met minAge; Deleted is only set when a fragment was
// actually removed from disk (never true in dry-run mode).
type CleanupResult struct {
	Key      OrphanKey
	AgeDays  float64
	Eligible bool
	Deleted  bool
}

// CleanupOrphans deletes orphans whose tracked first-seen age is at least
// minAge, optionally in dry-run mode (spec.md §4.5). An orphan seen for the
// first time this call is recorded with age zero and never deleted in the
// same pass unless minAge is zero, matching §8's idempotence property
// (`cleanup_orphans(min_age, dry_run=true)` never mutates disk state, and a
// second real cleanup at the same age is a no-op once nothing remains).
func (c *Collector) CleanupOrphans(minAge time.Duration, dryRun bool) ([]CleanupResult, error) {
	return c.CleanupOrphansWithProgress(minAge, dryRun, nil)
}

// CleanupOrphansWithProgress is CleanupOrphans with an optional per-orphan
// callback, for a caller (the CLI's plain-text `cleanup-orphans` command)
// driving a progress bar without duplicating the sweep loop.
func (c *Collector) CleanupOrphansWithProgress(minAge time.Duration, dryRun bool, onEach func(CleanupResult)) ([]CleanupResult, error) {
	orphans, err := c.DetectOrphans()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	seen := make(map[string]bool, len(orphans))
	results := make([]CleanupResult, 0, len(orphans))

	for _, key := range orphans {
		seen[key.String()] = true
		firstSeen, ok := c.tracker.FirstSeen(key.String())
		if !ok {
			firstSeen = now
			if err := c.tracker.MarkSeen(key.String(), now); err != nil {
				return nil, err
			}
		}
		age := now.Sub(firstSeen)
		res := CleanupResult{Key: key, AgeDays: age.Hours() / 24}

		if age >= minAge {
			res.Eligible = true
			if !dryRun {
				if h, ok := c.pool.ByUID(key.DeviceUID); ok {
					loc := device.FragmentLocation{DeviceUID: key.DeviceUID, Index: key.Index}
					if err := h.DeleteFragment(key.ExtentUID, loc); err == nil {
						res.Deleted = true
						_ = c.tracker.Forget(key.String())
					}
				}
			}
		}
		results = append(results, res)
		if onEach != nil {
			onEach(res)
		}
	}

	c.tracker.ForgetExcept(seen)
	return results, nil
}
