package storage

import (
	"encoding/hex"
	"time"

	"github.com/redfs/redfs/classify"
	"github.com/redfs/redfs/codec"
	"github.com/redfs/redfs/device"
	"github.com/redfs/redfs/metadata"
	"github.com/redfs/redfs/placement"
	"github.com/redfs/redfs/rfserr"
)

// ReadFile implements FsCapability (spec.md §4.4): returns the exact bytes
// last successfully written, verifying every extent's checksum, rebuilding
// degraded extents along the way, and triggering lazy migration once the
// read completes.
func (e *Engine) ReadFile(ino uint64) ([]byte, error) {
	n, err := e.store.LoadInode(ino)
	if err != nil {
		return nil, err
	}
	if n.Type != metadata.InodeFile {
		return nil, rfserr.NewUnsupported("not a regular file")
	}

	em, err := e.store.LoadExtentMap(ino)
	if err != nil {
		if rfserr.Is(err, rfserr.NotFound) {
			return []byte{}, nil
		}
		return nil, err
	}

	buf := make([]byte, 0, n.Size)
	for _, uid := range em.ExtentUIDs {
		data, err := e.readExtentVerified(uid)
		if err != nil {
			return nil, err
		}
		buf = append(buf, data...)
	}

	for _, uid := range em.ExtentUIDs {
		e.recordReadAndMaybeMigrate(uid)
	}
	return buf, nil
}

// collectFragments reads every physically present fragment of ext,
// returning them positionally indexed and the present count.
func (e *Engine) collectFragments(ext *metadata.Extent) ([][]byte, int) {
	present := make([][]byte, ext.Policy.FragmentCount())
	count := 0
	for _, loc := range ext.FragmentLocations {
		h, ok := e.pool.ByUID(loc.DeviceUID)
		if !ok {
			continue
		}
		data, err := h.ReadFragment(ext.UID, loc)
		if err == nil {
			present[loc.Index] = data
			count++
		}
	}
	return present, count
}

// readExtentVerified decodes extentUID's data, rebuilding it first if it is
// degraded, and verifies the BLAKE3 checksum before returning.
func (e *Engine) readExtentVerified(extentUID string) ([]byte, error) {
	unlockR := e.locks.RLock(extentUID)
	ext, err := e.store.LoadExtent(extentUID)
	if err != nil {
		unlockR()
		return nil, err
	}
	present, count := e.collectFragments(&ext)
	min := ext.Policy.MinFragmentsForRead()
	required := ext.Policy.FragmentCount()
	unlockR()

	if count < min {
		return nil, rfserr.NewInsufficientFragments(count, min)
	}

	if count < required {
		if err := e.rebuildDegraded(extentUID); err != nil {
			e.log.Warn().Err(err).Str("extent", extentUID).Msg("rebuild on read failed, serving from present fragments")
		} else if reloaded, err := e.store.LoadExtent(extentUID); err == nil {
			ext = reloaded
			present, _ = e.collectFragments(&ext)
		}
	}

	data, err := codec.Decode(present, ext.Policy, ext.SizeBytes)
	if err != nil {
		return nil, err
	}

	sum := codec.Checksum(data)
	got := hex.EncodeToString(sum[:])
	if got != ext.Checksum {
		return nil, rfserr.NewChecksumMismatch("extent "+extentUID, ext.Checksum, got)
	}
	return data, nil
}

func (e *Engine) rebuildDegraded(extentUID string) error {
	unlock := e.locks.Lock(extentUID)
	defer unlock()

	ext, err := e.store.LoadExtent(extentUID)
	if err != nil {
		return err
	}
	present, _ := e.collectFragments(&ext)
	if err := placement.RebuildExtent(e.sim, e.sched, e.pool, &ext, present, device.TierHot); err != nil {
		return err
	}
	return e.store.SaveExtent(e.sim, &ext)
}

// recordReadAndMaybeMigrate updates extentUID's access stats and, if the
// classifier now recommends a different policy, opportunistically
// re-bundles it (spec.md §4.6's lazy migration: best-effort, logged on
// failure, never fails the read that triggered it).
func (e *Engine) recordReadAndMaybeMigrate(extentUID string) {
	now := time.Now()

	unlock := e.locks.Lock(extentUID)
	ext, err := e.store.LoadExtent(extentUID)
	if err != nil {
		unlock()
		return
	}
	ext.AccessStats.ReadCount++
	ext.AccessStats.LastRead = now
	next := classify.Advance(ext.AccessStats, now)
	ext.AccessStats.Classification = next
	if err := e.store.SaveExtent(e.sim, &ext); err != nil {
		unlock()
		e.log.Warn().Err(err).Str("extent", extentUID).Msg("failed to persist access stats")
		return
	}
	e.cache.Put(extentUID, ext.AccessStats)
	currentPolicy := ext.Policy
	unlock()

	recommended := classify.RecommendedPolicy(next)
	if recommended.Equal(currentPolicy) {
		return
	}
	// A concurrent ChangeFileRedundancy on the same extent is serialized by
	// the extent write lock rebundleOne takes; whichever rebundle commits
	// last wins.
	if err := e.rebundleOne(extentUID, recommended); err != nil {
		e.log.Warn().Err(err).Str("extent", extentUID).Msg("lazy migration failed")
	}
}

// PerformMountRebuild implements perform_mount_rebuild (spec.md §4.4):
// scans every extent and rebuilds any that are decodable but short of
// their nominal fragment count. Per-extent failures are collected, not
// fatal to the sweep.
func (e *Engine) PerformMountRebuild() map[string]error {
	uids, err := e.store.ListExtentUIDs()
	if err != nil {
		return map[string]error{"*": err}
	}

	results := make(map[string]error)
	for _, uid := range uids {
		if err := e.mountRebuildOne(uid); err != nil {
			results[uid] = err
		}
	}
	return results
}

func (e *Engine) mountRebuildOne(extentUID string) error {
	unlock := e.locks.Lock(extentUID)
	defer unlock()

	ext, err := e.store.LoadExtent(extentUID)
	if err != nil {
		return err
	}
	present, count := e.collectFragments(&ext)
	min := ext.Policy.MinFragmentsForRead()
	required := ext.Policy.FragmentCount()
	if count < min || count >= required {
		return nil
	}

	if err := placement.RebuildExtent(e.sim, e.sched, e.pool, &ext, present, device.TierHot); err != nil {
		return err
	}
	return e.store.SaveExtent(e.sim, &ext)
}
