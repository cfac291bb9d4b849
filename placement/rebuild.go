package placement

import (
	"github.com/redfs/redfs/codec"
	"github.com/redfs/redfs/concurrency"
	"github.com/redfs/redfs/crashsim"
	"github.com/redfs/redfs/device"
	"github.com/redfs/redfs/metadata"
	"github.com/redfs/redfs/rfserr"
)

// locationByIndex indexes ext's current fragment locations by fragment
// index, for lookups during rebuild and rebundle.
func locationByIndex(ext *metadata.Extent) map[int]device.FragmentLocation {
	m := make(map[int]device.FragmentLocation, len(ext.FragmentLocations))
	for _, loc := range ext.FragmentLocations {
		m[loc.Index] = loc
	}
	return m
}

// RebuildExtent fills in ext's missing fragments and migrates any fragment
// still living on a draining device (spec.md §4.3). present holds the
// currently-readable fragment bytes indexed by fragment index, nil for a
// slot that cannot be read. Rebuild is idempotent: if nothing is missing
// and nothing needs to move off a draining device, it is a no-op. sched,
// when non-nil, bounds in-flight fragment writes per device (spec.md §5's
// I/O scheduler); nil skips scheduling.
func RebuildExtent(sim *crashsim.Simulator, sched *concurrency.Scheduler, pool *device.Pool, ext *metadata.Extent, present [][]byte, targetTier device.Tier) error {
	byIndex := locationByIndex(ext)

	draining := map[int]bool{}
	for idx, loc := range byIndex {
		if h, ok := pool.ByUID(loc.DeviceUID); ok && h.Health() == device.HealthDraining {
			draining[idx] = true
		}
	}

	toReplace := map[int]bool{}
	presentCount := 0
	for i, frag := range present {
		if frag != nil {
			presentCount++
		} else {
			toReplace[i] = true
		}
	}
	for idx := range draining {
		toReplace[idx] = true
	}

	if len(toReplace) == 0 {
		return nil
	}

	min := ext.Policy.MinFragmentsForRead()
	if presentCount < min {
		return rfserr.NewInsufficientFragments(presentCount, min)
	}

	data, err := codec.Decode(present, ext.Policy, ext.SizeBytes)
	if err != nil {
		return err
	}
	rebuilt, err := codec.Encode(data, ext.Policy)
	if err != nil {
		return err
	}

	excluded := map[string]bool{}
	for idx, loc := range byIndex {
		if !toReplace[idx] {
			excluded[loc.DeviceUID] = true
		}
	}

	available, _ := pool.Get()
	candidates := excludeUIDs(available, excluded)

	indexes := make([]int, 0, len(toReplace))
	for idx := range toReplace {
		indexes = append(indexes, idx)
	}

	fragBytes := int64(0)
	for _, idx := range indexes {
		if int64(len(rebuilt[idx])) > fragBytes {
			fragBytes = int64(len(rebuilt[idx]))
		}
	}

	uids, err := SelectDisks(candidates, len(indexes), fragBytes, targetTier)
	if err != nil {
		return err
	}

	fragments := make([][]byte, len(indexes))
	for i, idx := range indexes {
		fragments[i] = rebuilt[idx]
	}

	newLocs, err := writeFragmentsAt(sim, sched, pool, ext.UID, uids, indexes, fragments)
	if err != nil {
		return err
	}

	for _, loc := range newLocs {
		byIndex[loc.Index] = loc
	}

	oldDraining := make([]device.FragmentLocation, 0, len(draining))
	for idx := range draining {
		if loc, ok := locationByIndex(ext)[idx]; ok {
			oldDraining = append(oldDraining, loc)
		}
	}

	rebuiltLocs := make([]device.FragmentLocation, 0, len(byIndex))
	for _, loc := range byIndex {
		rebuiltLocs = append(rebuiltLocs, loc)
	}
	ext.FragmentLocations = rebuiltLocs

	for _, loc := range oldDraining {
		if h, ok := pool.ByUID(loc.DeviceUID); ok {
			_ = h.DeleteFragment(ext.UID, loc)
		}
	}
	return nil
}

// writeFragmentsAt is writeFragmentsParallel with an explicit fragment
// index per slot, used by rebuild where the written indexes are a scattered
// subset rather than 0..n-1.
func writeFragmentsAt(sim *crashsim.Simulator, sched *concurrency.Scheduler, pool *device.Pool, extentUID string, disks []string, indexes []int, fragments [][]byte) ([]device.FragmentLocation, error) {
	n := len(fragments)
	results := make([]fragmentResult, n)
	done := make(chan int, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			h, ok := pool.ByUID(disks[i])
			if !ok {
				results[i] = fragmentResult{err: rfserr.NewNotFound("device " + disks[i])}
				done <- i
				return
			}
			loc, err := writeFragment(sched, sim, h, extentUID, indexes[i], fragments[i])
			results[i] = fragmentResult{loc: loc, err: err}
			done <- i
		}(i)
	}
	for i := 0; i < n; i++ {
		<-done
	}

	var firstErr error
	locs := make([]device.FragmentLocation, 0, n)
	for _, r := range results {
		if r.err != nil && firstErr == nil {
			firstErr = r.err
			continue
		}
		if r.err == nil {
			locs = append(locs, r.loc)
		}
	}
	if firstErr != nil {
		rollbackFragments(pool, extentUID, locs)
		return nil, firstErr
	}
	return locs, nil
}
