package placement

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/redfs/redfs/codec"
	"github.com/redfs/redfs/concurrency"
	"github.com/redfs/redfs/crashsim"
	"github.com/redfs/redfs/device"
	"github.com/redfs/redfs/metadata"
	"github.com/redfs/redfs/rfserr"
)

// writeFragment writes one fragment to h, reserving a scheduler slot first
// when sched is non-nil (spec.md §5's bounded per-device I/O queue). A nil
// sched skips scheduling entirely, for callers (tests, the device drain
// sweep) that don't run under one.
func writeFragment(sched *concurrency.Scheduler, sim *crashsim.Simulator, h device.Handle, extentUID string, index int, data []byte) (device.FragmentLocation, error) {
	if sched != nil {
		release, err := sched.Submit(h.UID())
		if err != nil {
			return device.FragmentLocation{}, err
		}
		defer release()
	}
	return h.WriteFragment(sim, extentUID, index, data)
}

// fragmentResult is one worker's outcome, gathered back on a channel.
type fragmentResult struct {
	loc device.FragmentLocation
	err error
}

// writeFragmentsParallel writes fragments[i] to disks[i] on its own
// goroutine and waits for all of them (spec.md §4.3's "parallel worker
// threads"). On any failure it deletes every fragment that did succeed
// before returning the first error, so the caller never has to reason
// about a partially-placed extent.
func writeFragmentsParallel(sim *crashsim.Simulator, sched *concurrency.Scheduler, pool *device.Pool, extentUID string, disks []string, fragments [][]byte) ([]device.FragmentLocation, error) {
	n := len(fragments)
	results := make([]fragmentResult, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			h, ok := pool.ByUID(disks[i])
			if !ok {
				results[i] = fragmentResult{err: rfserr.NewNotFound("device " + disks[i])}
				return
			}
			loc, err := writeFragment(sched, sim, h, extentUID, i, fragments[i])
			results[i] = fragmentResult{loc: loc, err: err}
		}(i)
	}
	wg.Wait()

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

// rollbackFragments deletes every fragment in locs from its owning device,
// best-effort (deletion is idempotent so a second attempt via scrub is
// always safe).
func rollbackFragments(pool *device.Pool, extentUID string, locs []device.FragmentLocation) {
	for _, loc := range locs {
		if h, ok := pool.ByUID(loc.DeviceUID); ok {
			_ = h.DeleteFragment(extentUID, loc)
		}
	}
}

// PlaceExtent encodes data under policy, selects fragBytes-sized slots on
// targetTier-preferring devices from pool, and writes every fragment in
// parallel. On success it returns a fully-populated, not-yet-persisted
// Extent record (spec.md §4.3's place_extent); the caller is responsible
// for checksumming logical data and for persisting the record. sched, when
// non-nil, bounds in-flight fragment writes per device (spec.md §5's I/O
// scheduler); nil skips scheduling.
func PlaceExtent(sim *crashsim.Simulator, sched *concurrency.Scheduler, pool *device.Pool, data []byte, checksum string, policy codec.Policy, targetTier device.Tier) (*metadata.Extent, error) {
	fragments, err := codec.Encode(data, policy)
	if err != nil {
		return nil, err
	}

	available, _ := pool.Get()
	fragBytes := int64(0)
	for _, f := range fragments {
		if int64(len(f)) > fragBytes {
			fragBytes = int64(len(f))
		}
	}

	uids, err := SelectDisks(available, len(fragments), fragBytes, targetTier)
	if err != nil {
		return nil, err
	}

	extentUID := uuid.NewString()
	locs, err := writeFragmentsParallel(sim, sched, pool, extentUID, uids, fragments)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &metadata.Extent{
		UID:               extentUID,
		SizeBytes:         int64(len(data)),
		Checksum:          checksum,
		Policy:            policy,
		FragmentLocations: locs,
		AccessStats:       metadata.AccessStats{CreatedAt: now},
	}, nil
}
