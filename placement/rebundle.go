package placement

import (
	"time"

	"github.com/redfs/redfs/codec"
	"github.com/redfs/redfs/concurrency"
	"github.com/redfs/redfs/crashsim"
	"github.com/redfs/redfs/device"
	"github.com/redfs/redfs/metadata"
)

// RebundleExtent re-encodes ext from its current policy to newPolicy, a
// staged transition logged on the extent itself (spec.md §4.3's
// rebundle_extent): pending, then in-progress, then committed or
// rolled-back. fragments holds the current, readable fragment bytes
// indexed by fragment index (as ext.Policy expects them). sched, when
// non-nil, bounds in-flight fragment writes per device (spec.md §5's I/O
// scheduler).
func RebundleExtent(sim *crashsim.Simulator, sched *concurrency.Scheduler, pool *device.Pool, ext *metadata.Extent, fragments [][]byte, newPolicy codec.Policy, targetTier device.Tier) error {
	oldPolicy := ext.Policy
	txIdx := ext.AppendTransition(oldPolicy, newPolicy)
	rollback := func() {
		ext.TransitionLog[txIdx].Status = metadata.TransitionRolledBack
	}

	newFragments, err := codec.Reencode(fragments, oldPolicy, newPolicy, ext.SizeBytes)
	if err != nil {
		rollback()
		return err
	}

	ext.TransitionLog[txIdx].Status = metadata.TransitionInProgress

	oldLocs := ext.FragmentLocations
	for _, loc := range oldLocs {
		if h, ok := pool.ByUID(loc.DeviceUID); ok {
			_ = h.DeleteFragment(ext.UID, loc)
		}
	}

	available, _ := pool.Get()
	fragBytes := int64(0)
	for _, f := range newFragments {
		if int64(len(f)) > fragBytes {
			fragBytes = int64(len(f))
		}
	}
	uids, err := SelectDisks(available, len(newFragments), fragBytes, targetTier)
	if err != nil {
		rollback()
		return err
	}

	newLocs, err := writeFragmentsParallel(sim, sched, pool, ext.UID, uids, newFragments)
	if err != nil {
		rollback()
		return err
	}

	ext.FragmentLocations = newLocs
	ext.Policy = newPolicy
	ext.PreviousPolicy = &oldPolicy
	ext.LastPolicyChange = time.Now()
	ext.TransitionLog[txIdx].Status = metadata.TransitionCommitted
	return nil
}
