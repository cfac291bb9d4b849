// Package placement implements the placement engine (spec.md §4.3):
// device selection, parallel fragment placement, rebuild of missing
// fragments, and staged redundancy-policy transitions. Grounded on the
// teacher's ec/ec.go for the parallel worker-per-fragment shape and on
// mirror/dpromote.go for the drain-migration walk, generalized from
// HTTP-cluster xactions to direct device.Handle calls.
package placement

import (
	"sort"

	"github.com/redfs/redfs/device"
	"github.com/redfs/redfs/rfserr"
)

// SelectDisks chooses count distinct device UIDs for a new fragment set of
// fragBytes each, preferring targetTier (spec.md §4.3).
//
// Candidates must be healthy and have at least fragBytes free. If fewer
// than count candidates match targetTier, the tier constraint is relaxed
// while keeping the healthy+space constraints. Candidates are ordered by
// descending free space and the top count are selected.
func SelectDisks(disks []device.Handle, count int, fragBytes int64, targetTier device.Tier) ([]string, error) {
	usable := make([]device.Handle, 0, len(disks))
	for _, d := range disks {
		if d.Health() == device.HealthHealthy && d.FreeBytes() >= fragBytes {
			usable = append(usable, d)
		}
	}

	inTier := make([]device.Handle, 0, len(usable))
	for _, d := range usable {
		if d.Tier() == targetTier {
			inTier = append(inTier, d)
		}
	}

	pool := inTier
	if len(pool) < count {
		pool = usable
	}

	sort.Slice(pool, func(i, j int) bool { return pool[i].FreeBytes() > pool[j].FreeBytes() })

	if len(pool) < count {
		return nil, rfserr.NewInsufficientDevices(count, len(pool), string(targetTier))
	}

	uids := make([]string, count)
	for i := 0; i < count; i++ {
		uids[i] = pool[i].UID()
	}
	return uids, nil
}

// excludeUIDs returns disks minus any handle whose UID is in skip.
func excludeUIDs(disks []device.Handle, skip map[string]bool) []device.Handle {
	out := make([]device.Handle, 0, len(disks))
	for _, d := range disks {
		if !skip[d.UID()] {
			out = append(out, d)
		}
	}
	return out
}
