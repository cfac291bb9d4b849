package placement

import (
	"github.com/redfs/redfs/crashsim"
	"github.com/redfs/redfs/device"
	"github.com/redfs/redfs/metadata"
	"github.com/redfs/redfs/rfserr"
)

// DrainResult reports one extent's migration outcome during a device drain.
type DrainResult struct {
	ExtentUID string
	Err       error
}

// DrainDevice walks every fragment still physically present on deviceUID
// (expected to already be marked draining in pool) and migrates it onto
// another device via RebuildExtent, which removes draining-hosted
// locations once their replacement is durable. Grounded on the teacher's
// mirror.XactDirPromote.walk (mirror/dpromote.go): a directory walk that
// reports per-entry failures without aborting the sweep, generalized here
// from a filesystem directory to a device's fragment listing.
func DrainDevice(sim *crashsim.Simulator, store *metadata.Store, pool *device.Pool, deviceUID string, targetTier device.Tier) []DrainResult {
	h, ok := pool.ByUID(deviceUID)
	if !ok {
		return []DrainResult{{Err: rfserr.NewNotFound("device " + deviceUID)}}
	}

	refs, err := h.ListFragments()
	if err != nil {
		return []DrainResult{{Err: err}}
	}

	results := make([]DrainResult, 0, len(refs))
	for _, ref := range refs {
		results = append(results, drainOneExtent(sim, store, pool, ref.ExtentUID, targetTier))
	}
	return results
}

func drainOneExtent(sim *crashsim.Simulator, store *metadata.Store, pool *device.Pool, extentUID string, targetTier device.Tier) DrainResult {
	ext, err := store.LoadExtent(extentUID)
	if err != nil {
		return DrainResult{ExtentUID: extentUID, Err: err}
	}

	present := make([][]byte, ext.Policy.FragmentCount())
	for _, loc := range ext.FragmentLocations {
		src, ok := pool.ByUID(loc.DeviceUID)
		if !ok {
			continue
		}
		data, err := src.ReadFragment(ext.UID, loc)
		if err == nil {
			present[loc.Index] = data
		}
	}

	if err := RebuildExtent(sim, nil, pool, &ext, present, targetTier); err != nil {
		return DrainResult{ExtentUID: extentUID, Err: err}
	}
	if err := store.SaveExtent(sim, &ext); err != nil {
		return DrainResult{ExtentUID: extentUID, Err: err}
	}
	return DrainResult{ExtentUID: extentUID}
}
