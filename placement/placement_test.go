package placement

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/redfs/redfs/codec"
	"github.com/redfs/redfs/crashsim"
	"github.com/redfs/redfs/device"
	"github.com/redfs/redfs/metadata"
)

func newTestPool(t *testing.T, n int, tier device.Tier) (*device.Pool, []string) {
	t.Helper()
	pool := device.NewPool(t.TempDir())
	pool.DisableFsIDCheck()
	uids := make([]string, n)
	for i := 0; i < n; i++ {
		uid := "disk-" + string(rune('a'+i))
		dir := t.TempDir()
		h, err := device.OpenDirectory(dir, uid, 1<<20, tier)
		require.NoError(t, err)
		require.NoError(t, pool.Add(h, dir))
		uids[i] = uid
	}
	return pool, uids
}

func TestSelectDisksOrdersByDescendingFreeSpace(t *testing.T) {
	disks := []device.Handle{
		fakeHandle{uid: "d1", health: device.HealthHealthy, tier: device.TierHot, free: 100},
		fakeHandle{uid: "d2", health: device.HealthHealthy, tier: device.TierHot, free: 500},
		fakeHandle{uid: "d3", health: device.HealthHealthy, tier: device.TierHot, free: 300},
	}
	uids, err := SelectDisks(disks, 2, 50, device.TierHot)
	require.NoError(t, err)
	require.Equal(t, []string{"d2", "d3"}, uids)
}

func TestSelectDisksRelaxesTierWhenShort(t *testing.T) {
	disks := []device.Handle{
		fakeHandle{uid: "d1", health: device.HealthHealthy, tier: device.TierHot, free: 100},
		fakeHandle{uid: "d2", health: device.HealthHealthy, tier: device.TierCold, free: 500},
	}
	uids, err := SelectDisks(disks, 2, 50, device.TierHot)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"d1", "d2"}, uids)
}

func TestSelectDisksFailsWhenShortEvenAfterRelax(t *testing.T) {
	disks := []device.Handle{
		fakeHandle{uid: "d1", health: device.HealthHealthy, tier: device.TierHot, free: 100},
	}
	_, err := SelectDisks(disks, 2, 50, device.TierHot)
	require.Error(t, err)
}

func TestSelectDisksExcludesFailedAndUndersized(t *testing.T) {
	disks := []device.Handle{
		fakeHandle{uid: "d1", health: device.HealthFailed, tier: device.TierHot, free: 1000},
		fakeHandle{uid: "d2", health: device.HealthHealthy, tier: device.TierHot, free: 10},
		fakeHandle{uid: "d3", health: device.HealthHealthy, tier: device.TierHot, free: 1000},
	}
	uids, err := SelectDisks(disks, 1, 500, device.TierHot)
	require.NoError(t, err)
	require.Equal(t, []string{"d3"}, uids)
}

func TestPlaceExtentReplicationWritesAllCopies(t *testing.T) {
	pool, _ := newTestPool(t, 3, device.TierHot)
	data := []byte("hello world")
	ext, err := PlaceExtent(nil, nil, pool, data, "cksum", codec.Replication(3), device.TierHot)
	require.NoError(t, err)
	require.Len(t, ext.FragmentLocations, 3)
	require.True(t, ext.DistinctDeviceUIDs())

	for _, loc := range ext.FragmentLocations {
		h, ok := pool.ByUID(loc.DeviceUID)
		require.True(t, ok)
		got, err := h.ReadFragment(ext.UID, loc)
		require.NoError(t, err)
		require.Equal(t, data, got)
	}
}

func TestPlaceExtentErasureCoding(t *testing.T) {
	pool, _ := newTestPool(t, 6, device.TierHot)
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i)
	}
	ext, err := PlaceExtent(nil, nil, pool, data, "cksum", codec.ErasureCoding(4, 2), device.TierHot)
	require.NoError(t, err)
	require.Len(t, ext.FragmentLocations, 6)
}

func TestPlaceExtentRollsBackOnInsufficientDevices(t *testing.T) {
	pool, _ := newTestPool(t, 2, device.TierHot)
	data := []byte("x")
	_, err := PlaceExtent(nil, nil, pool, data, "cksum", codec.Replication(3), device.TierHot)
	require.Error(t, err)

	available, _ := pool.Get()
	for _, h := range available {
		refs, err := h.ListFragments()
		require.NoError(t, err)
		require.Empty(t, refs, "a failed placement must leave no orphaned fragments behind")
	}
}

func TestRebuildExtentIsNoOpWhenNothingMissing(t *testing.T) {
	pool, _ := newTestPool(t, 3, device.TierHot)
	data := []byte("abc")
	ext, err := PlaceExtent(nil, nil, pool, data, "cksum", codec.Replication(3), device.TierHot)
	require.NoError(t, err)
	before := append([]device.FragmentLocation{}, ext.FragmentLocations...)

	present := make([][]byte, 3)
	for _, loc := range ext.FragmentLocations {
		present[loc.Index] = data
	}
	require.NoError(t, RebuildExtent(nil, nil, pool, ext, present, device.TierHot))
	require.ElementsMatch(t, before, ext.FragmentLocations)
}

func TestRebuildExtentReplacesMissingFragment(t *testing.T) {
	pool, _ := newTestPool(t, 7, device.TierHot)
	data := make([]byte, 4096)
	ext, err := PlaceExtent(nil, nil, pool, data, "cksum", codec.ErasureCoding(4, 2), device.TierHot)
	require.NoError(t, err)

	lostUID := ext.FragmentLocations[0].DeviceUID
	lostIndex := ext.FragmentLocations[0].Index

	present := make([][]byte, 6)
	for _, loc := range ext.FragmentLocations {
		if loc.DeviceUID == lostUID {
			continue
		}
		h, ok := pool.ByUID(loc.DeviceUID)
		require.True(t, ok)
		b, err := h.ReadFragment(ext.UID, loc)
		require.NoError(t, err)
		present[loc.Index] = b
	}

	require.NoError(t, RebuildExtent(nil, nil, pool, ext, present, device.TierHot))
	require.Len(t, ext.FragmentLocations, 6)
	require.True(t, ext.DistinctDeviceUIDs())

	var newLoc device.FragmentLocation
	for _, loc := range ext.FragmentLocations {
		if loc.Index == lostIndex {
			newLoc = loc
		}
	}
	require.NotEqual(t, lostUID, newLoc.DeviceUID, "rebuild must not put the replacement back on the same device")
}

func TestRebuildExtentMigratesOffDrainingDevice(t *testing.T) {
	pool, uids := newTestPool(t, 4, device.TierHot)
	ext, err := PlaceExtent(nil, nil, pool, []byte("replicated payload"), "cksum", codec.Replication(3), device.TierHot)
	require.NoError(t, err)

	drainUID := ext.FragmentLocations[0].DeviceUID
	ok, err := pool.Disable(drainUID)
	require.NoError(t, err)
	require.True(t, ok)

	present := make([][]byte, 3)
	for _, loc := range ext.FragmentLocations {
		h, ok := pool.ByUID(loc.DeviceUID)
		require.True(t, ok)
		b, err := h.ReadFragment(ext.UID, loc)
		require.NoError(t, err)
		present[loc.Index] = b
	}

	require.NoError(t, RebuildExtent(nil, nil, pool, ext, present, device.TierHot))
	for _, loc := range ext.FragmentLocations {
		require.NotEqual(t, drainUID, loc.DeviceUID)
	}

	drainHandle, ok := pool.ByUID(drainUID)
	require.True(t, ok)
	refs, err := drainHandle.ListFragments()
	require.NoError(t, err)
	require.Empty(t, refs, "migrated fragment must be removed from the draining device")
	_ = uids
}

func TestRebundleExtentTransitionsPolicyAndCommits(t *testing.T) {
	pool, _ := newTestPool(t, 6, device.TierHot)
	data := make([]byte, 4096)
	ext, err := PlaceExtent(nil, nil, pool, data, "cksum", codec.Replication(3), device.TierHot)
	require.NoError(t, err)

	fragments := make([][]byte, ext.Policy.FragmentCount())
	for _, loc := range ext.FragmentLocations {
		h, ok := pool.ByUID(loc.DeviceUID)
		require.True(t, ok)
		b, err := h.ReadFragment(ext.UID, loc)
		require.NoError(t, err)
		fragments[loc.Index] = b
	}

	newPolicy := codec.ErasureCoding(4, 2)
	require.NoError(t, RebundleExtent(nil, nil, pool, ext, fragments, newPolicy, device.TierHot))

	require.True(t, ext.Policy.Equal(newPolicy))
	require.NotNil(t, ext.PreviousPolicy)
	require.True(t, ext.PreviousPolicy.Equal(codec.Replication(3)))
	require.Len(t, ext.FragmentLocations, 6)
	require.Equal(t, metadata.TransitionCommitted, ext.TransitionLog[0].Status)
}

func TestDrainDeviceMigratesAllFragments(t *testing.T) {
	pool, _ := newTestPool(t, 4, device.TierHot)
	store, err := metadata.Open(t.TempDir(), 4)
	require.NoError(t, err)
	require.NoError(t, store.Bootstrap(nil))

	ext, err := PlaceExtent(nil, nil, pool, []byte("drain me"), "cksum", codec.Replication(3), device.TierHot)
	require.NoError(t, err)
	require.NoError(t, store.SaveExtent(nil, ext))

	drainUID := ext.FragmentLocations[0].DeviceUID
	_, err = pool.Disable(drainUID)
	require.NoError(t, err)

	results := DrainDevice(nil, store, pool, drainUID, device.TierHot)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	reloaded, err := store.LoadExtent(ext.UID)
	require.NoError(t, err)
	for _, loc := range reloaded.FragmentLocations {
		require.NotEqual(t, drainUID, loc.DeviceUID)
	}
}

// fakeHandle is a minimal device.Handle stub for exercising SelectDisks'
// filtering logic without touching the filesystem.
type fakeHandle struct {
	uid    string
	health device.Health
	tier   device.Tier
	free   int64
}

func (f fakeHandle) UID() string                   { return f.uid }
func (f fakeHandle) Kind() device.Kind             { return device.KindDirectory }
func (f fakeHandle) Health() device.Health         { return f.health }
func (f fakeHandle) SetHealth(device.Health) error { return nil }
func (f fakeHandle) Tier() device.Tier             { return f.tier }
func (f fakeHandle) CapacityBytes() int64          { return f.free }
func (f fakeHandle) UsedBytes() int64              { return 0 }
func (f fakeHandle) FreeBytes() int64              { return f.free }
func (f fakeHandle) WriteFragment(*crashsim.Simulator, string, int, []byte) (device.FragmentLocation, error) {
	return device.FragmentLocation{}, nil
}
func (f fakeHandle) ReadFragment(string, device.FragmentLocation) ([]byte, error) { return nil, nil }
func (f fakeHandle) DeleteFragment(string, device.FragmentLocation) error         { return nil }
func (f fakeHandle) HasFragment(string, int) bool                                 { return false }
func (f fakeHandle) ListFragments() ([]device.FragmentRef, error)                 { return nil, nil }
func (f fakeHandle) Close() error                                                 { return nil }
