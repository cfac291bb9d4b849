package gc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/redfs/redfs/codec"
	"github.com/redfs/redfs/device"
	"github.com/redfs/redfs/metadata"
	"github.com/redfs/redfs/placement"
)

func newTestPool(t *testing.T, n int) *device.Pool {
	t.Helper()
	pool := device.NewPool(t.TempDir())
	pool.DisableFsIDCheck()
	for i := 0; i < n; i++ {
		uid := "disk-" + string(rune('a'+i))
		dir := t.TempDir()
		h, err := device.OpenDirectory(dir, uid, 8<<20, device.TierHot)
		require.NoError(t, err)
		require.NoError(t, pool.Add(h, dir))
	}
	return pool
}

func newTestCollector(t *testing.T, n int) (*Collector, *device.Pool, *metadata.Store) {
	t.Helper()
	pool := newTestPool(t, n)
	store, err := metadata.Open(t.TempDir(), 4)
	require.NoError(t, err)
	require.NoError(t, store.Bootstrap(nil))
	tracker, err := NewAgeTracker(t.TempDir())
	require.NoError(t, err)
	return NewCollector(store, pool, nil, tracker), pool, store
}

func TestDetectOrphansFindsUnreferencedFragment(t *testing.T) {
	c, pool, store := newTestCollector(t, 3)
	ext, err := placement.PlaceExtent(nil, nil, pool, []byte("referenced"), "cksum", codec.Replication(3), device.TierHot)
	require.NoError(t, err)
	require.NoError(t, store.SaveExtent(nil, ext))

	orphanUID := "orphan-extent"
	h, ok := pool.ByUID(ext.FragmentLocations[0].DeviceUID)
	require.True(t, ok)
	_, err = h.WriteFragment(nil, orphanUID, 0, []byte("stray"))
	require.NoError(t, err)

	orphans, err := c.DetectOrphans()
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	require.Equal(t, orphanUID, orphans[0].ExtentUID)
}

func TestDetectOrphansEmptyWhenFullyReferenced(t *testing.T) {
	c, pool, store := newTestCollector(t, 3)
	ext, err := placement.PlaceExtent(nil, nil, pool, []byte("all referenced"), "cksum", codec.Replication(3), device.TierHot)
	require.NoError(t, err)
	require.NoError(t, store.SaveExtent(nil, ext))

	orphans, err := c.DetectOrphans()
	require.NoError(t, err)
	require.Empty(t, orphans)
}

func TestCleanupOrphansRespectsMinAge(t *testing.T) {
	c, pool, store := newTestCollector(t, 3)
	ext, err := placement.PlaceExtent(nil, nil, pool, []byte("referenced"), "cksum", codec.Replication(3), device.TierHot)
	require.NoError(t, err)
	require.NoError(t, store.SaveExtent(nil, ext))

	h, ok := pool.ByUID(ext.FragmentLocations[0].DeviceUID)
	require.True(t, ok)
	for i := 0; i < 3; i++ {
		_, err = h.WriteFragment(nil, "stray-extent", i, []byte("x"))
		require.NoError(t, err)
	}

	results, err := c.CleanupOrphans(999999*time.Hour, false)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		require.False(t, r.Deleted)
	}

	results, err = c.CleanupOrphans(0, false)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		require.True(t, r.Deleted)
	}

	remaining, err := c.DetectOrphans()
	require.NoError(t, err)
	require.Empty(t, remaining)

	results, err = c.CleanupOrphans(0, false)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestCleanupOrphansDryRunNeverMutatesDisk(t *testing.T) {
	c, pool, store := newTestCollector(t, 3)
	ext, err := placement.PlaceExtent(nil, nil, pool, []byte("referenced"), "cksum", codec.Replication(3), device.TierHot)
	require.NoError(t, err)
	require.NoError(t, store.SaveExtent(nil, ext))

	h, ok := pool.ByUID(ext.FragmentLocations[0].DeviceUID)
	require.True(t, ok)
	_, err = h.WriteFragment(nil, "stray-extent", 0, []byte("x"))
	require.NoError(t, err)

	results, err := c.CleanupOrphans(0, true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].Eligible)
	require.False(t, results[0].Deleted)

	stillThere, err := c.DetectOrphans()
	require.NoError(t, err)
	require.Len(t, stillThere, 1)
}

func TestAgeTrackerMarkSeenAndForget(t *testing.T) {
	tr, err := NewAgeTracker(t.TempDir())
	require.NoError(t, err)

	_, ok := tr.FirstSeen("disk-a/ext-1/0")
	require.False(t, ok)

	now := time.Now()
	require.NoError(t, tr.MarkSeen("disk-a/ext-1/0", now))
	got, ok := tr.FirstSeen("disk-a/ext-1/0")
	require.True(t, ok)
	require.WithinDuration(t, now, got, time.Second)

	require.NoError(t, tr.Forget("disk-a/ext-1/0"))
	_, ok = tr.FirstSeen("disk-a/ext-1/0")
	require.False(t, ok)
}
