package scrub

import (
	"encoding/hex"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/redfs/redfs/codec"
	"github.com/redfs/redfs/concurrency"
	"github.com/redfs/redfs/config"
	"github.com/redfs/redfs/device"
	"github.com/redfs/redfs/metadata"
	"github.com/redfs/redfs/placement"
)

func checksumHex(t *testing.T, data []byte) string {
	t.Helper()
	sum := codec.Checksum(data)
	return hex.EncodeToString(sum[:])
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.ScrubSchedule = config.ScrubManual
	return cfg
}

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

func newTestScrubber(t *testing.T, n int) (*Scrubber, *device.Pool, *metadata.Store) {
	t.Helper()
	pool := newTestPool(t, n)
	store, err := metadata.Open(t.TempDir(), 4)
	require.NoError(t, err)
	require.NoError(t, store.Bootstrap(nil))
	locks := concurrency.NewExtentLocks(8)
	return NewScrubber(store, pool, nil, locks, testConfig(), zerolog.Nop()), pool, store
}

func TestScrubExtentReportsHealthy(t *testing.T) {
	s, pool, store := newTestScrubber(t, 3)
	ext, err := placement.PlaceExtent(nil, nil, pool, []byte("all good"), "cksum", codec.Replication(3), device.TierHot)
	require.NoError(t, err)
	ext.Checksum = checksumHex(t, []byte("all good"))
	require.NoError(t, store.SaveExtent(nil, ext))

	res := s.ScrubExtent(ext.UID, false)
	require.Equal(t, Healthy, res.Status)
	require.Equal(t, 3, res.Present)
}

func TestScrubExtentDetectsDegradedAndRepairs(t *testing.T) {
	s, pool, store := newTestScrubber(t, 4)
	ext, err := placement.PlaceExtent(nil, nil, pool, []byte("degrade me"), "cksum", codec.Replication(3), device.TierHot)
	require.NoError(t, err)
	ext.Checksum = checksumHex(t, []byte("degrade me"))
	require.NoError(t, store.SaveExtent(nil, ext))

	lost := ext.FragmentLocations[0]
	h, ok := pool.ByUID(lost.DeviceUID)
	require.True(t, ok)
	require.NoError(t, h.DeleteFragment(ext.UID, lost))

	res := s.ScrubExtent(ext.UID, false)
	require.Equal(t, Degraded, res.Status)
	require.Equal(t, 2, res.Present)

	res = s.ScrubExtent(ext.UID, true)
	require.Equal(t, Repaired, res.Status)

	reloaded, err := store.LoadExtent(ext.UID)
	require.NoError(t, err)
	require.Len(t, reloaded.FragmentLocations, 3)
}

func TestScrubExtentUnrecoverableBelowMinimum(t *testing.T) {
	s, pool, store := newTestScrubber(t, 6)
	ext, err := placement.PlaceExtent(nil, nil, pool, make([]byte, 4096), "cksum", codec.ErasureCoding(4, 2), device.TierHot)
	require.NoError(t, err)
	ext.Checksum = checksumHex(t, make([]byte, 4096))
	require.NoError(t, store.SaveExtent(nil, ext))

	for i := 0; i < 3; i++ {
		loc := ext.FragmentLocations[i]
		h, ok := pool.ByUID(loc.DeviceUID)
		require.True(t, ok)
		require.NoError(t, h.DeleteFragment(ext.UID, loc))
	}

	res := s.ScrubExtent(ext.UID, true)
	require.Equal(t, Unrecoverable, res.Status)
}

func TestScrubExtentUnrecoverableOnChecksumMismatch(t *testing.T) {
	s, pool, store := newTestScrubber(t, 3)
	ext, err := placement.PlaceExtent(nil, nil, pool, []byte("tampered"), "cksum", codec.Replication(3), device.TierHot)
	require.NoError(t, err)
	ext.Checksum = "deadbeef"
	require.NoError(t, store.SaveExtent(nil, ext))

	res := s.ScrubExtent(ext.UID, false)
	require.Equal(t, Unrecoverable, res.Status)
}

func TestScrubAllSweepsEveryExtent(t *testing.T) {
	s, pool, store := newTestScrubber(t, 3)
	for i := 0; i < 3; i++ {
		ext, err := placement.PlaceExtent(nil, nil, pool, []byte("payload"), "cksum", codec.Replication(3), device.TierHot)
		require.NoError(t, err)
		ext.Checksum = checksumHex(t, []byte("payload"))
		require.NoError(t, store.SaveExtent(nil, ext))
	}

	results, err := s.ScrubAll(false)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		require.Equal(t, Healthy, r.Status)
	}
}

func TestHistoryRecordAndGet(t *testing.T) {
	h, err := NewHistory(t.TempDir())
	require.NoError(t, err)

	sum := Summary{ID: "run-1", Healthy: 2, Degraded: 1, TotalCount: 3}
	require.NoError(t, h.Record(sum))

	got, err := h.Get("run-1")
	require.NoError(t, err)
	require.Equal(t, 2, got.Healthy)
	require.Equal(t, 1, got.Degraded)
}

func TestDaemonStartStopTransitionsState(t *testing.T) {
	s, _, _ := newTestScrubber(t, 3)
	hist, err := NewHistory(t.TempDir())
	require.NoError(t, err)
	cfg := testConfig()

	d := NewDaemon(s, hist, cfg, false)
	require.Equal(t, StateStopped, d.Status())
	d.Start()
	require.Equal(t, StateRunning, d.Status())
	d.Pause()
	require.Equal(t, StatePaused, d.Status())
	d.Resume()
	require.Equal(t, StateRunning, d.Status())
	d.Stop()
	require.Equal(t, StateStopped, d.Status())
}
