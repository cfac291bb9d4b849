package storage

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/redfs/redfs/codec"
	"github.com/redfs/redfs/config"
	"github.com/redfs/redfs/device"
	"github.com/redfs/redfs/metadata"
)

func newTestEngine(t *testing.T, n int) *Engine {
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

	store, err := metadata.Open(t.TempDir(), 4)
	require.NoError(t, err)
	require.NoError(t, store.Bootstrap(nil))

	cfg := config.Default()
	cfg.ExtentSize = 64
	cfg.ReplicationThreshold = 1 << 20
	cfg.ExtentLockShards = 8

	e, err := NewEngine(store, pool, cfg, nil, zerolog.Nop())
	require.NoError(t, err)
	return e
}

func TestCreateFileAndStat(t *testing.T) {
	e := newTestEngine(t, 3)
	n, err := e.CreateFile(metadata.RootInode, "a.txt")
	require.NoError(t, err)
	require.Equal(t, metadata.InodeFile, n.Type)

	got, err := e.Stat(n.Ino)
	require.NoError(t, err)
	require.Equal(t, "a.txt", got.Name)
}

func TestCreateFileRejectsDuplicateName(t *testing.T) {
	e := newTestEngine(t, 3)
	_, err := e.CreateFile(metadata.RootInode, "dup.txt")
	require.NoError(t, err)
	_, err = e.CreateFile(metadata.RootInode, "dup.txt")
	require.Error(t, err)
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	e := newTestEngine(t, 3)
	n, err := e.CreateFile(metadata.RootInode, "round.bin")
	require.NoError(t, err)

	data := make([]byte, 500)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, e.WriteFile(n.Ino, data))

	got, err := e.ReadFile(n.Ino)
	require.NoError(t, err)
	require.Equal(t, data, got)

	stat, err := e.Stat(n.Ino)
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), stat.Size)
}

func TestWriteEmptyFileProducesEmptyRead(t *testing.T) {
	e := newTestEngine(t, 3)
	n, err := e.CreateFile(metadata.RootInode, "empty.bin")
	require.NoError(t, err)
	require.NoError(t, e.WriteFile(n.Ino, nil))

	got, err := e.ReadFile(n.Ino)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestReadOnNeverWrittenFileReturnsEmpty(t *testing.T) {
	e := newTestEngine(t, 3)
	n, err := e.CreateFile(metadata.RootInode, "untouched.bin")
	require.NoError(t, err)

	got, err := e.ReadFile(n.Ino)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestListDirectoryAndFindChild(t *testing.T) {
	e := newTestEngine(t, 3)
	_, err := e.CreateFile(metadata.RootInode, "one.txt")
	require.NoError(t, err)
	_, err = e.CreateDir(metadata.RootInode, "sub")
	require.NoError(t, err)

	children, err := e.ListDirectory(metadata.RootInode)
	require.NoError(t, err)
	require.Len(t, children, 2)

	found, ok, err := e.FindChild(metadata.RootInode, "sub")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, metadata.InodeDir, found.Type)

	_, ok, err = e.FindChild(metadata.RootInode, "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteDirRejectsNonEmpty(t *testing.T) {
	e := newTestEngine(t, 3)
	dir, err := e.CreateDir(metadata.RootInode, "sub")
	require.NoError(t, err)
	_, err = e.CreateFile(dir.Ino, "child.txt")
	require.NoError(t, err)

	require.Error(t, e.DeleteDir(dir.Ino))
}

func TestDeleteFileRemovesExtentMap(t *testing.T) {
	e := newTestEngine(t, 3)
	n, err := e.CreateFile(metadata.RootInode, "todelete.bin")
	require.NoError(t, err)
	require.NoError(t, e.WriteFile(n.Ino, []byte("some bytes here")))

	require.NoError(t, e.DeleteFile(n.Ino))
	_, err = e.GetInode(n.Ino)
	require.Error(t, err)
}

func TestUpdateInodeAppliesMutationAndBumpsCtime(t *testing.T) {
	e := newTestEngine(t, 3)
	n, err := e.CreateFile(metadata.RootInode, "mode.txt")
	require.NoError(t, err)

	before := n.Ctime
	time.Sleep(time.Millisecond)
	updated, err := e.UpdateInode(n.Ino, func(i *metadata.Inode) { i.Mode = 0o600 })
	require.NoError(t, err)
	require.Equal(t, uint32(0o600), updated.Mode)
	require.True(t, updated.Ctime.After(before))
}

func TestChangeFileRedundancyRebundlesEveryExtent(t *testing.T) {
	e := newTestEngine(t, 6)
	n, err := e.CreateFile(metadata.RootInode, "big.bin")
	require.NoError(t, err)

	data := make([]byte, 200)
	require.NoError(t, e.WriteFile(n.Ino, data))

	newPolicy := codec.ErasureCoding(4, 2)
	require.NoError(t, e.ChangeFileRedundancy(n.Ino, newPolicy))

	em, err := e.store.LoadExtentMap(n.Ino)
	require.NoError(t, err)
	for _, uid := range em.ExtentUIDs {
		ext, err := e.store.LoadExtent(uid)
		require.NoError(t, err)
		require.True(t, ext.Policy.Equal(newPolicy))
	}

	got, err := e.ReadFile(n.Ino)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestPerformMountRebuildRepairsDegradedExtent(t *testing.T) {
	e := newTestEngine(t, 4)
	n, err := e.CreateFile(metadata.RootInode, "degraded.bin")
	require.NoError(t, err)
	require.NoError(t, e.WriteFile(n.Ino, []byte("redundant content")))

	em, err := e.store.LoadExtentMap(n.Ino)
	require.NoError(t, err)
	require.Len(t, em.ExtentUIDs, 1)
	ext, err := e.store.LoadExtent(em.ExtentUIDs[0])
	require.NoError(t, err)

	lost := ext.FragmentLocations[0]
	h, ok := e.pool.ByUID(lost.DeviceUID)
	require.True(t, ok)
	require.NoError(t, h.DeleteFragment(ext.UID, lost))

	results := e.PerformMountRebuild()
	require.Empty(t, results)

	got, err := e.ReadFile(n.Ino)
	require.NoError(t, err)
	require.Equal(t, []byte("redundant content"), got)
}

func TestCheckAccessPermissionBits(t *testing.T) {
	n := metadata.Inode{UID: 10, GID: 20, Mode: 0o640}
	require.True(t, CheckAccess(n, 10, 20, AccessRead))
	require.True(t, CheckAccess(n, 10, 20, AccessWrite))
	require.False(t, CheckAccess(n, 99, 20, AccessWrite))
	require.True(t, CheckAccess(n, 99, 20, AccessRead))
	require.False(t, CheckAccess(n, 99, 99, AccessRead))
	require.True(t, CheckAccess(n, 0, 0, AccessWrite))
}

func TestRecommendWritePolicyBySize(t *testing.T) {
	cfg := config.Default()
	cfg.ReplicationThreshold = 1024
	require.True(t, RecommendWritePolicy(cfg, 100).Equal(codec.Replication(3)))
	require.True(t, RecommendWritePolicy(cfg, 2048).Equal(codec.ErasureCoding(4, 2)))
}
