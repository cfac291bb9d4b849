package device

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/redfs/redfs/crashsim"
	"github.com/redfs/redfs/rfserr"
	"github.com/stretchr/testify/require"
)

func TestOpenDirectoryInitializesThenReopens(t *testing.T) {
	dir := t.TempDir()

	d, err := OpenDirectory(dir, "disk-1", 1<<20, TierHot)
	require.NoError(t, err)
	require.Equal(t, "disk-1", d.UID())
	require.Equal(t, KindDirectory, d.Kind())
	require.Equal(t, int64(0), d.UsedBytes())
	require.FileExists(t, filepath.Join(dir, "disk.json"))

	reopened, err := OpenDirectory(dir, "disk-1", 1<<20, TierHot)
	require.NoError(t, err)
	require.Equal(t, "disk-1", reopened.UID())
	require.Equal(t, int64(1<<20), reopened.CapacityBytes())
}

func TestDirectoryWriteReadDeleteFragment(t *testing.T) {
	dir := t.TempDir()
	d, err := OpenDirectory(dir, "disk-1", 1<<20, TierHot)
	require.NoError(t, err)

	loc, err := d.WriteFragment(nil, "ext-a", 2, []byte("payload"))
	require.NoError(t, err)
	require.Equal(t, "disk-1", loc.DeviceUID)
	require.Equal(t, 2, loc.Index)
	require.Equal(t, int64(len("payload")), d.UsedBytes())
	require.True(t, d.HasFragment("ext-a", 2))

	got, err := d.ReadFragment("ext-a", loc)
	require.NoError(t, err)
	require.Equal(t, "payload", string(got))

	require.NoError(t, d.DeleteFragment("ext-a", loc))
	require.False(t, d.HasFragment("ext-a", 2))
	require.Equal(t, int64(0), d.UsedBytes())

	require.NoError(t, d.DeleteFragment("ext-a", loc), "deleting an absent fragment is idempotent")
}

func TestDirectoryReadMissingFragment(t *testing.T) {
	dir := t.TempDir()
	d, err := OpenDirectory(dir, "disk-1", 1<<20, TierHot)
	require.NoError(t, err)

	_, err = d.ReadFragment("nope", FragmentLocation{DeviceUID: "disk-1", Index: 0})
	require.True(t, rfserr.Is(err, rfserr.NotFound))
}

func TestDirectoryListFragmentsSkipsTmp(t *testing.T) {
	dir := t.TempDir()
	d, err := OpenDirectory(dir, "disk-1", 1<<20, TierHot)
	require.NoError(t, err)

	_, err = d.WriteFragment(nil, "ext-a", 0, []byte("x"))
	require.NoError(t, err)
	_, err = d.WriteFragment(nil, "ext-b", 1, []byte("y"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fragments", "ext-c-0.frag.tmp"), []byte("z"), 0o644))

	refs, err := d.ListFragments()
	require.NoError(t, err)
	require.Len(t, refs, 2)
}

func TestDirectorySetHealthPersists(t *testing.T) {
	dir := t.TempDir()
	d, err := OpenDirectory(dir, "disk-1", 1<<20, TierHot)
	require.NoError(t, err)

	require.NoError(t, d.SetHealth(HealthDegraded))
	reopened, err := OpenDirectory(dir, "disk-1", 1<<20, TierHot)
	require.NoError(t, err)
	require.Equal(t, HealthDegraded, reopened.Health())
}

func TestDirectoryWriteFragmentCrashLeavesNoTmp(t *testing.T) {
	dir := t.TempDir()
	d, err := OpenDirectory(dir, "disk-1", 1<<20, TierHot)
	require.NoError(t, err)

	sim := crashsim.New()
	sim.Arm(crashsim.BeforeFragmentWrite, 1)

	_, err = d.WriteFragment(sim, "ext-a", 0, []byte("payload"))
	require.Error(t, err)
	require.False(t, d.HasFragment("ext-a", 0))

	entries, err := os.ReadDir(filepath.Join(dir, "fragments"))
	require.NoError(t, err)
	require.Len(t, entries, 0)
}
