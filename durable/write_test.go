package durable

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/redfs/redfs/crashsim"
	"github.com/redfs/redfs/rfserr"
	"github.com/stretchr/testify/require"
)

func TestWriteThenReadBack(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "record")

	require.NoError(t, Write(nil, target, []byte("v1"), 0o644))
	got, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "v1", string(got))

	require.NoError(t, Write(nil, target, []byte("v2"), 0o644))
	got, err = os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "v2", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no .tmp leftovers")
}

func TestWriteCrashBeforeRenameLeavesPriorStateVisible(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "record")
	require.NoError(t, Write(nil, target, []byte("version 1"), 0o644))

	sim := crashsim.New()
	sim.Arm(crashsim.BeforeRename, 1)

	err := Write(sim, target, []byte("version 2"), 0o644)
	require.Error(t, err)
	require.True(t, rfserr.Is(err, rfserr.SimulatedCrash))

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "version 1", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no .tmp leftovers after crash")
}

func TestWriteFragmentVerifiesReadBack(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "frag-0")
	require.NoError(t, WriteFragment(nil, target, []byte("fragment bytes"), 0o644))

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "fragment bytes", string(got))
}
