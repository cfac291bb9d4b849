// Package durable implements the atomic-write protocol shared by the
// metadata store and directory devices: serialize, write to a ".tmp"
// sibling, fsync, rename into place, fsync the containing directory.
// Guarantees that either the prior or the new content is visible after any
// crash (spec.md §4.2).
package durable

import (
	"os"
	"path/filepath"

	"github.com/redfs/redfs/crashsim"
	"github.com/redfs/redfs/rfserr"
)

// Write atomically replaces target's content with data. sim may be nil.
func Write(sim *crashsim.Simulator, target string, data []byte, perm os.FileMode) error {
	tmp := target + ".tmp"

	if err := sim.Check(crashsim.BeforeTempWrite); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return rfserr.NewIoError("write-temp", tmp, err)
	}
	if err := sim.Check(crashsim.AfterTempWrite); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := fsyncPath(tmp); err != nil {
		os.Remove(tmp)
		return rfserr.NewIoError("fsync-temp", tmp, err)
	}
	if err := sim.Check(crashsim.BeforeRename); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return rfserr.NewIoError("rename", target, err)
	}
	if err := sim.Check(crashsim.AfterRename); err != nil {
		return err
	}
	if err := fsyncDir(filepath.Dir(target)); err != nil {
		return rfserr.NewIoError("fsync-dir", filepath.Dir(target), err)
	}
	return nil
}

// WriteFragment is the per-fragment variant used by directory devices: it
// additionally reads the file back and compares, per spec.md §4.3's
// verification step. A scoped guard removes the ".tmp" file on any error
// path taken before the rename commits. sim may be nil.
func WriteFragment(sim *crashsim.Simulator, target string, data []byte, perm os.FileMode) (err error) {
	tmp := target + ".tmp"
	guard := true
	defer func() {
		if guard {
			os.Remove(tmp)
		}
	}()

	if err = sim.Check(crashsim.BeforeFragmentWrite); err != nil {
		return err
	}
	if err = os.WriteFile(tmp, data, perm); err != nil {
		return rfserr.NewIoError("write-temp", tmp, err)
	}
	if err = fsyncPath(tmp); err != nil {
		return rfserr.NewIoError("fsync-temp", tmp, err)
	}
	if err = os.Rename(tmp, target); err != nil {
		return rfserr.NewIoError("rename", target, err)
	}
	guard = false
	if err = sim.Check(crashsim.AfterFragmentWrite); err != nil {
		return err
	}
	if err = fsyncDir(filepath.Dir(target)); err != nil {
		return rfserr.NewIoError("fsync-dir", filepath.Dir(target), err)
	}

	back, err := os.ReadFile(target)
	if err != nil {
		return rfserr.NewIoError("read-back", target, err)
	}
	if len(back) != len(data) {
		return rfserr.NewIoError("verify", target, os.ErrInvalid)
	}
	for i := range data {
		if back[i] != data[i] {
			return rfserr.NewIoError("verify", target, os.ErrInvalid)
		}
	}
	return nil
}

func fsyncPath(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

func fsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	// Directory fsync is not supported on every platform; a failure here
	// is non-fatal for correctness on those platforms but is surfaced to
	// the caller so callers on platforms where it matters can treat it as
	// fatal per spec.md §4.2 ("(platform permitting) fsync the containing
	// directory").
	return d.Sync()
}
