package metadata

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/redfs/redfs/crashsim"
	"github.com/redfs/redfs/durable"
	"github.com/redfs/redfs/rfserr"
)

// MetadataRoot is the versioned pool-wide root record (spec.md §3/§4.2).
// roots/current names the latest committed version by filename.
type MetadataRoot struct {
	Version        uint64        `json:"version"`
	Timestamp      time.Time     `json:"timestamp"`
	NextInode      uint64        `json:"next_inode"`
	InodeCount     int64         `json:"inode_count"`
	ExtentCount    int64         `json:"extent_count"`
	ExtentMapCount int64         `json:"extent_map_count"`
	State          RootState     `json:"state"`
	Format         VersionTriple `json:"format"`

	// StateChecksum is the "overall state-checksum" from the data model:
	// non-empty iff State is Committed (spec.md §3 invariant 6).
	StateChecksum string `json:"state_checksum"`
}

func (r MetadataRoot) marshal() ([]byte, error) {
	known := map[string]jsoniter.RawMessage{
		"version":          encodeField(r.Version),
		"timestamp":        encodeField(r.Timestamp),
		"next_inode":       encodeField(r.NextInode),
		"inode_count":      encodeField(r.InodeCount),
		"extent_count":     encodeField(r.ExtentCount),
		"extent_map_count": encodeField(r.ExtentMapCount),
		"state":            encodeField(r.State),
		"format":           encodeField(r.Format),
	}
	return marshalWithChecksum(known, nil, "state_checksum")
}

func unmarshalRoot(raw []byte) (MetadataRoot, error) {
	m, err := verifyRootChecksum(raw)
	if err != nil {
		return MetadataRoot{}, err
	}
	var r MetadataRoot
	decodeField(m["version"], &r.Version)
	decodeField(m["timestamp"], &r.Timestamp)
	decodeField(m["next_inode"], &r.NextInode)
	decodeField(m["inode_count"], &r.InodeCount)
	decodeField(m["extent_count"], &r.ExtentCount)
	decodeField(m["extent_map_count"], &r.ExtentMapCount)
	decodeField(m["state"], &r.State)
	decodeField(m["format"], &r.Format)
	decodeField(m["state_checksum"], &r.StateChecksum)
	return r, nil
}

// verifyRootChecksum enforces the digest on every root it is given,
// whatever its state. Only committed roots are ever written to disk
// (pending roots live purely in memory inside a RootTxn), so every on-disk
// root is expected to carry a valid checksum.
func verifyRootChecksum(raw []byte) (map[string]jsoniter.RawMessage, error) {
	return verifyAndSplit(raw, "state_checksum", "root")
}

func newRootTxnRoot(prev MetadataRoot) MetadataRoot {
	next := prev
	next.Version = prev.Version + 1
	next.Timestamp = time.Now()
	next.State = RootPending
	next.StateChecksum = ""
	next.Format = CurrentFormatVersion
	return next
}

// RootTxn exclusively owns a pending root until Commit or Abort; a dropped
// transaction without either call is simply never observed on disk, since
// nothing is persisted until Commit (spec.md §3's ownership note).
type RootTxn struct {
	poolRoot string
	sim      *crashsim.Simulator
	root     MetadataRoot
	keep     int
	release  func()
	done     bool
}

// Root exposes the pending root for field updates before Commit.
func (t *RootTxn) Root() *MetadataRoot { return &t.root }

// Commit writes the pending root as root.<version>, atomically repoints
// roots/current, and garbage-collects older committed versions beyond the
// retention count the transaction was opened with.
func (t *RootTxn) Commit() error {
	if t.done {
		return rfserr.New(rfserr.Unsupported, "root transaction already finished")
	}
	t.done = true
	defer t.release()

	t.root.State = RootCommitted
	raw, err := t.root.marshal()
	if err != nil {
		return err
	}
	reloaded, err := unmarshalRoot(raw)
	if err != nil {
		return err
	}
	t.root.StateChecksum = reloaded.StateChecksum

	path := rootVersionPath(t.poolRoot, t.root.Version)
	if err := durable.Write(t.sim, path, raw, 0o644); err != nil {
		return err
	}
	if err := durable.Write(t.sim, currentRootPath(t.poolRoot), []byte(filepath.Base(path)), 0o644); err != nil {
		return err
	}
	return gcRoots(t.poolRoot, t.keep)
}

// Abort discards the pending root; nothing was ever written, so this is a
// no-op beyond releasing the transaction slot.
func (t *RootTxn) Abort() {
	if t.done {
		return
	}
	t.done = true
	t.release()
}

// loadCurrentRoot reads roots/current and the root file it names. If
// current is missing or names an invalid/corrupted root, the
// highest-numbered valid committed root is selected instead (spec.md
// §4.2's recovery rule). Returns the zero root with Version 0 if no root
// exists at all (a freshly initialized pool).
func loadCurrentRoot(poolRoot string) (MetadataRoot, error) {
	if name, err := os.ReadFile(currentRootPath(poolRoot)); err == nil {
		path := filepath.Join(rootsDir(poolRoot), strings.TrimSpace(string(name)))
		if raw, err := os.ReadFile(path); err == nil {
			if r, err := unmarshalRoot(raw); err == nil && r.State == RootCommitted && r.StateChecksum != "" {
				return r, nil
			}
		}
	}

	entries, err := os.ReadDir(rootsDir(poolRoot))
	if err != nil {
		if os.IsNotExist(err) {
			return MetadataRoot{Version: 0, State: RootCommitted, Format: CurrentFormatVersion}, nil
		}
		return MetadataRoot{}, rfserr.NewIoError("readdir", rootsDir(poolRoot), err)
	}

	var versions []uint64
	for _, e := range entries {
		if e.IsDir() || e.Name() == "current" || !strings.HasPrefix(e.Name(), "root.") {
			continue
		}
		v, err := strconv.ParseUint(strings.TrimPrefix(e.Name(), "root."), 10, 64)
		if err == nil {
			versions = append(versions, v)
		}
	}
	sort.Sort(sort.Reverse(uint64Slice(versions)))
	for _, v := range versions {
		raw, err := os.ReadFile(rootVersionPath(poolRoot, v))
		if err != nil {
			continue
		}
		r, err := unmarshalRoot(raw)
		if err == nil && r.State == RootCommitted && r.StateChecksum != "" {
			return r, nil
		}
	}
	return MetadataRoot{Version: 0, State: RootCommitted, Format: CurrentFormatVersion}, nil
}

// gcRoots retains only the keep most recent committed root files.
func gcRoots(poolRoot string, keep int) error {
	if keep <= 0 {
		return nil
	}
	entries, err := os.ReadDir(rootsDir(poolRoot))
	if err != nil {
		return nil
	}
	var versions []uint64
	for _, e := range entries {
		if e.IsDir() || e.Name() == "current" || !strings.HasPrefix(e.Name(), "root.") {
			continue
		}
		if v, err := strconv.ParseUint(strings.TrimPrefix(e.Name(), "root."), 10, 64); err == nil {
			versions = append(versions, v)
		}
	}
	if len(versions) <= keep {
		return nil
	}
	sort.Sort(sort.Reverse(uint64Slice(versions)))
	for _, v := range versions[keep:] {
		_ = os.Remove(rootVersionPath(poolRoot, v))
	}
	return nil
}

type uint64Slice []uint64

func (s uint64Slice) Len() int           { return len(s) }
func (s uint64Slice) Less(i, j int) bool { return s[i] < s[j] }
func (s uint64Slice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
