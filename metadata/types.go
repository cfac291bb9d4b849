package metadata

import "time"

// InodeType is whether an inode names a regular file or a directory
// (spec.md §3).
type InodeType string

const (
	InodeFile InodeType = "file"
	InodeDir  InodeType = "dir"
)

// RootInode is the well-known, self-parented root directory's inode number.
const RootInode uint64 = 1

// ACLEntry is one entry of an inode's optional access control list.
type ACLEntry struct {
	Principal string `json:"principal"`
	Perm      string `json:"perm"`
}

// TransitionStatus tracks one entry of an extent's policy-transition log
// (spec.md §4.3's rebundle_extent staging).
type TransitionStatus string

const (
	TransitionPending    TransitionStatus = "pending"
	TransitionInProgress TransitionStatus = "in_progress"
	TransitionCommitted  TransitionStatus = "committed"
	TransitionRolledBack TransitionStatus = "rolled_back"
)

// Classification is the hot/cold classifier's output state (spec.md §4.6).
// The classifier itself (its HMM parameters and runtime state) lives in the
// classify package and is not persisted; only the last-known label and the
// raw counters survive a restart.
type Classification string

const (
	ClassHot  Classification = "hot"
	ClassWarm Classification = "warm"
	ClassCold Classification = "cold"
)

// AccessStats is the persisted substructure every extent carries, feeding
// the classify package's HMM (spec.md §4.6). Counters survive restarts; the
// HMM's internal state does not (its parameters are derivable from these
// counters, per spec.md §3's ownership note).
type AccessStats struct {
	ReadCount      uint64         `json:"read_count"`
	WriteCount     uint64         `json:"write_count"`
	LastRead       time.Time      `json:"last_read"`
	LastWrite      time.Time      `json:"last_write"`
	CreatedAt      time.Time      `json:"created_at"`
	Classification Classification `json:"classification"`
}

// RootState is a versioned root's lifecycle stage (spec.md §4.2).
type RootState string

const (
	RootPending   RootState = "pending"
	RootCommitted RootState = "committed"
)

// VersionTriple is the on-disk format version carried by the root, letting
// a reader reject an incompatible major version (spec.md §6).
type VersionTriple struct {
	Major    int      `json:"major"`
	Minor    int      `json:"minor"`
	Patch    int      `json:"patch"`
	Features []string `json:"features"`
}

// CurrentFormatVersion is embedded in every freshly-committed root.
var CurrentFormatVersion = VersionTriple{Major: 1, Minor: 0, Patch: 0}
