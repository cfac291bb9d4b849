package storage

import "github.com/redfs/redfs/metadata"

// AccessClass is the kind of access a caller is requesting against an
// inode, mirroring the POSIX r/w/x bit groups spec.md §3's `mode` field
// already carries.
type AccessClass int

const (
	AccessRead AccessClass = iota
	AccessWrite
	AccessExecute
)

const (
	modeOwnerShift = 6
	modeGroupShift = 3
	modeOtherShift = 0
)

func bitFor(class AccessClass) uint32 {
	switch class {
	case AccessRead:
		return 0o4
	case AccessWrite:
		return 0o2
	default:
		return 0o1
	}
}

// CheckAccess reports whether a caller identified by (uid, gid) may
// perform class against an inode whose owner/mode are n.UID/n.GID/n.Mode.
// Supplemented from original_source/src/security.rs per SPEC_FULL.md: the
// distillation carries uid/gid/mode on every inode (spec.md §3) but never
// specifies the check that consults them, so this factors out standard
// owner/group/other permission-bit evaluation, ported as ambient
// access-control plumbing consistent with the existing data model rather
// than as a new feature area. Root (uid 0) always passes.
func CheckAccess(n metadata.Inode, uid, gid uint32, class AccessClass) bool {
	if uid == 0 {
		return true
	}
	bit := bitFor(class)
	shift := modeOtherShift
	switch {
	case n.UID == uid:
		shift = modeOwnerShift
	case n.GID == gid:
		shift = modeGroupShift
	}
	return n.Mode>>shift&bit == bit
}
