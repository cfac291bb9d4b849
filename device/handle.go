package device

import "github.com/redfs/redfs/crashsim"

// FragmentLocation identifies where one fragment of an extent lives:
// the owning device and its fragment-index slot, plus an optional
// on-device placement descriptor block devices use to record the byte
// offset the allocator gave it (spec.md §3).
type FragmentLocation struct {
	DeviceUID string  `json:"device_uid"`
	Index     int     `json:"index"`
	Offset    *uint64 `json:"offset,omitempty"` // set only for block-device placements
}

// Handle is the capability every device (directory-backed or block) offers
// to the placement engine. Each device is exclusively owned by one Handle
// within the process (spec.md §3's ownership note); concurrent writers
// coordinate through the placement engine's short-lived locking, not
// through the Handle itself serializing calls.
type Handle interface {
	UID() string
	Kind() Kind
	Health() Health
	SetHealth(h Health) error
	Tier() Tier
	CapacityBytes() int64
	UsedBytes() int64
	FreeBytes() int64

	// WriteFragment durably stores data as the fragment at index for
	// extentUID, returning the location descriptor to record on the
	// extent. sim may be nil in production.
	WriteFragment(sim *crashsim.Simulator, extentUID string, index int, data []byte) (FragmentLocation, error)

	// ReadFragment returns the bytes for (extentUID, loc), or an error if
	// absent.
	ReadFragment(extentUID string, loc FragmentLocation) ([]byte, error)

	// DeleteFragment removes the fragment for (extentUID, loc). Deleting
	// an already-absent fragment is not an error (idempotent, needed by
	// rollback paths that may retry).
	DeleteFragment(extentUID string, loc FragmentLocation) error

	// HasFragment reports whether a fragment for (extentUID, index)
	// exists on this device, used by rebuild target selection (spec.md
	// §4.3's "do not already hold a fragment").
	HasFragment(extentUID string, index int) bool

	// ListFragments enumerates all (extentUID, index) pairs physically
	// present on this device, used by the garbage collector's orphan scan.
	ListFragments() ([]FragmentRef, error)

	Close() error
}

// FragmentRef names one physically-present fragment, independent of
// whether any extent record still references it.
type FragmentRef struct {
	ExtentUID string
	Index     int
}

var (
	_ Handle = (*DirectoryDevice)(nil)
	_ Handle = (*BlockDevice)(nil)
)
