// Package device implements the device abstraction (spec.md §3/§4.3/§6):
// fragment read/write/delete on a directory or block device, with persisted
// per-device metadata, and the pool-wide mountpath lifecycle (add, remove,
// enable, disable) adapted from the teacher's fs.MountedFS.
package device

// Kind is whether a device is a plain directory or a raw block device.
type Kind string

const (
	KindDirectory Kind = "directory"
	KindBlock     Kind = "block"
)

// Health mirrors spec.md §3's device health enum.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
	HealthSuspect  Health = "suspect"
	HealthDraining Health = "draining"
	HealthFailed   Health = "failed"
)

// Tier is the storage-class label used by the placement engine.
type Tier string

const (
	TierHot  Tier = "hot"
	TierWarm Tier = "warm"
	TierCold Tier = "cold"
)
