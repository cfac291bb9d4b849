package metadata

import (
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/redfs/redfs/codec"
	"github.com/redfs/redfs/crashsim"
	"github.com/redfs/redfs/device"
	"github.com/redfs/redfs/durable"
	"github.com/redfs/redfs/rfserr"
)

// PolicyTransition is one entry of an extent's policy-transition log
// (spec.md §4.3's rebundle_extent).
type PolicyTransition struct {
	From      codec.Policy     `json:"from"`
	To        codec.Policy     `json:"to"`
	Status    TransitionStatus `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
}

// Extent is the persisted record for one immutable, checksummed chunk of
// file data (spec.md §3). Extents are immutable after commit: a write
// replaces the extent-map entry, it never mutates an existing extent's
// logical content in place.
type Extent struct {
	UID               string                    `json:"uid"`
	SizeBytes         int64                     `json:"size_bytes"`
	Checksum          string                    `json:"checksum"` // hex BLAKE3 over logical data, not a protocol checksum
	Policy            codec.Policy              `json:"policy"`
	PreviousPolicy    *codec.Policy             `json:"previous_policy,omitempty"`
	LastPolicyChange  time.Time                 `json:"last_policy_change,omitempty"`
	FragmentLocations []device.FragmentLocation `json:"fragment_locations"`
	TransitionLog     []PolicyTransition        `json:"transition_log,omitempty"`
	AccessStats       AccessStats               `json:"access_stats"`
	Generation        uint64                    `json:"generation"`

	// Unknown preserves fields from a newer binary (spec.md §6).
	Unknown map[string]jsoniter.RawMessage `json:"-"`
}

var knownExtentFields = map[string]bool{
	"uid": true, "size_bytes": true, "checksum": true, "policy": true,
	"previous_policy": true, "last_policy_change": true,
	"fragment_locations": true, "transition_log": true, "access_stats": true,
	"generation": true,
}

// Extent records carry no separate protocol checksum field of their own
// (spec.md §4.2: "their integrity is covered by the per-policy decode
// checksum rather than a separate field"), so extent records are written
// and read through the plain durable-write/read path, not the checksum
// helpers inode.go/extentmap.go use.

func (e Extent) marshal() ([]byte, error) {
	known := map[string]jsoniter.RawMessage{
		"uid":                encodeField(e.UID),
		"size_bytes":         encodeField(e.SizeBytes),
		"checksum":           encodeField(e.Checksum),
		"policy":             encodeField(e.Policy),
		"fragment_locations": encodeField(e.FragmentLocations),
		"access_stats":       encodeField(e.AccessStats),
		"generation":         encodeField(e.Generation),
	}
	if e.PreviousPolicy != nil {
		known["previous_policy"] = encodeField(e.PreviousPolicy)
	}
	if !e.LastPolicyChange.IsZero() {
		known["last_policy_change"] = encodeField(e.LastPolicyChange)
	}
	if len(e.TransitionLog) > 0 {
		known["transition_log"] = encodeField(e.TransitionLog)
	}
	m := map[string]jsoniter.RawMessage{}
	for k, v := range e.Unknown {
		m[k] = v
	}
	for k, v := range known {
		m[k] = v
	}
	return json.MarshalIndent(m, "", "  ")
}

func unmarshalExtent(raw []byte) (Extent, error) {
	var m map[string]jsoniter.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return Extent{}, rfserr.NewCorruptedMetadata("extent", err.Error())
	}
	var e Extent
	decodeField(m["uid"], &e.UID)
	decodeField(m["size_bytes"], &e.SizeBytes)
	decodeField(m["checksum"], &e.Checksum)
	decodeField(m["policy"], &e.Policy)
	decodeField(m["fragment_locations"], &e.FragmentLocations)
	decodeField(m["access_stats"], &e.AccessStats)
	decodeField(m["generation"], &e.Generation)
	decodeField(m["transition_log"], &e.TransitionLog)
	if raw, ok := m["previous_policy"]; ok {
		var p codec.Policy
		decodeField(raw, &p)
		e.PreviousPolicy = &p
	}
	decodeField(m["last_policy_change"], &e.LastPolicyChange)
	e.Unknown = map[string]jsoniter.RawMessage{}
	for k, v := range m {
		if !knownExtentFields[k] {
			e.Unknown[k] = v
		}
	}
	return e, nil
}

func saveExtent(sim *crashsim.Simulator, poolRoot string, e *Extent) error {
	if err := sim.Check(crashsim.DuringExtentMeta); err != nil {
		return err
	}
	raw, err := e.marshal()
	if err != nil {
		return err
	}
	path := extentPath(poolRoot, e.UID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return rfserr.NewIoError("mkdir", filepath.Dir(path), err)
	}
	return durable.Write(sim, path, raw, 0o644)
}

func loadExtent(poolRoot string, uid string) (Extent, error) {
	raw, err := os.ReadFile(extentPath(poolRoot, uid))
	if err != nil {
		if os.IsNotExist(err) {
			return Extent{}, rfserr.NewNotFound("extent")
		}
		return Extent{}, rfserr.NewIoError("read", extentPath(poolRoot, uid), err)
	}
	return unmarshalExtent(raw)
}

func deleteExtent(poolRoot string, uid string) error {
	if err := os.Remove(extentPath(poolRoot, uid)); err != nil && !os.IsNotExist(err) {
		return rfserr.NewIoError("remove", extentPath(poolRoot, uid), err)
	}
	return nil
}

// AppendTransition adds a new pending transition entry and returns its
// index in the log.
func (e *Extent) AppendTransition(from, to codec.Policy) int {
	e.TransitionLog = append(e.TransitionLog, PolicyTransition{
		From: from, To: to, Status: TransitionPending, Timestamp: time.Now(),
	})
	return len(e.TransitionLog) - 1
}

// DistinctDeviceUIDs reports whether every fragment location references a
// distinct device (spec.md §8's cardinality property).
func (e Extent) DistinctDeviceUIDs() bool {
	seen := map[string]bool{}
	for _, loc := range e.FragmentLocations {
		if seen[loc.DeviceUID] {
			return false
		}
		seen[loc.DeviceUID] = true
	}
	return true
}
