package device

import (
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"

	"github.com/redfs/redfs/crashsim"
	"github.com/redfs/redfs/durable"
	"github.com/redfs/redfs/rfserr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DiskMetadata is the persisted per-device record (spec.md §6: disk.json).
type DiskMetadata struct {
	UID           string `json:"uid"`
	Path          string `json:"path"`
	Kind          Kind   `json:"kind"`
	CapacityBytes int64  `json:"capacity_bytes"`
	UsedBytes     int64  `json:"used_bytes"`
	Health        Health `json:"health"`
	Tier          Tier   `json:"tier"`

	// Unknown fields from a newer binary are preserved verbatim on rewrite
	// (spec.md §6 unknown-field tolerance).
	Unknown map[string]jsoniter.RawMessage `json:"-"`
}

func diskJSONPath(root string) string {
	return filepath.Join(root, "disk.json")
}

func loadDiskMetadata(path string) (*DiskMetadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dm := &DiskMetadata{}
	if err := json.Unmarshal(raw, dm); err != nil {
		return nil, rfserr.NewCorruptedMetadata("disk.json", err.Error())
	}
	var m map[string]jsoniter.RawMessage
	_ = json.Unmarshal(raw, &m)
	known := map[string]bool{
		"uid": true, "path": true, "kind": true, "capacity_bytes": true,
		"used_bytes": true, "health": true, "tier": true,
	}
	dm.Unknown = map[string]jsoniter.RawMessage{}
	for k, v := range m {
		if !known[k] {
			dm.Unknown[k] = v
		}
	}
	return dm, nil
}

func saveDiskMetadata(sim *crashsim.Simulator, path string, dm *DiskMetadata) error {
	m := map[string]jsoniter.RawMessage{}
	for k, v := range dm.Unknown {
		m[k] = v
	}
	encode := func(v interface{}) jsoniter.RawMessage {
		b, _ := json.Marshal(v)
		return b
	}
	m["uid"] = encode(dm.UID)
	m["path"] = encode(dm.Path)
	m["kind"] = encode(dm.Kind)
	m["capacity_bytes"] = encode(dm.CapacityBytes)
	m["used_bytes"] = encode(dm.UsedBytes)
	m["health"] = encode(dm.Health)
	m["tier"] = encode(dm.Tier)

	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return durable.Write(sim, path, raw, 0o644)
}
