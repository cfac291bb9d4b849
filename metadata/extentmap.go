package metadata

import (
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"

	"github.com/redfs/redfs/crashsim"
	"github.com/redfs/redfs/durable"
	"github.com/redfs/redfs/rfserr"
)

// ExtentMap is the ordered sequence of extent UIDs making up one file's
// logical content, in offset order (spec.md §3).
type ExtentMap struct {
	Ino        uint64   `json:"ino"`
	ExtentUIDs []string `json:"extent_uids"`

	// Checksum is the embedded BLAKE3 digest, same protocol as Inode's
	// (spec.md §4.2, §8's second testable property).
	Checksum string `json:"checksum"`

	Unknown map[string]jsoniter.RawMessage `json:"-"`
}

var knownExtentMapFields = map[string]bool{
	"ino": true, "extent_uids": true, "checksum": true,
}

func (m ExtentMap) marshal() ([]byte, error) {
	known := map[string]jsoniter.RawMessage{
		"ino":         encodeField(m.Ino),
		"extent_uids": encodeField(m.ExtentUIDs),
	}
	return marshalWithChecksum(known, m.Unknown, "checksum")
}

func unmarshalExtentMap(raw []byte) (ExtentMap, error) {
	fields, err := verifyAndSplit(raw, "checksum", "extent_map")
	if err != nil {
		return ExtentMap{}, err
	}
	var em ExtentMap
	decodeField(fields["ino"], &em.Ino)
	decodeField(fields["extent_uids"], &em.ExtentUIDs)
	decodeField(fields["checksum"], &em.Checksum)
	em.Unknown = map[string]jsoniter.RawMessage{}
	for k, v := range fields {
		if !knownExtentMapFields[k] {
			em.Unknown[k] = v
		}
	}
	return em, nil
}

func saveExtentMap(sim *crashsim.Simulator, poolRoot string, em *ExtentMap) error {
	if err := sim.Check(crashsim.DuringExtentMap); err != nil {
		return err
	}
	raw, err := em.marshal()
	if err != nil {
		return err
	}
	path := extentMapPath(poolRoot, em.Ino)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return rfserr.NewIoError("mkdir", filepath.Dir(path), err)
	}
	if err := durable.Write(sim, path, raw, 0o644); err != nil {
		return err
	}
	reloaded, err := unmarshalExtentMap(raw)
	if err != nil {
		return err
	}
	em.Checksum = reloaded.Checksum
	return nil
}

func loadExtentMap(poolRoot string, ino uint64) (ExtentMap, error) {
	raw, err := os.ReadFile(extentMapPath(poolRoot, ino))
	if err != nil {
		if os.IsNotExist(err) {
			return ExtentMap{}, rfserr.NewNotFound("extent_map")
		}
		return ExtentMap{}, rfserr.NewIoError("read", extentMapPath(poolRoot, ino), err)
	}
	return unmarshalExtentMap(raw)
}

func deleteExtentMap(poolRoot string, ino uint64) error {
	if err := os.Remove(extentMapPath(poolRoot, ino)); err != nil && !os.IsNotExist(err) {
		return rfserr.NewIoError("remove", extentMapPath(poolRoot, ino), err)
	}
	return nil
}
