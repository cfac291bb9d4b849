// Package metadata implements the durable, checksummed record store for
// inodes, extents, extent-maps, and the versioned root (spec.md §4.2/§6).
// Every record follows the same write-temp-fsync-rename protocol used by
// device/directory.go, factored out into the durable package; the same
// unknown-field-preserving jsoniter convention established in
// device/disk_meta.go is generalized here into a shared checksum helper
// since several record families (inode, extent-map, root) embed a BLAKE3
// digest; extent records do not (see extent.go).
package metadata

import (
	"encoding/hex"

	jsoniter "github.com/json-iterator/go"
	"lukechampine.com/blake3"

	"github.com/redfs/redfs/rfserr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func encodeField(v interface{}) jsoniter.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func decodeField(raw jsoniter.RawMessage, v interface{}) {
	if raw == nil {
		return
	}
	_ = json.Unmarshal(raw, v)
}

// computeChecksum is the BLAKE3 digest, hex-encoded, of a record's
// serialized form with its checksum field cleared (spec.md §4.2).
func computeChecksum(serialized []byte) string {
	sum := blake3.Sum256(serialized)
	return hex.EncodeToString(sum[:])
}

// marshalWithChecksum assembles a JSON object from known (the record's own
// fields, checksum excluded) and unknown (fields preserved from a newer
// binary per spec.md §6), computes the checksum over the object with
// checksumKey cleared, and returns the final indented JSON with the
// checksum populated.
func marshalWithChecksum(known, unknown map[string]jsoniter.RawMessage, checksumKey string) ([]byte, error) {
	m := map[string]jsoniter.RawMessage{}
	for k, v := range unknown {
		m[k] = v
	}
	for k, v := range known {
		m[k] = v
	}
	m[checksumKey] = encodeField("")
	cleared, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	m[checksumKey] = encodeField(computeChecksum(cleared))
	return json.MarshalIndent(m, "", "  ")
}

// verifyAndSplit unmarshals raw into a flat field map, recomputes the
// checksum at checksumKey with that field cleared, and fails with
// CorruptedMetadata (structural) or ChecksumMismatch (digest) if either
// check fails. Callers pull their known fields out of the returned map;
// whatever the caller doesn't recognize is preserved by the record type as
// its Unknown set.
func verifyAndSplit(raw []byte, checksumKey, recordName string) (map[string]jsoniter.RawMessage, error) {
	var m map[string]jsoniter.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, rfserr.NewCorruptedMetadata(recordName, err.Error())
	}
	var expected string
	decodeField(m[checksumKey], &expected)

	cleared := map[string]jsoniter.RawMessage{}
	for k, v := range m {
		cleared[k] = v
	}
	cleared[checksumKey] = encodeField("")
	clearedBytes, err := json.Marshal(cleared)
	if err != nil {
		return nil, rfserr.NewCorruptedMetadata(recordName, err.Error())
	}
	computed := computeChecksum(clearedBytes)
	if computed != expected {
		return nil, rfserr.NewChecksumMismatch(recordName, expected, computed)
	}
	return m, nil
}
