package codec

import "lukechampine.com/blake3"

// ChecksumSize is the width of a digest per spec.md §3 ("32-byte BLAKE3
// checksum over the logical data").
const ChecksumSize = 32

// Checksum returns the BLAKE3 digest of data. Callers compute this over the
// unpadded logical extent data, never over individual shards (spec.md §4.1).
func Checksum(data []byte) [ChecksumSize]byte {
	return blake3.Sum256(data)
}
