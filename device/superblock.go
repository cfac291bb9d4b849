package device

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/redfs/redfs/codec"
	"github.com/redfs/redfs/rfserr"
)

const (
	superblockSize     = 4096
	superblockMagic    = "DFSBLOCK"
	superblockVersion  = uint32(1)
	superblockChecksum = 8 // truncated BLAKE3 digest length stored in the header
)

// superblock is the 4 KiB header written at offset 0 of a block device
// (spec.md §6): magic, format version, device UUID, a write sequence
// counter, and the location of the bitmap allocator region that follows it.
type superblock struct {
	Magic           [8]byte
	Version         uint32
	DeviceUUID      uuid.UUID
	Sequence        uint64
	AllocatorOffset uint64
	AllocatorLength uint64
}

// encodeSuperblock serializes sb into a superblockSize-byte buffer with an
// 8-byte BLAKE3-derived checksum appended over the header with the checksum
// region itself zeroed, per spec.md §6.
func encodeSuperblock(sb superblock) []byte {
	buf := make([]byte, superblockSize)
	copy(buf[0:8], sb.Magic[:])
	binary.BigEndian.PutUint32(buf[8:12], sb.Version)
	copy(buf[12:28], sb.DeviceUUID[:])
	binary.BigEndian.PutUint64(buf[28:36], sb.Sequence)
	binary.BigEndian.PutUint64(buf[36:44], sb.AllocatorOffset)
	binary.BigEndian.PutUint64(buf[44:52], sb.AllocatorLength)
	// buf[52:60] is the checksum field, left zero while hashing.
	sum := codec.Checksum(buf[:52])
	copy(buf[52:60], sum[:superblockChecksum])
	return buf
}

// decodeSuperblock parses and validates a superblockSize-byte buffer.
func decodeSuperblock(buf []byte) (superblock, error) {
	var sb superblock
	if len(buf) < superblockSize {
		return sb, rfserr.NewCorruptedMetadata("superblock", "short read")
	}
	if string(buf[0:8]) != superblockMagic {
		return sb, rfserr.NewCorruptedMetadata("superblock", "bad magic")
	}
	copy(sb.Magic[:], buf[0:8])
	sb.Version = binary.BigEndian.Uint32(buf[8:12])
	copy(sb.DeviceUUID[:], buf[12:28])
	sb.Sequence = binary.BigEndian.Uint64(buf[28:36])
	sb.AllocatorOffset = binary.BigEndian.Uint64(buf[36:44])
	sb.AllocatorLength = binary.BigEndian.Uint64(buf[44:52])

	check := make([]byte, 52)
	copy(check, buf[0:52])
	sum := codec.Checksum(check)
	var stored [superblockChecksum]byte
	copy(stored[:], buf[52:52+superblockChecksum])
	for i := 0; i < superblockChecksum; i++ {
		if sum[i] != stored[i] {
			return sb, rfserr.NewCorruptedMetadata("superblock", "checksum mismatch")
		}
	}
	if sb.Version != superblockVersion {
		return sb, rfserr.NewCorruptedMetadata("superblock", "unsupported version")
	}
	return sb, nil
}
