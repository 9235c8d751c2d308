package blockmanager

import "hash/crc32"

// BlockChecksum computes the integrity checksum over a full on-disk block
// image. Both I/O sides zero the header checksum field before calling this,
// so the stored value never covers itself. Pure and deterministic; the same
// algorithm and byte range are used on read and write.
func BlockChecksum(block []byte) uint32 {
	return crc32.ChecksumIEEE(block)
}
