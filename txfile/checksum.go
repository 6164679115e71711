// Page checksum algorithms, selected via Config.ChecksumAlgorithm. A direct
// generalization of the teacher's hash.go: the same three algorithms, now
// computed over a cache page's bytes before it is saved and verified when
// read back, to catch corruption the journal-replay model does not
// otherwise detect.
package txfile

import (
	"encoding/binary"
	"hash/fnv"

	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/blake2b"
)

// ChecksumAlgorithm selects the page-checksum function.
type ChecksumAlgorithm int

const (
	ChecksumXXH3 ChecksumAlgorithm = iota + 1 // default, fastest
	ChecksumFNV1a                             // no external dependencies
	ChecksumBlake2b                           // best distribution
)

// ChecksumSize is the fixed width of a page checksum in bytes, a
// page_service_bytes-sized field this engine reserves on every page.
const ChecksumSize = 8

// Checksum computes an 8-byte checksum of data using alg.
func Checksum(alg ChecksumAlgorithm, data []byte) uint64 {
	switch alg {
	case ChecksumFNV1a:
		h := fnv.New64a()
		h.Write(data)
		return h.Sum64()
	case ChecksumBlake2b:
		h, _ := blake2b.New(8, nil)
		h.Write(data)
		var buf [8]byte
		copy(buf[:], h.Sum(nil))
		return binary.LittleEndian.Uint64(buf[:])
	case ChecksumXXH3:
		fallthrough
	default:
		return xxh3.Hash(data)
	}
}

// PutChecksum appends the checksum of data to buf as 8 little-endian bytes.
func PutChecksum(alg ChecksumAlgorithm, data []byte, buf []byte) []byte {
	var tmp [ChecksumSize]byte
	binary.LittleEndian.PutUint64(tmp[:], Checksum(alg, data))
	return append(buf, tmp[:]...)
}

// VerifyChecksum reports whether the 8 little-endian bytes at the front of
// want equal the checksum of data under alg.
func VerifyChecksum(alg ChecksumAlgorithm, data []byte, want []byte) bool {
	if len(want) < ChecksumSize {
		return false
	}
	return binary.LittleEndian.Uint64(want[:ChecksumSize]) == Checksum(alg, data)
}
