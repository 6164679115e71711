package ouroboros

import "encoding/binary"

// NilPos marks a key's Root field as absent (no tree) or a removed table's
// Pos field as tombstoned, matching table.NilPos's role for an out-of-range
// sentinel position.
const NilPos = ^uint32(0)

// keyRecordSize is the fixed on-disk width of a key table slot, matching
// spec.md §6's KEY_REGION layout plus the Root field tree tables need
// (§3's "Tree key... extends the simple key with root"). This port gives
// every key slot a Root field rather than shipping two key-table layouts
// (one for plain datasets, one for tree datasets): tables that are not
// tree-indexed simply leave it at NilPos, trading four bytes per key slot
// for a single on-disk layout to reason about.
const keyRecordSize = 8 + 4 + 4 + 4 + 4 + 4 + 4

// keyRecord is one key table slot, the Go counterpart of the simple/tree
// key described in spec.md §3 and laid out in §6.
type keyRecord struct {
	Key   uint64
	Pos   int32
	Beg   uint32
	End   uint32
	Count uint32
	Rev   uint32
	Root  uint32
}

func (k keyRecord) Pack(buf []byte) []byte {
	var tmp [keyRecordSize]byte
	binary.LittleEndian.PutUint64(tmp[0:8], k.Key)
	binary.LittleEndian.PutUint32(tmp[8:12], uint32(k.Pos))
	binary.LittleEndian.PutUint32(tmp[12:16], k.Beg)
	binary.LittleEndian.PutUint32(tmp[16:20], k.End)
	binary.LittleEndian.PutUint32(tmp[20:24], k.Count)
	binary.LittleEndian.PutUint32(tmp[24:28], k.Rev)
	binary.LittleEndian.PutUint32(tmp[28:32], k.Root)
	return append(buf, tmp[:]...)
}

func (k *keyRecord) Unpack(buf []byte) []byte {
	k.Key = binary.LittleEndian.Uint64(buf[0:8])
	k.Pos = int32(binary.LittleEndian.Uint32(buf[8:12]))
	k.Beg = binary.LittleEndian.Uint32(buf[12:16])
	k.End = binary.LittleEndian.Uint32(buf[16:20])
	k.Count = binary.LittleEndian.Uint32(buf[20:24])
	k.Rev = binary.LittleEndian.Uint32(buf[24:28])
	k.Root = binary.LittleEndian.Uint32(buf[28:32])
	return buf[keyRecordSize:]
}

func (k keyRecord) StaticSize() int { return keyRecordSize }

// tombstoned reports whether this key slot has been removed via
// RemoveTable, matching spec.md §6's invariant (ii): "a key with pos = -1
// is tombstoned".
func (k keyRecord) tombstoned() bool { return k.Pos < 0 }

// infoRecordSize and infoRecord mirror spec.md §3's "Dataset info" header:
// {version, tbl_count, rec_count, key_count, reserve[512], user_data[256]}.
const (
	infoReserveSize   = 512
	infoUserDataSize  = 256
	infoRecordSize    = 4 + 4 + 4 + 4 + infoReserveSize + infoUserDataSize
	infoFormatVersion = 1
)

type infoRecord struct {
	Version  uint32
	TblCount uint32
	RecCount uint32
	KeyCount uint32
	UserData [infoUserDataSize]byte
}

func (h infoRecord) Pack(buf []byte) []byte {
	var tmp [infoRecordSize]byte
	binary.LittleEndian.PutUint32(tmp[0:4], h.Version)
	binary.LittleEndian.PutUint32(tmp[4:8], h.TblCount)
	binary.LittleEndian.PutUint32(tmp[8:12], h.RecCount)
	binary.LittleEndian.PutUint32(tmp[12:16], h.KeyCount)
	// tmp[16:16+infoReserveSize] stays zero (reserve).
	copy(tmp[16+infoReserveSize:], h.UserData[:])
	return append(buf, tmp[:]...)
}

func (h *infoRecord) Unpack(buf []byte) []byte {
	h.Version = binary.LittleEndian.Uint32(buf[0:4])
	h.TblCount = binary.LittleEndian.Uint32(buf[4:8])
	h.RecCount = binary.LittleEndian.Uint32(buf[8:12])
	h.KeyCount = binary.LittleEndian.Uint32(buf[12:16])
	copy(h.UserData[:], buf[16+infoReserveSize:infoRecordSize])
	return buf[infoRecordSize:]
}

func (h infoRecord) StaticSize() int { return infoRecordSize }
