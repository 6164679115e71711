package txfile

import (
	"encoding/binary"

	"github.com/ouroboros-db/ouroboros/pagecache"
)

// A backup record is a self-describing entry in the append-only backup
// file: [index uint64][compressed flag byte][data length uint32][data].
// Self-description lets a record be decoded from its offset alone;
// recovery finds records through the index header (readBackupIndexHeader),
// not by scanning the backup file.
func encodeBackupRecord(idx pagecache.Index, compressed bool, data []byte) []byte {
	buf := make([]byte, 0, 8+1+4+len(data))
	var tmp8 [8]byte
	binary.LittleEndian.PutUint64(tmp8[:], uint64(idx))
	buf = append(buf, tmp8[:]...)
	flag := byte(0)
	if compressed {
		flag = 1
	}
	buf = append(buf, flag)
	var tmp4 [4]byte
	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(data)))
	buf = append(buf, tmp4[:]...)
	buf = append(buf, data...)
	return buf
}

func backupRecordHeaderSize() int { return 8 + 1 + 4 }

// decodeBackupRecord reads one record at offset from f, returning its page
// index, whether it is compressed, and its (possibly still compressed)
// payload.
func decodeBackupRecord(f File, offset int64) (pagecache.Index, bool, []byte, error) {
	head := make([]byte, backupRecordHeaderSize())
	if err := f.ReadAt(head, offset); err != nil {
		return 0, false, nil, err
	}
	idx := pagecache.Index(binary.LittleEndian.Uint64(head[0:8]))
	compressed := head[8] == 1
	length := binary.LittleEndian.Uint32(head[9:13])
	data := make([]byte, length)
	if length > 0 {
		if err := f.ReadAt(data, offset+int64(len(head))); err != nil {
			return 0, false, nil, err
		}
	}
	return idx, compressed, data, nil
}

// recordSize returns the total on-disk size of a record with the given
// payload length.
func recordSize(payloadLen int) int64 {
	return int64(backupRecordHeaderSize() + payloadLen)
}
