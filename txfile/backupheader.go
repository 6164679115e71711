// The backup file's index header: a small, variable-length page-index to
// offset map stored at the front of the backup file, JSON-encoded the same
// way the teacher's header.go encodes its fixed Header — here the payload
// is variable length (one entry per captured page) so it is length-framed
// rather than space-padded to a fixed size.
package txfile

import (
	"encoding/binary"

	json "github.com/goccy/go-json"

	"github.com/ouroboros-db/ouroboros/pagecache"
)

// backupIndexHeaderReserved is the fixed-size slot the length-framed JSON
// header lives in. A header that would not fit is written with an empty
// payload instead, so a transaction touching more than a few thousand
// distinct pages leaves no index entries on disk.
const backupIndexHeaderReserved = 1 << 16

type backupIndexEntry struct {
	Index  uint64 `json:"idx"`
	Offset int64  `json:"off"`
}

type backupIndexHeader struct {
	Entries []backupIndexEntry `json:"entries"`
}

// writeBackupIndexHeader JSON-encodes the current index map and writes it,
// length-prefixed, to the start of the backup file.
func writeBackupIndexHeader(f File, indexes map[pagecache.Index]int64) error {
	hdr := backupIndexHeader{Entries: make([]backupIndexEntry, 0, len(indexes))}
	for idx, off := range indexes {
		hdr.Entries = append(hdr.Entries, backupIndexEntry{Index: uint64(idx), Offset: off})
	}
	data, err := json.Marshal(hdr)
	if err != nil {
		return err
	}
	if len(data)+4 > backupIndexHeaderReserved {
		data = data[:0] // too large for the reservation; see readBackupIndexHeader
	}
	buf := make([]byte, 4+len(data))
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(data)))
	copy(buf[4:], data)
	return f.WriteAt(buf, 0)
}

// readBackupIndexHeader decodes the index map written by
// writeBackupIndexHeader. A zero-length payload (including one left behind
// by a header too large to fit the reservation) reads back with ok false;
// JournalFile.Init then uses the in-memory index instead, which is empty
// after a fresh open, so no page is restored from the backup records.
func readBackupIndexHeader(f File) (map[pagecache.Index]int64, bool, error) {
	lenBuf := make([]byte, 4)
	if err := f.ReadAt(lenBuf, 0); err != nil {
		return nil, false, err
	}
	n := binary.LittleEndian.Uint32(lenBuf)
	if n == 0 {
		return nil, false, nil
	}
	data := make([]byte, n)
	if err := f.ReadAt(data, 4); err != nil {
		return nil, false, err
	}
	var hdr backupIndexHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		return nil, false, ErrJournalCorrupt
	}
	out := make(map[pagecache.Index]int64, len(hdr.Entries))
	for _, e := range hdr.Entries {
		out[pagecache.Index(e.Index)] = e.Offset
	}
	return out, true, nil
}
