package txfile

import (
	"github.com/ouroboros-db/ouroboros/internal/olog"
	"github.com/ouroboros-db/ouroboros/pagecache"
)

// BackupFile layers pre-image capture on top of CachedFile: the first time
// a transaction touches a page, its current on-disk contents are copied to
// a side backup file before the page is allowed to become dirty in the
// cache. Canceling the transaction restores every backed-up page from that
// shadow copy; committing just discards the shadow index. This is
// backup_file (backupfile.h), with std::set<pos_type> replaced by a Go
// map[pagecache.Index]struct{} and the backup store itself implemented as
// an append-only sequence of (index, compressed page) records rather than
// a second cache_file, matching the original's doc comment that the backup
// file need only ever be appended to and read back in full on recovery.
type BackupFile struct {
	*CachedFile
	backup   File
	indexes  map[pagecache.Index]int64 // page index -> offset of its backup record
	nextOff  int64
	compress bool
}

// NewBackupFile wraps cached with a backup shadow file. compress enables
// zstd compression of captured pre-images, matching the teacher's
// write-hot/read-cold asymmetry for snapshot data: pre-images are written
// on every first touch of a page within a transaction but read only on
// cancel or crash recovery.
func NewBackupFile(cached *CachedFile, backup File, compress bool) *BackupFile {
	return &BackupFile{
		CachedFile: cached,
		backup:     backup,
		indexes:    make(map[pagecache.Index]int64),
		nextOff:    backupIndexHeaderReserved,
		compress:   compress,
	}
}

// Start begins a transaction; the backup index is assumed empty at this
// point (Stop/Cancel always clear it).
func (bf *BackupFile) Start() {
	bf.CachedFile.Start()
}

// WriteAt captures the page's pre-image on its first touch within the
// current transaction, then delegates to CachedFile.WriteAt, matching
// backup_file::get_page's add_index-before-dirty sequencing.
func (bf *BackupFile) WriteAt(buf []byte, pos int64) error {
	if bf.inTxn {
		idx, _ := bf.pageIndex(pos)
		if err := bf.captureIfNeeded(idx); err != nil {
			return err
		}
	}
	return bf.CachedFile.WriteAt(buf, pos)
}

func (bf *BackupFile) captureIfNeeded(idx pagecache.Index) error {
	if _, done := bf.indexes[idx]; done {
		return nil
	}
	page, err := bf.cache.Get(idx)
	if err != nil {
		return err
	}
	data := page.Data
	if bf.compress {
		data = compressPage(data)
	}
	offset := bf.nextOff
	record := encodeBackupRecord(idx, bf.compress, data)
	if err := bf.backup.WriteAt(record, offset); err != nil {
		return err
	}
	bf.indexes[idx] = offset
	bf.nextOff += int64(len(record))
	// Persisted immediately (not just at commit/cancel) so a crash
	// mid-transaction leaves enough information for JournalFile's recovery
	// scan to find every captured pre-image.
	return writeBackupIndexHeader(bf.backup, bf.indexes)
}

// Stop commits: flush dirty pages and discard the backup index, matching
// backup_file::stop's call into do_after_clear_indexes.
func (bf *BackupFile) Stop() error {
	if err := bf.CachedFile.Stop(); err != nil {
		return err
	}
	bf.clearIndexes()
	return nil
}

// Cancel restores every captured page from its backup record, then
// discards the in-memory cache, matching backup_file::cancel's recovery
// call before resetting the cache.
func (bf *BackupFile) Cancel() {
	if err := bf.recovery(); err != nil {
		olog.Errorf("txfile: backup recovery failed", err)
	}
	bf.CachedFile.Cancel()
	bf.clearIndexes()
}

// recovery reads back every captured pre-image and writes it straight to
// the backing file (bypassing the cache, which is about to be discarded),
// matching backup_file::recovery.
func (bf *BackupFile) recovery() error {
	size, err := bf.file.Size()
	if err != nil {
		return err
	}
	for idx, offset := range bf.indexes {
		data, err := bf.readBackupRecord(offset)
		if err != nil {
			return err
		}
		physOffset := bf.region.ConvertOffset(int64(idx) * int64(bf.pageDataSize()))
		if physOffset >= size && isZeroPage(data) {
			// A never-written page the file does not reach yet: reads there
			// already return zeros, so there is nothing to restore.
			continue
		}
		buf := make([]byte, 0, bf.pageSize)
		buf = append(buf, data...)
		if bf.checksum != 0 {
			buf = PutChecksum(bf.checksum, data, buf)
		}
		if err := bf.file.WriteAt(buf, physOffset); err != nil {
			return err
		}
	}
	return nil
}

func (bf *BackupFile) readBackupRecord(offset int64) ([]byte, error) {
	_, compressed, data, err := decodeBackupRecord(bf.backup, offset)
	if err != nil {
		return nil, err
	}
	if compressed {
		return decompressPage(data)
	}
	return data, nil
}

// Indexes returns the page indexes currently backed up, for JournalFile's
// recovery scan. The returned map must not be mutated.
func (bf *BackupFile) Indexes() map[pagecache.Index]int64 { return bf.indexes }

// RestorePages restores exactly the given page indexes from their backup
// records, bypassing the cache. Used by JournalFile to roll back only the
// pages a crash-recovery scan determined were left uncommitted, as opposed
// to Cancel's full-index restore.
func (bf *BackupFile) RestorePages(indexes map[pagecache.Index]int64) error {
	for idx, offset := range indexes {
		data, err := bf.readBackupRecord(offset)
		if err != nil {
			return err
		}
		physOffset := bf.region.ConvertOffset(int64(idx) * int64(bf.pageDataSize()))
		buf := make([]byte, 0, bf.pageSize)
		buf = append(buf, data...)
		if bf.checksum != 0 {
			buf = PutChecksum(bf.checksum, data, buf)
		}
		if err := bf.file.WriteAt(buf, physOffset); err != nil {
			return err
		}
	}
	return nil
}

// LoadIndexHeader reads the backup index header written by a prior,
// possibly crashed, process, for use during journal-driven recovery at
// dataset open.
func (bf *BackupFile) LoadIndexHeader() (map[pagecache.Index]int64, bool, error) {
	return readBackupIndexHeader(bf.backup)
}

func (bf *BackupFile) clearIndexes() {
	bf.indexes = make(map[pagecache.Index]int64)
	bf.nextOff = backupIndexHeaderReserved
	if err := writeBackupIndexHeader(bf.backup, bf.indexes); err != nil {
		olog.Errorf("txfile: clearing backup index header failed", err)
	}
}
