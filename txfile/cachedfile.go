package txfile

import (
	"github.com/ouroboros-db/ouroboros/pagecache"
)

// CachedFile is a File with a paged write-back cache in front of it: reads
// and writes go through fixed-size pages served by pagecache.Cache, and
// only dirty pages touch the backing store, on eviction or on Commit. This
// is cache_file<FilePage,pageCount,File,Cache> (cachefile.h) generalized
// from a compile-time page count/size to constructor parameters, since Go
// has no non-type template parameters to hang them on.
type CachedFile struct {
	file      File
	region    *Region
	pageSize  int
	checksum  ChecksumAlgorithm
	cache     *pagecache.Cache
	inTxn     bool
}

// NewCachedFile builds a CachedFile over file, using region to map virtual
// page offsets, pageCount resident pages of pageSize bytes, and alg for
// page checksums.
func NewCachedFile(file File, region *Region, pageSize, pageCount int, alg ChecksumAlgorithm) (*CachedFile, error) {
	cf := &CachedFile{file: file, region: region, pageSize: pageSize, checksum: alg}
	cache, err := pagecache.New(pageSize, pageCount, cf)
	if err != nil {
		return nil, err
	}
	cf.cache = cache
	return cf, nil
}

// SavePage implements pagecache.Saver: it is called by the page pool's
// eviction callback and by Flush/Commit, never directly by a caller.
func (cf *CachedFile) SavePage(index pagecache.Index, data []byte) error {
	offset := cf.region.ConvertOffset(int64(index) * int64(cf.pageDataSize()))
	buf := make([]byte, 0, cf.pageSize)
	buf = append(buf, data...)
	if cf.checksum != 0 {
		buf = PutChecksum(cf.checksum, data, buf)
	}
	return cf.file.WriteAt(buf, offset)
}

// LoadPage implements pagecache.Saver.
func (cf *CachedFile) LoadPage(index pagecache.Index) ([]byte, error) {
	offset := cf.region.ConvertOffset(int64(index) * int64(cf.pageDataSize()))
	full := make([]byte, cf.pageSize)
	if err := cf.file.ReadAt(full, offset); err != nil {
		return nil, err
	}
	if cf.checksum == 0 {
		return full, nil
	}
	dataLen := cf.pageSize - ChecksumSize
	data := full[:dataLen]
	if isZeroPage(full) {
		// A page that has never been written (a hole in a sparse file, or a
		// table/key region format left uninitialized) reads back as all
		// zero, trailer included — it never had a checksum computed for it
		// in the first place, so there is nothing to verify.
		out := make([]byte, dataLen)
		return out, nil
	}
	if !VerifyChecksum(cf.checksum, data, full[dataLen:]) {
		return nil, ErrChecksumMismatch
	}
	out := make([]byte, dataLen)
	copy(out, data)
	return out, nil
}

func isZeroPage(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}

// pageIndex and pageOffset split a virtual byte position into the page it
// falls in and the byte offset within that page's data area.
func (cf *CachedFile) pageIndex(pos int64) (pagecache.Index, int) {
	dataSize := cf.pageSize
	if cf.checksum != 0 {
		dataSize -= ChecksumSize
	}
	return pagecache.Index(pos / int64(dataSize)), int(pos % int64(dataSize))
}

func (cf *CachedFile) pageDataSize() int {
	return PageDataSize(cf.pageSize, cf.checksum)
}

// PageDataSize returns the content bytes a physical page of pageSize can
// carry once alg's checksum trailer, if any, is reserved out of it. Callers
// building a Region for a CachedFile with the same pageSize/alg must use
// this value so the two agree on where one page's content ends and the
// next begins.
func PageDataSize(pageSize int, alg ChecksumAlgorithm) int {
	if alg != 0 {
		return pageSize - ChecksumSize
	}
	return pageSize
}

// ReadAt reads size bytes at virtual position pos, spanning as many pages
// as needed, matching cache_file::do_read.
func (cf *CachedFile) ReadAt(buf []byte, pos int64) error {
	remaining := buf
	cursor := pos
	for len(remaining) > 0 {
		idx, off := cf.pageIndex(cursor)
		page, err := cf.cache.Get(idx)
		if err != nil {
			return err
		}
		n := copy(remaining, page.Data[off:])
		remaining = remaining[n:]
		cursor += int64(n)
	}
	return nil
}

// WriteAt writes buf at virtual position pos, dirtying every page it
// touches, matching cache_file::do_write.
func (cf *CachedFile) WriteAt(buf []byte, pos int64) error {
	remaining := buf
	cursor := pos
	for len(remaining) > 0 {
		idx, off := cf.pageIndex(cursor)
		page, err := cf.cache.Get(idx)
		if err != nil {
			return err
		}
		n := copy(page.Data[off:], remaining)
		remaining = remaining[n:]
		cursor += int64(n)
		cf.cache.Touch(idx)
	}
	return nil
}

// Start begins a transaction, matching cache_file::start. CachedFile itself
// has nothing to record; BackupFile and JournalFile layer pre-image capture
// on top.
func (cf *CachedFile) Start() { cf.inTxn = true }

// Stop commits the transaction: every dirty page is flushed in place
// (cache_file::stop / cache::clean).
func (cf *CachedFile) Stop() error {
	if err := cf.cache.Flush(); err != nil {
		return err
	}
	cf.inTxn = false
	return nil
}

// Cancel discards the transaction's in-memory changes without saving them.
// A bare CachedFile cannot restore pages already evicted mid-transaction;
// BackupFile overrides this to actually roll back.
func (cf *CachedFile) Cancel() {
	cf.cache.Discard()
	cf.inTxn = false
}

// Sync flushes the backing file to stable storage.
func (cf *CachedFile) Sync() error { return cf.file.Sync() }

// Close releases the underlying file.
func (cf *CachedFile) Close() error { return cf.file.Close() }
