package txfile

// Region is the file-region mapper: it translates a virtual, contiguous
// logical offset space — info header, then key table, then one repeating
// table region per data table — into physical offsets, padding each
// section up to a multiple of the page size. This is the Go counterpart of
// file_region's OUROBOROS_FILE_REGION_CACHE_TYPE==1 specialization
// (page.h), which hard-codes exactly the info/key/table triple rather than
// a generic sorted map of regions, because a dataset's shape never varies:
// convert_offset/convert_size below are a direct translation of
// file_region::get_offset for that fixed triple, generalized only in that
// the table region itself repeats once per data table instead of being a
// single fixed-size block.
type Region struct {
	pageSize     int
	pageDataSize int // content bytes held per physical page; equals pageSize
	// unless CachedFile is carrying a checksum trailer per page, in which
	// case it is smaller and a region's physical footprint must be computed
	// in whole pages rather than raw aligned bytes.

	infoSize  int64
	keySize   int64
	tableSize int64 // size of one table's region, before alignment

	infoAligned  int64
	keyAligned   int64
	tableAligned int64
}

// NewRegion builds a region mapper for a dataset's info header, key table,
// and a repeating per-table region, all padded to a whole number of
// physical pages. pageDataSize is the number of content bytes each physical
// page actually carries (less than pageSize when pages carry a checksum
// trailer); pass pageSize itself when pages carry no trailer.
func NewRegion(pageSize int, pageDataSize int, infoSize, keySize, tableSize int64) *Region {
	r := &Region{
		pageSize:     pageSize,
		pageDataSize: pageDataSize,
		infoSize:     infoSize,
		keySize:      keySize,
		tableSize:    tableSize,
	}
	r.infoAligned = r.pagePhysicalSize(infoSize)
	r.keyAligned = r.pagePhysicalSize(keySize)
	r.tableAligned = r.pagePhysicalSize(tableSize)
	return r
}

// pagePhysicalSize returns the physical, page-aligned byte count needed to
// store contentSize content bytes, accounting for the checksum trailer
// reserved out of every physical page.
func (r *Region) pagePhysicalSize(contentSize int64) int64 {
	if contentSize == 0 {
		return 0
	}
	pages := (contentSize + int64(r.pageDataSize) - 1) / int64(r.pageDataSize)
	return pages * int64(r.pageSize)
}

// convertWithinRegion maps a content-byte offset measured from the start of
// a region to its physical offset measured from that same region's
// physical start, expanding for the checksum trailer carried by every
// physical page in between.
func (r *Region) convertWithinRegion(contentOffset int64) int64 {
	page := contentOffset / int64(r.pageDataSize)
	within := contentOffset % int64(r.pageDataSize)
	return page*int64(r.pageSize) + within
}

// ConvertOffset maps a raw (virtual, unaligned) logical offset to its
// physical, page-aligned offset in the backing file, the direct
// counterpart of file_region::get_offset's cached-region lookup.
func (r *Region) ConvertOffset(rawOffset int64) int64 {
	if rawOffset < r.infoSize {
		return r.convertWithinRegion(rawOffset)
	}
	rest := rawOffset - r.infoSize
	if rest < r.keySize {
		return r.infoAligned + r.convertWithinRegion(rest)
	}
	rest -= r.keySize
	tableIndex := rest / r.tableSize
	withinTable := rest % r.tableSize
	return r.infoAligned + r.keyAligned + tableIndex*r.tableAligned + r.convertWithinRegion(withinTable)
}

// ConvertSize maps a raw section size to its page-aligned size, the
// counterpart of file_region::convert_size.
func (r *Region) ConvertSize(rawSize int64) int64 {
	return r.pagePhysicalSize(rawSize)
}

// InfoOffset, KeyOffset and TableOffset return the physical start offset
// of the info header, the key table, and the Nth data table's region.
func (r *Region) InfoOffset() int64 { return 0 }
func (r *Region) KeyOffset() int64  { return r.infoAligned }
func (r *Region) TableOffset(tableIndex int) int64 {
	return r.infoAligned + r.keyAligned + int64(tableIndex)*r.tableAligned
}

// TotalSize returns the total physical size needed for the info header,
// the key table, and tableCount data tables.
func (r *Region) TotalSize(tableCount int) int64 {
	return r.infoAligned + r.keyAligned + int64(tableCount)*r.tableAligned
}
