// Package pagecache implements the paged write-back cache that sits under
// every transactional file: fixed-size pages keyed by page index, pooled
// with bounded capacity and LRU eviction, dirty-tracked so only pages that
// changed get saved. This is a Go re-expression of ouroboros/cache.h's
// cache_page / cache_pool / cache trio; where the original hand-rolls an
// intrusive doubly-linked list plus its own hashmap.h bucket table sized to
// pageCount, this port uses github.com/hashicorp/golang-lru's
// NewWithEvict — the same fixed-capacity-map-plus-recency-list shape, built
// on a library already in the retrieval pack's dependency graph instead of
// a second hand-rolled container.
package pagecache

// Index identifies a page by its position in the virtual page space a
// Region (see package txfile) maps onto physical file offsets.
type Index uint64

// Page is one fixed-size unit of the write-back cache, equivalent to
// cache_page<Cache,pageSize>'s payload (the intrusive link fields are
// dropped: golang-lru owns ordering, so Page only needs to carry state).
type Page struct {
	Index Index
	Data  []byte
	dirty bool
}

// Dirty reports whether the page has been written to since it was last
// saved, matching cache_page::dirty()/clean()'s m_dirty flag.
func (p *Page) Dirty() bool { return p.dirty }

// MarkDirty flags the page as changed, mirroring cache_page::dirty().
func (p *Page) MarkDirty() { p.dirty = true }

// MarkClean clears the dirty flag after a successful save, mirroring
// cache_page::clean().
func (p *Page) MarkClean() { p.dirty = false }
