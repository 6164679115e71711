package pagecache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/ouroboros-db/ouroboros/internal/ometrics"
	"github.com/ouroboros-db/ouroboros/internal/olog"
)

// Saver is the pluggable callback a Cache uses to flush a page to its
// backing store, matching cache<Saver,...>'s Saver template parameter: the
// original parameterizes the whole cache type on it, Go just takes it as a
// constructor argument.
type Saver interface {
	// SavePage writes a page's current contents to the backing file at the
	// given index. Called synchronously from the eviction path and from
	// Flush/Clean.
	SavePage(index Index, data []byte) error
	// LoadPage reads a page's contents from the backing file into a
	// freshly allocated buffer of PageSize bytes.
	LoadPage(index Index) ([]byte, error)
}

// Cache is the paged write-back cache: a bounded pool of fixed-size pages,
// evicted least-recently-used, with dirty pages saved synchronously before
// their slot is reused. This is cache<Saver,pageSize,pageCount> (cache.h),
// its intrusive list + hashmap.h bucket table replaced by golang-lru's
// NewWithEvict, whose synchronous OnEvicted callback is exactly the point
// cache_pool::make_page() used to call saver.save_page() on an outgoing
// page before handing the slot to a new one.
type Cache struct {
	pageSize int
	saver    Saver

	mu   sync.Mutex
	pool *lru.Cache
}

// New builds a cache with room for pageCount pages of pageSize bytes each,
// backed by saver for loads and evictions.
func New(pageSize, pageCount int, saver Saver) (*Cache, error) {
	c := &Cache{pageSize: pageSize, saver: saver}
	pool, err := lru.NewWithEvict(pageCount, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.pool = pool
	return c, nil
}

// onEvict is golang-lru's synchronous eviction callback: it runs while the
// pool's internal lock is held by the Add that triggered the eviction, so
// it must not re-enter the pool. It is the sole place a dirty page is
// written back involuntarily, matching cache_page::free()'s "save before
// reuse" contract.
func (c *Cache) onEvict(key, value interface{}) {
	page := value.(*Page)
	ometrics.CacheEvictionsTotal.Inc()
	if !page.dirty {
		return
	}
	if err := c.saver.SavePage(page.Index, page.Data); err != nil {
		olog.Errorf("pagecache: evict save failed", err)
		return
	}
	page.MarkClean()
	ometrics.CacheDirtyPages.Dec()
}

// Get returns the page at index, loading it from the backing store on a
// pool miss (cache::get_page's page_exists/load path).
func (c *Cache) Get(index Index) (*Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.pool.Get(index); ok {
		ometrics.CacheHitsTotal.Inc()
		return v.(*Page), nil
	}
	ometrics.CacheMissesTotal.Inc()

	data, err := c.saver.LoadPage(index)
	if err != nil {
		return nil, err
	}
	page := &Page{Index: index, Data: data}
	c.pool.Add(index, page)
	return page, nil
}

// Touch marks the page at index dirty, bumping the dirty-page gauge the
// first time. Returns false if the page is not resident.
func (c *Cache) Touch(index Index) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.pool.Peek(index)
	if !ok {
		return false
	}
	page := v.(*Page)
	if !page.dirty {
		page.MarkDirty()
		ometrics.CacheDirtyPages.Inc()
	}
	// Peek does not bump recency; re-Add does, matching up_page()'s intent
	// of promoting a page a caller is actively writing to.
	c.pool.Add(index, page)
	return true
}

// Flush saves every dirty resident page without evicting it, matching
// cache::clean()'s "save all, stay resident" semantics (used at commit).
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.pool.Keys() {
		v, ok := c.pool.Peek(key)
		if !ok {
			continue
		}
		page := v.(*Page)
		if !page.dirty {
			continue
		}
		if err := c.saver.SavePage(page.Index, page.Data); err != nil {
			return err
		}
		page.MarkClean()
		ometrics.CacheDirtyPages.Dec()
	}
	return nil
}

// Discard evicts every resident page without saving, matching cache::free()
// used on cancel: dirty pages are simply dropped because the backup file
// already holds the pre-images to restore.
func (c *Cache) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.pool.Keys() {
		if v, ok := c.pool.Peek(key); ok {
			if page := v.(*Page); page.dirty {
				// Purge runs onEvict for every entry; a clean page is not saved.
				page.MarkClean()
				ometrics.CacheDirtyPages.Dec()
			}
		}
	}
	c.pool.Purge()
}

// Empty reports whether the cache currently holds no pages.
func (c *Cache) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pool.Len() == 0
}

// PageSize returns the fixed page size the cache was constructed with.
func (c *Cache) PageSize() int { return c.pageSize }
