package ouroboros

import (
	"sync"

	"github.com/ouroboros-db/ouroboros/lock"
)

// DatasetContext owns every named lock and the key shadow map for one open
// dataset, matching spec.md §9's re-architecture directive for "Singletons
// for global lockers and shared memory": "a DatasetContext value owns the
// shared-memory handle and all named locks; it is constructed by
// Dataset::open and dropped on close. Threads pass the context explicitly;
// no hidden process-wide state beyond the OS-named primitives themselves."
//
// Every Session and Transaction holds a pointer to the Dataset's single
// DatasetContext rather than reaching through package-level globals, the
// direct Go counterpart of the C++ singleton registry this replaces. The
// one deliberate exception is txfile's globalTransactionCounter, documented
// at its declaration: transaction ids must be globally ordered across
// every dataset a process has open, which a dataset-scoped counter cannot
// provide.
type DatasetContext struct {
	mu sync.Mutex

	// datasetLock is the dataset-wide reentrant lock a Transaction takes
	// exclusively and a read session takes sharably, matching spec.md
	// §4.K/§4.L's "dataset RW lock".
	datasetLock *lock.Reentrant
	// lazyLock is the dataset-wide lazy lock a LazyTransaction takes,
	// cooperative only (spec.md §4.L).
	lazyLock *lock.Reentrant
	// tableLocks is the per-table reentrant lock set, named by key,
	// matching spec.md §4.G's "per-table" reentrant lock and lazily
	// created on first reference the way a shared-memory segment would be
	// lazily mapped on first attach.
	tableLocks map[uint64]*lock.Reentrant
	// commitGateway orders cross-session commit windows, matching
	// spec.md §4.G's Gateway and §8 scenario 6: Session, Transaction, and
	// LazyTransaction all route their commit/cancel path through it, a
	// reader entering the middle room and a writer skipping straight from
	// the first room to the last.
	commitGateway *lock.Gateway

	// shadow is the in-memory mirror of the keys table, reconciled at
	// transaction start/stop per spec.md §3's ownership rule ("the shadow
	// is reconciled at transaction start/stop").
	shadow map[uint64]keyRecord
}

// newDatasetContext builds an empty DatasetContext for a freshly opened
// dataset.
func newDatasetContext() *DatasetContext {
	return &DatasetContext{
		datasetLock:   lock.NewReentrant("dataset"),
		lazyLock:      lock.NewReentrant("dataset-lazy"),
		tableLocks:    make(map[uint64]*lock.Reentrant),
		commitGateway: lock.NewGateway("commit"),
		shadow:        make(map[uint64]keyRecord),
	}
}

// tableLock returns the named per-table reentrant lock, creating it on
// first reference.
func (dc *DatasetContext) tableLock(key uint64) *lock.Reentrant {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	l, ok := dc.tableLocks[key]
	if !ok {
		l = lock.NewReentrant("table")
		dc.tableLocks[key] = l
	}
	return l
}

// shadowGet and shadowPut read/write the in-memory key shadow, matching
// spec.md §5's "Keys in the shadow map are mutated only under the key-table
// exclusive lock" — shadowPut is called by AddTable (datasetLock held
// exclusively), by persistKey (the table's own lock held exclusively,
// datasetLock sharably) and by loadKeys during Open; dc.mu guards the map.
func (dc *DatasetContext) shadowGet(key uint64) (keyRecord, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	k, ok := dc.shadow[key]
	return k, ok
}

func (dc *DatasetContext) shadowPut(key uint64, rec keyRecord) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.shadow[key] = rec
}

func (dc *DatasetContext) shadowDelete(key uint64) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	delete(dc.shadow, key)
}

// shadowKeys returns every live (non-tombstoned) key currently shadowed.
func (dc *DatasetContext) shadowKeys() []uint64 {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	keys := make([]uint64, 0, len(dc.shadow))
	for k, rec := range dc.shadow {
		if !rec.tombstoned() {
			keys = append(keys, k)
		}
	}
	return keys
}
