package table

import (
	"cmp"
	"sort"

	"github.com/ouroboros-db/ouroboros/record"
)

// Indexed wraps a Table with a secondary ordered multimap index keyed by a
// caller-supplied field extractor, the Go counterpart of index1..index6
// (index.h) plus indexedtable.h's indexed_table: where the original
// generates one of six index classes at compile time for "the record's Nth
// field", this port takes a plain KeyOf func(R) K, since Go generics have
// no equivalent of selecting a struct field by template parameter.
type Indexed[R record.Record, K cmp.Ordered] struct {
	*Table[R]
	keyOf func(R) K
	// entries is the ordered multimap: a sorted-by-Key slice of (key, pos)
	// pairs, the Go counterpart of the original's index structure — a
	// sorted container was the simplest ecosystem-free way to keep range
	// queries ordered without pulling in a third-party ordered-map library
	// the rest of the retrieval pack never uses.
	entries []indexEntry[K]
}

type indexEntry[K cmp.Ordered] struct {
	key K
	pos uint32
}

// NewIndexed builds an Indexed table over an existing Table, indexing by
// keyOf. The Table must be empty or the caller must call Reindex after
// construction — Indexed has no way to discover existing records' keys on
// its own.
func NewIndexed[R record.Record, K cmp.Ordered](t *Table[R], keyOf func(R) K) *Indexed[R, K] {
	idx := &Indexed[R, K]{Table: t, keyOf: keyOf}
	t.setHooks(idx)
	return idx
}

// Reindex rebuilds the ordered multimap from the table's current contents,
// for use after opening a dataset whose index was not itself persisted.
func (idx *Indexed[R, K]) Reindex() error {
	idx.entries = idx.entries[:0]
	if idx.Empty() {
		return nil
	}
	pos := idx.BegPos()
	for i := uint32(0); i < idx.Count(); i++ {
		rec, err := idx.Table.Read(pos)
		if err != nil {
			return err
		}
		idx.insert(idx.keyOf(rec), pos)
		pos = idx.IncPos(pos, 1)
	}
	return nil
}

func (idx *Indexed[R, K]) insert(key K, pos uint32) {
	i := sort.Search(len(idx.entries), func(i int) bool { return idx.entries[i].key >= key })
	idx.entries = append(idx.entries, indexEntry[K]{})
	copy(idx.entries[i+1:], idx.entries[i:])
	idx.entries[i] = indexEntry[K]{key: key, pos: pos}
}

func (idx *Indexed[R, K]) removeAt(pos uint32) {
	for i, e := range idx.entries {
		if e.pos == pos {
			idx.entries = append(idx.entries[:i], idx.entries[i+1:]...)
			return
		}
	}
}

// BeforeRemove implements Hooks: drop the position's index entry.
func (idx *Indexed[R, K]) BeforeRemove(pos uint32, _ R) {
	idx.removeAt(pos)
}

// BeforeMove implements Hooks: retarget the moved position's index entry.
func (idx *Indexed[R, K]) BeforeMove(src, dst uint32, _ R) {
	for i := range idx.entries {
		if idx.entries[i].pos == src {
			idx.entries[i].pos = dst
			return
		}
	}
}

// Add appends rec and indexes it by its key, matching Table.Add plus the
// index-maintenance indexed_table layers on top.
func (idx *Indexed[R, K]) Add(rec R) (uint32, error) {
	pos, err := idx.Table.Add(rec)
	if err != nil {
		return 0, err
	}
	idx.insert(idx.keyOf(rec), pos)
	return pos, nil
}

// Find returns the position of the first record with the given key, in
// key order, matching indexed_table's lower_bound-style lookup.
func (idx *Indexed[R, K]) Find(key K) (uint32, bool) {
	i := sort.Search(len(idx.entries), func(i int) bool { return idx.entries[i].key >= key })
	if i < len(idx.entries) && idx.entries[i].key == key {
		return idx.entries[i].pos, true
	}
	return 0, false
}

// Range calls fn for every position whose key falls in [lo, hi], in key
// order, stopping early if fn returns false.
func (idx *Indexed[R, K]) Range(lo, hi K, fn func(pos uint32) bool) {
	i := sort.Search(len(idx.entries), func(i int) bool { return idx.entries[i].key >= lo })
	for ; i < len(idx.entries) && idx.entries[i].key <= hi; i++ {
		if !fn(idx.entries[i].pos) {
			return
		}
	}
}
