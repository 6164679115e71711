package table

import "github.com/ouroboros-db/ouroboros/record"

// Hooks lets a secondary structure (Indexed's ordered multimap, Tree's
// red-black tree) stay consistent as the base table mutates, matching
// base_table::do_before_remove/do_before_move's virtual dispatch. Table
// calls these at exactly the points table.h's do_remove and the overflow
// branch of add() call them; Simple tables use noopHooks.
type Hooks[R record.Record] interface {
	// BeforeRemove is called once for the record at pos, just before it is
	// overwritten or logically dropped.
	BeforeRemove(pos uint32, rec R)
	// BeforeMove is called just before the record physically at src is
	// copied to dst (src's old slot becomes free), so a structure holding
	// src as a position reference can retarget it to dst.
	BeforeMove(src, dst uint32, rec R)
}

// NoopHooks is the Hooks implementation a plain Table uses: the base
// circular buffer has no secondary structure to keep consistent.
type NoopHooks[R record.Record] struct{}

func (NoopHooks[R]) BeforeRemove(uint32, R)    {}
func (NoopHooks[R]) BeforeMove(uint32, uint32, R) {}

// Table is a bounded circular buffer of fixed-size records, the Go
// counterpart of table<Source,Key> (table.h) composed with base_table
// (basic.h). NewRecord must return a freshly zeroed R for Unpack to fill
// in — Go generics cannot construct a zero value satisfying an interface
// constraint on their own, so the factory is threaded through explicitly,
// the same role basic.h's skey_type default construction plays implicitly
// in C++.
type Table[R record.Record] struct {
	meta      *Meta
	backend   Backend
	newRecord func() R
	recSize   int
	hooks     Hooks[R]
}

// New builds a Table over backend, using meta for its occupied-range state
// and newRecord to allocate scratch records for Unpack.
func New[R record.Record](meta *Meta, backend Backend, newRecord func() R) *Table[R] {
	return &Table[R]{
		meta:      meta,
		backend:   backend,
		newRecord: newRecord,
		recSize:   newRecord().StaticSize(),
		hooks:     NoopHooks[R]{},
	}
}

// setHooks installs the Hooks implementation a wrapping Indexed/Tree table
// uses; unexported because only this package's own wrapper types call it.
func (t *Table[R]) setHooks(h Hooks[R]) { t.hooks = h }

func (t *Table[R]) slotOffset(pos uint32) int64 { return int64(pos) * int64(t.recSize) }

// Count returns the number of occupied slots.
func (t *Table[R]) Count() uint32 { return t.meta.Count }

// Empty reports whether the table holds no records.
func (t *Table[R]) Empty() bool { return t.meta.Empty() }

// BegPos and EndPos return the table's occupied range [BegPos, EndPos).
func (t *Table[R]) BegPos() uint32 { return t.meta.Beg }
func (t *Table[R]) EndPos() uint32 { return t.meta.End() }

// IncPos/DecPos expose the table's positional ring arithmetic.
func (t *Table[R]) IncPos(pos, count uint32) uint32 { return t.meta.IncPos(pos, count) }
func (t *Table[R]) DecPos(pos, count uint32) uint32 { return t.meta.DecPos(pos, count) }

// Distance returns the slot count from beg to end going forward.
func (t *Table[R]) Distance(beg, end uint32) uint32 { return t.meta.Distance(beg, end) }

// Read reads the record at pos, matching table::read.
func (t *Table[R]) Read(pos uint32) (R, error) {
	rec := t.newRecord()
	if !t.meta.ValidPos(pos) {
		var zero R
		return zero, ErrRange
	}
	buf := make([]byte, t.recSize)
	if err := t.backend.ReadAt(buf, t.slotOffset(pos)); err != nil {
		var zero R
		return zero, err
	}
	rec.Unpack(buf)
	return rec, nil
}

// Write overwrites the record at pos, matching table::write. pos must
// already be occupied.
func (t *Table[R]) Write(pos uint32, rec R) error {
	if !t.meta.ValidPos(pos) {
		return ErrRange
	}
	buf := rec.Pack(make([]byte, 0, t.recSize))
	return t.backend.WriteAt(buf, t.slotOffset(pos))
}

// ReadFront reads the oldest record, matching table::read_front.
func (t *Table[R]) ReadFront() (R, error) {
	if t.meta.Empty() {
		var zero R
		return zero, ErrRange
	}
	return t.Read(t.meta.Beg)
}

// ReadBack reads the newest record, matching table::read_back.
func (t *Table[R]) ReadBack() (R, error) {
	if t.meta.Empty() {
		var zero R
		return zero, ErrRange
	}
	return t.Read(t.meta.DecPos(t.meta.End(), 1))
}

// Add appends a record, overwriting the oldest one once the table is full
// rather than growing it, matching table::add's overflow branch. Returns
// the position the record was written to.
func (t *Table[R]) Add(rec R) (uint32, error) {
	if t.meta.Full() {
		// Overflow: the slot about to be reused is the current beg, which
		// is about to stop being the oldest record. do_before_remove fires
		// once for it (no compaction follows — this is table.h's plain
		// overwrite-oldest path, distinct from Remove's compacting path).
		old, err := t.Read(t.meta.Beg)
		if err != nil {
			return 0, err
		}
		t.hooks.BeforeRemove(t.meta.Beg, old)
		pos := t.meta.Beg
		if err := t.writeRaw(pos, rec); err != nil {
			return 0, err
		}
		t.meta.Beg = t.meta.IncPos(t.meta.Beg, 1)
		return pos, nil
	}
	pos := t.meta.End()
	if err := t.writeRaw(pos, rec); err != nil {
		return 0, err
	}
	t.meta.Count++
	return pos, nil
}

func (t *Table[R]) writeRaw(pos uint32, rec R) error {
	buf := rec.Pack(make([]byte, 0, t.recSize))
	return t.backend.WriteAt(buf, t.slotOffset(pos))
}

// Remove removes the record at pos, compacting the suffix [pos+1, end)
// backward by one slot so the table stays contiguous modulo wraparound.
// This single rule reproduces both of table.h's documented boundary
// behaviors: removing the front costs count-1 moves, removing the back
// costs zero.
func (t *Table[R]) Remove(pos uint32) error {
	if !t.meta.ValidPos(pos) {
		return ErrRange
	}
	victim, err := t.Read(pos)
	if err != nil {
		return err
	}
	t.hooks.BeforeRemove(pos, victim)

	end := t.meta.End()
	src := t.meta.IncPos(pos, 1)
	dst := pos
	for src != end {
		rec, err := t.Read(src)
		if err != nil {
			return err
		}
		t.hooks.BeforeMove(src, dst, rec)
		if err := t.writeRaw(dst, rec); err != nil {
			return err
		}
		dst = src
		src = t.meta.IncPos(src, 1)
	}
	t.meta.Count--
	return nil
}

// RemoveRange removes the count records starting at beg, matching
// table::remove(beg,count): every excised slot fires BeforeRemove, then
// the remaining suffix shifts back by count, firing BeforeMove once per
// moved record.
func (t *Table[R]) RemoveRange(beg uint32, count uint32) error {
	if count == 0 {
		return nil
	}
	if count > t.meta.Count || !t.meta.ValidPos(beg) {
		return ErrRange
	}
	excisedEnd := t.meta.IncPos(beg, count)
	p := beg
	for i := uint32(0); i < count; i++ {
		rec, err := t.Read(p)
		if err != nil {
			return err
		}
		t.hooks.BeforeRemove(p, rec)
		p = t.meta.IncPos(p, 1)
	}

	end := t.meta.End()
	src := excisedEnd
	dst := beg
	for src != end {
		rec, err := t.Read(src)
		if err != nil {
			return err
		}
		t.hooks.BeforeMove(src, dst, rec)
		if err := t.writeRaw(dst, rec); err != nil {
			return err
		}
		dst = t.meta.IncPos(dst, 1)
		src = t.meta.IncPos(src, 1)
	}
	t.meta.Count -= count
	return nil
}

// RemoveBack removes the count newest records without compaction, matching
// table::remove_back.
func (t *Table[R]) RemoveBack(count uint32) (uint32, error) {
	if count > t.meta.Count {
		count = t.meta.Count
	}
	pos := t.meta.End()
	for i := uint32(0); i < count; i++ {
		pos = t.meta.DecPos(pos, 1)
		rec, err := t.Read(pos)
		if err != nil {
			return 0, err
		}
		t.hooks.BeforeRemove(pos, rec)
	}
	t.meta.Count -= count
	return count, nil
}

// Clear empties the table, firing BeforeRemove for every occupied slot in
// forward order, matching base_table::clear/do_clear.
func (t *Table[R]) Clear() error {
	return t.RemoveRange(t.meta.Beg, t.meta.Count)
}

// Find scans forward through [beg, beg+count) for a record equal to data
// under eq, matching table::find. Returns the found position and true, or
// false if not found.
func (t *Table[R]) Find(beg uint32, count uint32, eq func(R) bool) (uint32, bool, error) {
	pos := beg
	for i := uint32(0); i < count; i++ {
		rec, err := t.Read(pos)
		if err != nil {
			return 0, false, err
		}
		if eq(rec) {
			return pos, true, nil
		}
		pos = t.meta.IncPos(pos, 1)
	}
	return 0, false, nil
}

// RFind scans backward through [end-count, end) for a record equal to data
// under eq, matching table::rfind.
func (t *Table[R]) RFind(end uint32, count uint32, eq func(R) bool) (uint32, bool, error) {
	pos := end
	for i := uint32(0); i < count; i++ {
		pos = t.meta.DecPos(pos, 1)
		rec, err := t.Read(pos)
		if err != nil {
			return 0, false, err
		}
		if eq(rec) {
			return pos, true, nil
		}
	}
	return 0, false, nil
}

// ResetMeta forces the table's occupied-range state back to a known
// (beg, count) pair, bypassing the normal add/remove bookkeeping. A
// dataset session calls this after a canceled transaction to bring a
// table's in-memory position state back in line with the on-disk key
// record the backup/journal layer just rolled back to, since table.Table
// has no notion of a transaction of its own to undo.
func (t *Table[R]) ResetMeta(beg, count uint32) {
	t.meta.Beg = beg
	t.meta.Count = count
}
