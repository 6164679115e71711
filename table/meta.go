// Package table implements the three table kinds a dataset stores records
// in: Table (a bounded circular buffer), Indexed (Table plus a secondary
// ordered multimap index), and Tree (Table plus an embedded red-black
// tree keyed by record position). All three share the base positional
// arithmetic of ouroboros/basic.h's base_table: a fixed-capacity ring of
// rec_count slots, [beg, beg+count) occupied modulo rec_count.
package table

// Meta is the persistent metadata describing a table's occupied range,
// the Go counterpart of base_table's beg/end/count fields as stored in the
// dataset's key region (key.h's simple_key). RecCount is the table's fixed
// capacity and never changes after creation.
type Meta struct {
	Beg      uint32
	Count    uint32
	RecCount uint32
}

// End returns the position one past the last occupied slot, modulo
// RecCount, matching base_table::end_pos.
func (m *Meta) End() uint32 {
	return incMod(m.Beg, m.Count, m.RecCount)
}

// Empty reports whether the table currently holds no records.
func (m *Meta) Empty() bool { return m.Count == 0 }

// Full reports whether the table is at capacity.
func (m *Meta) Full() bool { return m.Count == m.RecCount }

// IncPos advances pos by count slots, wrapping modulo RecCount, matching
// base_table::inc_pos (table's do_inc_pos override is a plain ring: Indexed
// and Tree do not change positional arithmetic, only what happens around
// removal and movement).
func (m *Meta) IncPos(pos, count uint32) uint32 { return incMod(pos, count, m.RecCount) }

// DecPos retreats pos by count slots, wrapping modulo RecCount, matching
// base_table::dec_pos.
func (m *Meta) DecPos(pos, count uint32) uint32 { return decMod(pos, count, m.RecCount) }

// Distance returns the number of slots from beg to end going forward,
// matching table::distance.
func (m *Meta) Distance(beg, end uint32) uint32 {
	if end >= beg {
		return end - beg
	}
	return m.RecCount - beg + end
}

// ValidPos reports whether pos names a currently occupied slot.
func (m *Meta) ValidPos(pos uint32) bool {
	if m.Empty() {
		return false
	}
	return m.Distance(m.Beg, pos) < m.Count
}

func incMod(pos, count, mod uint32) uint32 {
	if mod == 0 {
		return 0
	}
	return (pos + count) % mod
}

func decMod(pos, count, mod uint32) uint32 {
	if mod == 0 {
		return 0
	}
	c := count % mod
	if pos >= c {
		return pos - c
	}
	return mod - (c - pos)
}
