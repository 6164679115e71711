package table

import (
	"encoding/binary"
	"testing"
)

// intRecord is a minimal fixed-width record used by this package's tests.
type intRecord struct {
	Value int32
}

func (r intRecord) Pack(buf []byte) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(r.Value))
	return append(buf, tmp[:]...)
}

func (r *intRecord) Unpack(buf []byte) []byte {
	r.Value = int32(binary.LittleEndian.Uint32(buf[:4]))
	return buf[4:]
}

func (r intRecord) StaticSize() int { return 4 }

func newTable(recCount int) *Table[*intRecord] {
	meta := &Meta{RecCount: uint32(recCount)}
	backend := NewMemBackend(recCount, 4)
	return New[*intRecord](meta, backend, func() *intRecord { return &intRecord{} })
}

func TestTableAddAndRead(t *testing.T) {
	tb := newTable(4)
	for i := int32(0); i < 3; i++ {
		if _, err := tb.Add(&intRecord{Value: i}); err != nil {
			t.Fatal(err)
		}
	}
	if tb.Count() != 3 {
		t.Fatalf("count = %d, want 3", tb.Count())
	}
	rec, err := tb.Read(0)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Value != 0 {
		t.Fatalf("rec.Value = %d, want 0", rec.Value)
	}
}

func TestTableOverwritesOldestWhenFull(t *testing.T) {
	tb := newTable(3)
	for i := int32(0); i < 3; i++ {
		if _, err := tb.Add(&intRecord{Value: i}); err != nil {
			t.Fatal(err)
		}
	}
	// Table is full: [0,1,2]. Adding 3 must overwrite the oldest (0).
	if _, err := tb.Add(&intRecord{Value: 3}); err != nil {
		t.Fatal(err)
	}
	if tb.Count() != 3 {
		t.Fatalf("count = %d, want 3 (overwrite, not grow)", tb.Count())
	}
	front, err := tb.ReadFront()
	if err != nil {
		t.Fatal(err)
	}
	if front.Value != 1 {
		t.Fatalf("front.Value = %d, want 1 (0 was overwritten)", front.Value)
	}
	back, err := tb.ReadBack()
	if err != nil {
		t.Fatal(err)
	}
	if back.Value != 3 {
		t.Fatalf("back.Value = %d, want 3", back.Value)
	}
}

func TestTableRemoveFrontCompactsForward(t *testing.T) {
	tb := newTable(5)
	for i := int32(0); i < 4; i++ {
		tb.Add(&intRecord{Value: i})
	}
	if err := tb.Remove(tb.BegPos()); err != nil {
		t.Fatal(err)
	}
	if tb.Count() != 3 {
		t.Fatalf("count = %d, want 3", tb.Count())
	}
	front, _ := tb.ReadFront()
	if front.Value != 1 {
		t.Fatalf("front.Value = %d, want 1", front.Value)
	}
	back, _ := tb.ReadBack()
	if back.Value != 3 {
		t.Fatalf("back.Value = %d, want 3", back.Value)
	}
}

func TestTableRemoveBackIsCheap(t *testing.T) {
	tb := newTable(5)
	for i := int32(0); i < 4; i++ {
		tb.Add(&intRecord{Value: i})
	}
	n, err := tb.RemoveBack(2)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("removed %d, want 2", n)
	}
	if tb.Count() != 2 {
		t.Fatalf("count = %d, want 2", tb.Count())
	}
	back, _ := tb.ReadBack()
	if back.Value != 1 {
		t.Fatalf("back.Value = %d, want 1", back.Value)
	}
}

func TestTableRemoveRangeFromMiddle(t *testing.T) {
	tb := newTable(6)
	for i := int32(0); i < 5; i++ {
		tb.Add(&intRecord{Value: i}) // values 0..4
	}
	// Remove the middle two (positions holding values 1,2).
	if err := tb.RemoveRange(tb.IncPos(tb.BegPos(), 1), 2); err != nil {
		t.Fatal(err)
	}
	if tb.Count() != 3 {
		t.Fatalf("count = %d, want 3", tb.Count())
	}
	var got []int32
	pos := tb.BegPos()
	for i := uint32(0); i < tb.Count(); i++ {
		rec, err := tb.Read(pos)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, rec.Value)
		pos = tb.IncPos(pos, 1)
	}
	want := []int32{0, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestTableFindAndRFind(t *testing.T) {
	tb := newTable(5)
	for i := int32(0); i < 4; i++ {
		tb.Add(&intRecord{Value: i * 10})
	}
	pos, ok, err := tb.Find(tb.BegPos(), tb.Count(), func(r *intRecord) bool { return r.Value == 20 })
	if err != nil || !ok {
		t.Fatalf("Find failed: ok=%v err=%v", ok, err)
	}
	rec, _ := tb.Read(pos)
	if rec.Value != 20 {
		t.Fatalf("found wrong record: %v", rec.Value)
	}

	_, ok, err = tb.RFind(tb.EndPos(), tb.Count(), func(r *intRecord) bool { return r.Value == 0 })
	if err != nil || !ok {
		t.Fatalf("RFind failed: ok=%v err=%v", ok, err)
	}
}

func TestTableClearFiresBeforeRemoveInOrder(t *testing.T) {
	tb := newTable(5)
	for i := int32(0); i < 4; i++ {
		tb.Add(&intRecord{Value: i})
	}
	var removed []int32
	tb.setHooks(recordingHooks{removed: &removed})
	if err := tb.Clear(); err != nil {
		t.Fatal(err)
	}
	if !tb.Empty() {
		t.Fatal("table should be empty after Clear")
	}
	want := []int32{0, 1, 2, 3}
	if len(removed) != len(want) {
		t.Fatalf("removed %v, want %v", removed, want)
	}
	for i := range want {
		if removed[i] != want[i] {
			t.Fatalf("removed %v, want %v", removed, want)
		}
	}
}

type recordingHooks struct {
	removed *[]int32
}

func (h recordingHooks) BeforeRemove(pos uint32, rec *intRecord) {
	*h.removed = append(*h.removed, rec.Value)
}
func (h recordingHooks) BeforeMove(src, dst uint32, rec *intRecord) {}
