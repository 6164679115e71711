package table

import "testing"

func newIndexedTable(recCount int) *Indexed[*intRecord, int32] {
	tb := newTable(recCount)
	return NewIndexed[*intRecord, int32](tb, func(r *intRecord) int32 { return r.Value })
}

func TestIndexedFindAfterAdds(t *testing.T) {
	idx := newIndexedTable(5)
	for _, v := range []int32{30, 10, 50, 20, 40} {
		if _, err := idx.Add(&intRecord{Value: v}); err != nil {
			t.Fatal(err)
		}
	}
	pos, ok := idx.Find(20)
	if !ok {
		t.Fatal("expected to find key 20")
	}
	rec, err := idx.Table.Read(pos)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Value != 20 {
		t.Fatalf("found wrong record: %v", rec.Value)
	}
	if _, ok := idx.Find(99); ok {
		t.Fatal("did not expect to find key 99")
	}
}

func TestIndexedRangeInOrder(t *testing.T) {
	idx := newIndexedTable(5)
	for _, v := range []int32{30, 10, 50, 20, 40} {
		idx.Add(&intRecord{Value: v})
	}
	var got []int32
	idx.Range(15, 45, func(pos uint32) bool {
		rec, _ := idx.Table.Read(pos)
		got = append(got, rec.Value)
		return true
	})
	want := []int32{20, 30, 40}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestIndexedStaysConsistentAcrossOverwriteOnFull(t *testing.T) {
	idx := newIndexedTable(3)
	for _, v := range []int32{1, 2, 3} {
		idx.Add(&intRecord{Value: v})
	}
	// Table is full; this overwrites the oldest (1) and must drop its
	// index entry via BeforeRemove.
	idx.Add(&intRecord{Value: 4})
	if _, ok := idx.Find(1); ok {
		t.Fatal("key 1 should have been evicted from the index")
	}
	if _, ok := idx.Find(4); !ok {
		t.Fatal("key 4 should be indexed")
	}
	if len(idx.entries) != 3 {
		t.Fatalf("index has %d entries, want 3", len(idx.entries))
	}
}

func TestIndexedStaysConsistentAcrossRemove(t *testing.T) {
	idx := newIndexedTable(5)
	for _, v := range []int32{1, 2, 3, 4} {
		idx.Add(&intRecord{Value: v})
	}
	if err := idx.Table.Remove(idx.BegPos()); err != nil {
		t.Fatal(err)
	}
	if _, ok := idx.Find(1); ok {
		t.Fatal("key 1 should have been removed from the index")
	}
	for _, v := range []int32{2, 3, 4} {
		if _, ok := idx.Find(v); !ok {
			t.Fatalf("key %d should still be indexed after a front removal", v)
		}
	}
}
