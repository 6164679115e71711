package txfile

import "testing"

func TestRegionOffsetsAreAligned(t *testing.T) {
	r := NewRegion(64, 64, 10, 20, 30)
	if r.InfoOffset() != 0 {
		t.Fatalf("info offset = %d, want 0", r.InfoOffset())
	}
	if r.KeyOffset()%64 != 0 {
		t.Fatalf("key offset %d not page-aligned", r.KeyOffset())
	}
	if r.TableOffset(0)%64 != 0 {
		t.Fatalf("table 0 offset %d not page-aligned", r.TableOffset(0))
	}
	if r.TableOffset(1)-r.TableOffset(0) != r.ConvertSize(30) {
		t.Fatalf("table stride should equal one aligned table size")
	}
}

func TestRegionConvertOffsetWithinInfo(t *testing.T) {
	r := NewRegion(64, 64, 10, 20, 30)
	if got := r.ConvertOffset(5); got != 5 {
		t.Fatalf("ConvertOffset(5) = %d, want 5 (within info, no padding yet)", got)
	}
}

func TestRegionConvertOffsetWithinKey(t *testing.T) {
	r := NewRegion(64, 64, 10, 20, 30)
	raw := int64(10 + 5) // 5 bytes into the key region
	got := r.ConvertOffset(raw)
	want := r.KeyOffset() + 5
	if got != want {
		t.Fatalf("ConvertOffset(%d) = %d, want %d", raw, got, want)
	}
}

func TestRegionConvertOffsetWithinSecondTable(t *testing.T) {
	r := NewRegion(64, 64, 10, 20, 30)
	raw := int64(10 + 20 + 30 + 7) // 7 bytes into the second table
	got := r.ConvertOffset(raw)
	want := r.TableOffset(1) + 7
	if got != want {
		t.Fatalf("ConvertOffset(%d) = %d, want %d", raw, got, want)
	}
}
