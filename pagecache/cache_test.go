package pagecache

import (
	"fmt"
	"sync"
	"testing"
)

type memSaver struct {
	mu    sync.Mutex
	pages map[Index][]byte
	saves int
	loads int
}

func newMemSaver(pageSize int) *memSaver {
	return &memSaver{pages: make(map[Index][]byte)}
}

func (s *memSaver) SavePage(index Index, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	cp := make([]byte, len(data))
	copy(cp, data)
	s.pages[index] = cp
	return nil
}

func (s *memSaver) LoadPage(index Index) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if data, ok := s.pages[index]; ok {
		cp := make([]byte, len(data))
		copy(cp, data)
		return cp, nil
	}
	return make([]byte, 64), nil
}

func TestCacheGetMissLoadsFromSaver(t *testing.T) {
	saver := newMemSaver(64)
	c, err := New(64, 4, saver)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(0); err != nil {
		t.Fatal(err)
	}
	if saver.loads != 1 {
		t.Fatalf("want 1 load, got %d", saver.loads)
	}
	if _, err := c.Get(0); err != nil {
		t.Fatal(err)
	}
	if saver.loads != 1 {
		t.Fatalf("second get should hit pool, want 1 load, got %d", saver.loads)
	}
}

func TestCacheEvictionSavesDirtyPage(t *testing.T) {
	saver := newMemSaver(64)
	c, err := New(64, 2, saver)
	if err != nil {
		t.Fatal(err)
	}
	page, err := c.Get(0)
	if err != nil {
		t.Fatal(err)
	}
	copy(page.Data, []byte("dirty-page-0"))
	c.Touch(0)

	// Fill the pool past capacity so index 0 is evicted.
	for i := Index(1); i <= 2; i++ {
		if _, err := c.Get(i); err != nil {
			t.Fatal(err)
		}
	}

	if saver.saves != 1 {
		t.Fatalf("want 1 save from eviction, got %d", saver.saves)
	}
	saved := saver.pages[0]
	if string(saved[:12]) != "dirty-page-0" {
		t.Fatalf("evicted page contents wrong: %q", saved[:12])
	}
}

func TestCacheFlushSavesWithoutEviction(t *testing.T) {
	saver := newMemSaver(64)
	c, err := New(64, 4, saver)
	if err != nil {
		t.Fatal(err)
	}
	for i := Index(0); i < 3; i++ {
		page, err := c.Get(i)
		if err != nil {
			t.Fatal(err)
		}
		copy(page.Data, []byte(fmt.Sprintf("page-%d", i)))
		c.Touch(i)
	}
	if err := c.Flush(); err != nil {
		t.Fatal(err)
	}
	if saver.saves != 3 {
		t.Fatalf("want 3 saves, got %d", saver.saves)
	}
	if c.Empty() {
		t.Fatal("flush should not evict resident pages")
	}
}

func TestCacheDiscardDropsDirtyWithoutSaving(t *testing.T) {
	saver := newMemSaver(64)
	c, err := New(64, 4, saver)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(0); err != nil {
		t.Fatal(err)
	}
	c.Touch(0)
	c.Discard()
	if saver.saves != 0 {
		t.Fatalf("discard must not save, got %d saves", saver.saves)
	}
	if !c.Empty() {
		t.Fatal("discard should evict all pages")
	}
}
