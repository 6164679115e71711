package txfile

import (
	"bytes"
	"path/filepath"
	"testing"
)

func newTestCachedFile(t *testing.T, alg ChecksumAlgorithm) (*CachedFile, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "data")
	raw, err := OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	region := NewRegion(testPageSize, PageDataSize(testPageSize, alg), 0, 0, testPageSize*testPageCount)
	cf, err := NewCachedFile(raw, region, testPageSize, testPageCount, alg)
	if err != nil {
		t.Fatal(err)
	}
	return cf, path
}

func TestCachedFileReadsNeverWrittenPageWithChecksumsEnabled(t *testing.T) {
	cf, _ := newTestCachedFile(t, ChecksumXXH3)
	cf.Start()
	dataSize := cf.pageDataSize()
	buf := make([]byte, dataSize)
	if err := cf.ReadAt(buf, 0); err != nil {
		t.Fatalf("ReadAt on a never-written page: %v", err)
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d = %d, want 0 on a never-written page", i, b)
		}
	}
}

func TestCachedFileRoundTripsWithChecksumsEnabled(t *testing.T) {
	cf, _ := newTestCachedFile(t, ChecksumXXH3)
	cf.Start()
	dataSize := cf.pageDataSize()
	want := bytes.Repeat([]byte{0xAB}, dataSize)
	if err := cf.WriteAt(want, 0); err != nil {
		t.Fatal(err)
	}
	if err := cf.Stop(); err != nil {
		t.Fatal(err)
	}

	cf.cache.Discard() // force the next read to reload from disk
	got := make([]byte, dataSize)
	cf.Start()
	if err := cf.ReadAt(got, 0); err != nil {
		t.Fatalf("ReadAt after reload: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestCachedFileDetectsCorruption(t *testing.T) {
	cf, path := newTestCachedFile(t, ChecksumXXH3)
	cf.Start()
	dataSize := cf.pageDataSize()
	data := bytes.Repeat([]byte{0x11}, dataSize)
	if err := cf.WriteAt(data, 0); err != nil {
		t.Fatal(err)
	}
	if err := cf.Stop(); err != nil {
		t.Fatal(err)
	}
	cf.cache.Discard()

	// Flip a content byte directly on the backing file without touching its
	// checksum trailer, simulating on-disk corruption.
	raw, err := OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer raw.Close()
	corrupt := []byte{0xFF}
	if err := raw.WriteAt(corrupt, 0); err != nil {
		t.Fatal(err)
	}

	cf.Start()
	buf := make([]byte, dataSize)
	err = cf.ReadAt(buf, 0)
	if err == nil {
		t.Fatal("ReadAt on corrupted page succeeded, want ErrChecksumMismatch")
	}
}
