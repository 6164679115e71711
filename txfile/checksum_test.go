package txfile

import "testing"

func TestChecksumRoundTrips(t *testing.T) {
	data := []byte("some page contents, not page-aligned in length")
	for _, alg := range []ChecksumAlgorithm{ChecksumXXH3, ChecksumFNV1a, ChecksumBlake2b} {
		var buf []byte
		buf = PutChecksum(alg, data, buf)
		if !VerifyChecksum(alg, data, buf) {
			t.Fatalf("algorithm %v: checksum did not verify", alg)
		}
	}
}

func TestChecksumDetectsCorruption(t *testing.T) {
	data := []byte("original contents")
	var buf []byte
	buf = PutChecksum(ChecksumXXH3, data, buf)

	corrupted := append([]byte(nil), data...)
	corrupted[0] ^= 0xFF
	if VerifyChecksum(ChecksumXXH3, corrupted, buf) {
		t.Fatal("expected checksum mismatch to be detected")
	}
}
