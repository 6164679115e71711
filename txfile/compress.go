// Compression of captured backup pages, mirroring the teacher's compress.go
// zstd usage: a shared encoder/decoder allocated once (construction is
// expensive) tuned for encode speed, since compression runs on every
// first-touch page capture (hot path) while decompression only runs on
// cancel or crash recovery (cold path).
package txfile

import "github.com/klauspost/compress/zstd"

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zstdDecoder, _ = zstd.NewReader(nil)
)

func compressPage(data []byte) []byte {
	return zstdEncoder.EncodeAll(data, nil)
}

func decompressPage(compressed []byte) ([]byte, error) {
	return zstdDecoder.DecodeAll(compressed, nil)
}
