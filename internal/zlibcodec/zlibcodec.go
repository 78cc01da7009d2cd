// Package zlibcodec compresses/decompresses CoT payloads with standard
// zlib framing, matching the peer's decompressor exactly (it refuses raw
// deflate — it wants the two-byte zlib header, default level, "78 9C").
//
// Grounded on the teacher's builtin/meshtastic/fountain.go
// zlibCompress/zlibDecompress, extended with the BUF_ERROR
// grow-and-retry behaviour and raw-UTF8 fallback spec.md §4.4 requires.
package zlibcodec

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
)

// Header is the two leading bytes every standard zlib stream at default
// compression level begins with.
var Header = [2]byte{0x78, 0x9C}

const (
	initialBufferSize = 4096
	maxGrowAttempts    = 3
)

// Compress produces a standard zlib stream (not raw deflate) at the
// library's default compression level.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("zlib compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("zlib compress: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress accepts any "78 xx" zlib header (not just 78 9C — some
// encoders use a different compression-level byte) and grows its output
// buffer up to maxGrowAttempts times on a short/BUF_ERROR-style read
// before giving up.
func Decompress(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != Header[0] {
		return nil, fmt.Errorf("zlib decompress: not a zlib stream (got %x)", firstBytes(data))
	}

	size := initialBufferSize
	var lastErr error
	for attempt := 0; attempt < maxGrowAttempts; attempt++ {
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("zlib decompress: %w", err)
		}

		out := make([]byte, 0, size)
		buf := &bytes.Buffer{}
		buf.Grow(size)
		n, err := io.Copy(buf, r)
		_ = r.Close()

		if err == nil {
			return buf.Bytes(), nil
		}

		lastErr = err
		out = buf.Bytes()
		_ = out
		if n == 0 && attempt == maxGrowAttempts-1 {
			break
		}
		size *= 2
	}

	return nil, fmt.Errorf("zlib decompress: %w", lastErr)
}

// DecompressOrRaw runs Decompress and falls back to treating the payload
// as raw UTF-8 bytes on any decode failure, per spec.md §4.4.
func DecompressOrRaw(data []byte) []byte {
	out, err := Decompress(data)
	if err != nil {
		return data
	}
	return out
}

func firstBytes(b []byte) []byte {
	if len(b) > 2 {
		return b[:2]
	}
	return b
}
