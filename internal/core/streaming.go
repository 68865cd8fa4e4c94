package core

// streaming.go prepares an upload stream for CSV parsing without loading the
// whole file into memory:
//
//   - Byte order marks are stripped; UTF-16 files with a BOM are decoded.
//   - Invalid UTF-8 sequences are replaced with U+FFFD.
//   - Bytes consumed are counted for progress reporting.

import (
	"io"
	"sync/atomic"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// CountingReader wraps an io.Reader to track bytes read.
// BytesRead is safe to call from another goroutine.
type CountingReader struct {
	reader io.Reader
	read   atomic.Int64
	Total  int64 // 0 if unknown
}

// NewCountingReader creates a counting reader with optional total size.
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{reader: r, Total: total}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.read.Add(int64(n))
	return n, err
}

// BytesRead returns the number of bytes consumed so far.
func (r *CountingReader) BytesRead() int64 {
	return r.read.Load()
}

// Percent returns the read progress as a percentage (0-100).
// Returns 0 if total is unknown.
func (r *CountingReader) Percent() int {
	if r.Total <= 0 {
		return 0
	}
	p := int(r.BytesRead() * 100 / r.Total)
	if p > 100 {
		p = 100
	}
	return p
}

// WrapForStreaming decodes r as UTF-8 (honouring a leading BOM) and counts
// the raw bytes consumed.
//
// Counting wraps the raw stream so Percent compares like with like.
func WrapForStreaming(r io.Reader, totalSize int64) (io.Reader, *CountingReader) {
	counter := NewCountingReader(r, totalSize)
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	return transform.NewReader(counter, decoder), counter
}
