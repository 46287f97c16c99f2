package tabular

// streaming.go wraps CSV input so it can be parsed without buffering the
// whole file:
//
//   - the UTF-8 BOM that Windows tools prepend is dropped
//   - invalid UTF-8 sequences become U+FFFD instead of failing the parse
//   - bytes consumed are counted for progress reporting
//
// Use WrapForStreaming to apply all three in the correct order.

import (
	"io"
	"sync/atomic"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// CountingReader tracks bytes read. BytesRead is safe to call from another
// goroutine while the reader is being consumed.
type CountingReader struct {
	reader io.Reader
	read   atomic.Int64
	total  int64
	notify func(read, total int64)
}

// NewCountingReader creates a counting reader. total may be zero when
// unknown; notify may be nil.
func NewCountingReader(r io.Reader, total int64, notify func(read, total int64)) *CountingReader {
	return &CountingReader{reader: r, total: total, notify: notify}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		read := r.read.Add(int64(n))
		if r.notify != nil {
			r.notify(read, r.total)
		}
	}
	return n, err
}

// BytesRead returns the bytes consumed so far.
func (r *CountingReader) BytesRead() int64 {
	return r.read.Load()
}

// Progress returns the read progress as a percentage (0-100), or 0 if the
// total is unknown.
func (r *CountingReader) Progress() int {
	if r.total <= 0 {
		return 0
	}
	p := int(r.read.Load() * 100 / r.total)
	if p > 100 {
		p = 100
	}
	return p
}

// WrapForStreaming wraps r with byte counting, BOM removal and UTF-8
// sanitization. Counting sits closest to the source so progress compares
// against the on-disk size.
func WrapForStreaming(r io.Reader, totalSize int64, notify func(read, total int64)) (io.Reader, *CountingReader) {
	counter := NewCountingReader(r, totalSize, notify)
	return transform.NewReader(counter, unicode.UTF8BOM.NewDecoder()), counter
}
