// Package testutil provides test utilities for the pagedb storage layers.
package testutil

import (
	"errors"
	"io"
)

// MemStream is an in-memory read/write stream for testing the block and
// record layers without touching the filesystem.
type MemStream struct {
	data []byte
}

// NewMemStream creates an empty in-memory stream.
func NewMemStream() *MemStream {
	return &MemStream{}
}

// NewMemStreamWith creates an in-memory stream seeded with data.
func NewMemStreamWith(data []byte) *MemStream {
	return &MemStream{data: data}
}

// ReadAt implements io.ReaderAt.
func (m *MemStream) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n = copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt, growing the stream as needed.
func (m *MemStream) WriteAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	end := off + int64(len(p))
	if end > int64(len(m.data)) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	return copy(m.data[off:], p), nil
}

// Size returns the current stream length.
func (m *MemStream) Size() (int64, error) {
	return int64(len(m.data)), nil
}

// Sync is a no-op for in-memory streams.
func (m *MemStream) Sync() error {
	return nil
}

// Bytes exposes the backing buffer for assertions.
func (m *MemStream) Bytes() []byte {
	return m.data
}
