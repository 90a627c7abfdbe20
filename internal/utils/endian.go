package utils

import "encoding/binary"

// ReaderAt is a simplified interface for io.ReaderAt.
type ReaderAt interface {
	ReadAt(p []byte, off int64) (n int, err error)
}

// ReadUint32At reads a little-endian 32-bit value at the specified offset.
func ReadUint32At(r ReaderAt, offset int64) (uint32, error) {
	buf := GetBuffer(4)
	defer ReleaseBuffer(buf)

	if _, err := r.ReadAt(buf, offset); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// Uint32 decodes a little-endian 32-bit value from the start of b.
func Uint32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

// PutUint32 encodes v little-endian into the first 4 bytes of b.
func PutUint32(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b, v)
}

// Int64 decodes a little-endian signed 64-bit value from the start of b.
func Int64(b []byte) int64 {
	return int64(binary.LittleEndian.Uint64(b))
}

// PutInt64 encodes v little-endian into the first 8 bytes of b.
func PutInt64(b []byte, v int64) {
	binary.LittleEndian.PutUint64(b, uint64(v))
}
