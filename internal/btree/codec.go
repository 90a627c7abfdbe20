package btree

import (
	"fmt"

	"github.com/scigolib/pagedb/internal/utils"
)

// Codec serializes keys or values of a tree. Fixed-size codecs must encode
// every value to exactly Size bytes; variable-size codecs may produce any
// length and report Fixed() == false.
type Codec[T any] interface {
	Fixed() bool
	Size() int
	Marshal(v T) ([]byte, error)
	Unmarshal(data []byte) (T, error)
}

// Uint32Codec encodes 32-bit values little-endian. It is the codec used for
// record ids stored as tree values.
type Uint32Codec struct{}

// Fixed reports a fixed 4-byte encoding.
func (Uint32Codec) Fixed() bool { return true }

// Size returns the encoded size.
func (Uint32Codec) Size() int { return 4 }

// Marshal encodes v little-endian.
func (Uint32Codec) Marshal(v uint32) ([]byte, error) {
	buf := make([]byte, 4)
	utils.PutUint32(buf, v)
	return buf, nil
}

// Unmarshal decodes a little-endian 32-bit value.
func (Uint32Codec) Unmarshal(data []byte) (uint32, error) {
	if len(data) != 4 {
		return 0, fmt.Errorf("uint32 codec: got %d bytes, want 4", len(data))
	}
	return utils.Uint32(data), nil
}
