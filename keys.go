package pagedb

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/scigolib/pagedb/internal/utils"
)

// RowID is the 16-byte unique identifier of a row.
type RowID = [16]byte

// CompositeKey is the secondary index key: rows are ordered by nationality,
// then age. The secondary index is non-unique.
type CompositeKey struct {
	Nationality string
	Age         int32
}

func compareRowIDs(a, b RowID) int {
	return bytes.Compare(a[:], b[:])
}

func compareCompositeKeys(a, b CompositeKey) int {
	if c := strings.Compare(a.Nationality, b.Nationality); c != 0 {
		return c
	}
	switch {
	case a.Age < b.Age:
		return -1
	case a.Age > b.Age:
		return 1
	}
	return 0
}

// rowIDCodec encodes the fixed 16-byte primary key.
type rowIDCodec struct{}

func (rowIDCodec) Fixed() bool { return true }
func (rowIDCodec) Size() int   { return 16 }

func (rowIDCodec) Marshal(id RowID) ([]byte, error) {
	out := make([]byte, 16)
	copy(out, id[:])
	return out, nil
}

func (rowIDCodec) Unmarshal(data []byte) (RowID, error) {
	var id RowID
	if len(data) != 16 {
		return id, fmt.Errorf("row id codec: got %d bytes, want 16", len(data))
	}
	copy(id[:], data)
	return id, nil
}

// compositeKeyCodec encodes the variable-length secondary key as a 4-byte
// little-endian age followed by the nationality bytes.
type compositeKeyCodec struct{}

func (compositeKeyCodec) Fixed() bool { return false }
func (compositeKeyCodec) Size() int   { return -1 }

func (compositeKeyCodec) Marshal(k CompositeKey) ([]byte, error) {
	out := make([]byte, 4+len(k.Nationality))
	utils.PutUint32(out, uint32(k.Age)) //nolint:gosec // G115: round-trips through the same cast
	copy(out[4:], k.Nationality)
	return out, nil
}

func (compositeKeyCodec) Unmarshal(data []byte) (CompositeKey, error) {
	if len(data) < 4 {
		return CompositeKey{}, fmt.Errorf("composite key codec: got %d bytes, want at least 4", len(data))
	}
	return CompositeKey{
		Age:         int32(utils.Uint32(data)), //nolint:gosec // G115: round-trips through the same cast
		Nationality: string(data[4:]),
	}, nil
}
