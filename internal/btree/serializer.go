// Copyright (c) 2025 SciGo PageDB Library Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package btree

import (
	"encoding/binary"
	"fmt"

	"github.com/scigolib/pagedb/internal/utils"
)

// MaxSerializedNodeSize caps the encoded size of one tree node.
const MaxSerializedNodeSize = 64 * 1024

// NodeSerializer encodes tree nodes into record payloads. Two on-disk
// layouts exist, both little-endian and both starting with a 12-byte prefix
// of parent id, entry count and child count:
//
//	fixed keys:    entries are key||value, back to back
//	variable keys: entries are keyLen(int32) | keyBytes | value
//
// Variable-length values are not supported. The node id is not part of the
// payload; it lives in the record chain head and is supplied on decode.
type NodeSerializer[K, V any] struct {
	keys   Codec[K]
	values Codec[V]
}

// NewNodeSerializer creates a serializer for the given key and value codecs.
// Value codecs must be fixed-size.
func NewNodeSerializer[K, V any](keys Codec[K], values Codec[V]) (*NodeSerializer[K, V], error) {
	if !values.Fixed() {
		return nil, fmt.Errorf("variable-length tree values: %w", utils.ErrNotSupported)
	}
	return &NodeSerializer[K, V]{keys: keys, values: values}, nil
}

// Serialize encodes the node. The result must stay under
// MaxSerializedNodeSize or the call fails.
func (s *NodeSerializer[K, V]) Serialize(n *Node[K, V]) ([]byte, error) {
	buf := make([]byte, 12, 12+len(n.entries)*(s.values.Size()+8)+len(n.children)*4)
	utils.PutUint32(buf[0:], n.parentID)
	utils.PutUint32(buf[4:], uint32(len(n.entries)))  //nolint:gosec // G115: entry counts are small
	utils.PutUint32(buf[8:], uint32(len(n.children))) //nolint:gosec // G115: child counts are small

	for i := range n.entries {
		keyBytes, err := s.keys.Marshal(n.entries[i].Key)
		if err != nil {
			return nil, utils.WrapError("key marshal failed", err)
		}
		if s.keys.Fixed() {
			if len(keyBytes) != s.keys.Size() {
				return nil, fmt.Errorf("fixed key codec produced %d bytes, want %d", len(keyBytes), s.keys.Size())
			}
		} else {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(keyBytes))) //nolint:gosec // G115: key lengths are small
		}
		buf = append(buf, keyBytes...)

		valueBytes, err := s.values.Marshal(n.entries[i].Value)
		if err != nil {
			return nil, utils.WrapError("value marshal failed", err)
		}
		if len(valueBytes) != s.values.Size() {
			return nil, fmt.Errorf("fixed value codec produced %d bytes, want %d", len(valueBytes), s.values.Size())
		}
		buf = append(buf, valueBytes...)
	}
	for _, child := range n.children {
		buf = binary.LittleEndian.AppendUint32(buf, child)
	}

	if len(buf) >= MaxSerializedNodeSize {
		return nil, fmt.Errorf("serialized node %d bytes exceeds maximum %d", len(buf), MaxSerializedNodeSize)
	}
	return buf, nil
}

// Deserialize decodes a node from a record payload, assigning it the given
// id.
func (s *NodeSerializer[K, V]) Deserialize(id uint32, data []byte) (*Node[K, V], error) {
	if len(data) < 12 {
		return nil, utils.Corrupted("node %d payload %d bytes, want at least 12", id, len(data))
	}
	parentID := utils.Uint32(data[0:])
	entryCount := int(utils.Uint32(data[4:]))
	childCount := int(utils.Uint32(data[8:]))
	pos := 12

	n := &Node[K, V]{id: id, parentID: parentID}
	if entryCount > 0 {
		n.entries = make([]Entry[K, V], 0, entryCount)
	}
	for i := 0; i < entryCount; i++ {
		keyLen := s.keys.Size()
		if !s.keys.Fixed() {
			if pos+4 > len(data) {
				return nil, utils.Corrupted("node %d truncated at entry %d key length", id, i)
			}
			keyLen = int(int32(utils.Uint32(data[pos:]))) //nolint:gosec // signed length per format
			pos += 4
			if keyLen < 0 {
				return nil, utils.Corrupted("node %d entry %d has negative key length %d", id, i, keyLen)
			}
		}
		if pos+keyLen+s.values.Size() > len(data) {
			return nil, utils.Corrupted("node %d truncated at entry %d", id, i)
		}
		key, err := s.keys.Unmarshal(data[pos : pos+keyLen])
		if err != nil {
			return nil, utils.WrapError("key unmarshal failed", err)
		}
		pos += keyLen
		value, err := s.values.Unmarshal(data[pos : pos+s.values.Size()])
		if err != nil {
			return nil, utils.WrapError("value unmarshal failed", err)
		}
		pos += s.values.Size()
		n.entries = append(n.entries, Entry[K, V]{Key: key, Value: value})
	}

	if pos+childCount*4 > len(data) {
		return nil, utils.Corrupted("node %d truncated at child list", id)
	}
	if childCount > 0 {
		n.children = make([]uint32, 0, childCount)
	}
	for i := 0; i < childCount; i++ {
		n.children = append(n.children, utils.Uint32(data[pos:]))
		pos += 4
	}
	return n, nil
}
