// Copyright (c) 2025 SciGo PageDB Library Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package btree

import (
	"weak"

	"github.com/scigolib/pagedb/internal/record"
	"github.com/scigolib/pagedb/internal/utils"
)

const (
	// RootPointerRecordID is the record whose 4-byte payload holds the id
	// of the current root node.
	RootPointerRecordID = 1

	// DefaultMinEntriesPerNode is the default T parameter of the tree.
	DefaultMinEntriesPerNode = 36

	strongCacheCapacity = 200
	weakSweepInterval   = 1000
)

// KeyComparer orders keys. Negative when a < b, zero when equal.
type KeyComparer[K any] func(a, b K) int

// NodeManager owns the lifetime of tree nodes: it loads them from record
// storage, keeps them discoverable through a weak map while any owner holds
// them, pins a bounded FIFO of recently loaded nodes, tracks dirty nodes and
// persists them on SaveChanges. Record id 1 pins the current root.
type NodeManager[K, V any] struct {
	records    *record.Storage
	serializer *NodeSerializer[K, V]
	keyCmp     KeyComparer[K]
	minEntries int

	root    *Node[K, V]
	loaded  map[uint32]weak.Pointer[Node[K, V]]
	pinned  []*Node[K, V]
	inserts int
	dirty   map[uint32]*Node[K, V]
}

// NewNodeManager creates a manager over records. On a fresh file it creates
// the root pointer record (id 1) and an empty root node (record id 2);
// otherwise it loads the pinned root.
func NewNodeManager[K, V any](
	records *record.Storage,
	serializer *NodeSerializer[K, V],
	keyCmp KeyComparer[K],
	minEntries int,
) (*NodeManager[K, V], error) {
	if minEntries <= 0 {
		minEntries = DefaultMinEntriesPerNode
	}
	m := &NodeManager[K, V]{
		records:    records,
		serializer: serializer,
		keyCmp:     keyCmp,
		minEntries: minEntries,
		loaded:     make(map[uint32]weak.Pointer[Node[K, V]]),
		dirty:      make(map[uint32]*Node[K, V]),
	}

	payload, err := records.Find(RootPointerRecordID)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		if err := m.bootstrap(); err != nil {
			return nil, err
		}
		return m, nil
	}

	if len(payload) != 4 {
		return nil, utils.Corrupted("root pointer record holds %d bytes, want 4", len(payload))
	}
	rootID := utils.Uint32(payload)
	root, err := m.Find(rootID)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, utils.Corrupted("root node %d missing", rootID)
	}
	m.root = root
	return m, nil
}

// bootstrap creates the root pointer record and the initial empty root.
func (m *NodeManager[K, V]) bootstrap() error {
	pointer := make([]byte, 4)
	utils.PutUint32(pointer, RootPointerRecordID+1)
	id, err := m.records.CreateBytes(pointer)
	if err != nil {
		return err
	}
	if id != RootPointerRecordID {
		return utils.Corrupted("root pointer landed on record %d, want %d", id, RootPointerRecordID)
	}

	root, err := m.Create(nil, nil)
	if err != nil {
		return err
	}
	if root.id != RootPointerRecordID+1 {
		return utils.Corrupted("initial root landed on record %d, want %d", root.id, RootPointerRecordID+1)
	}
	m.root = root
	return nil
}

// Root returns the current root node.
func (m *NodeManager[K, V]) Root() *Node[K, V] {
	return m.root
}

// MinEntries returns T, the minimum entry count of non-root nodes.
func (m *NodeManager[K, V]) MinEntries() int {
	return m.minEntries
}

// CompareKeys orders two keys with the configured comparator.
func (m *NodeManager[K, V]) CompareKeys(a, b K) int {
	return m.keyCmp(a, b)
}

// compareEntries orders entries by key only.
func (m *NodeManager[K, V]) compareEntries(a, b Entry[K, V]) int {
	return m.keyCmp(a.Key, b.Key)
}

// Find returns the node stored in the given record, loading and caching it
// when it is not already alive. Returns nil for an absent record.
func (m *NodeManager[K, V]) Find(id uint32) (*Node[K, V], error) {
	if ptr, ok := m.loaded[id]; ok {
		if n := ptr.Value(); n != nil {
			return n, nil
		}
	}

	payload, err := m.records.Find(id)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, nil
	}
	n, err := m.serializer.Deserialize(id, payload)
	if err != nil {
		return nil, err
	}
	m.cacheNode(n)
	return n, nil
}

// Create allocates a record for a new node. The node learns its id from the
// record allocator before the payload is generated.
func (m *NodeManager[K, V]) Create(entries []Entry[K, V], children []uint32) (*Node[K, V], error) {
	var n *Node[K, V]
	var serErr error
	id, err := m.records.CreateWith(func(newID uint32) []byte {
		n = &Node[K, V]{id: newID, entries: entries, children: children}
		payload, err := m.serializer.Serialize(n)
		if err != nil {
			serErr = err
			return nil
		}
		return payload
	})
	if err != nil {
		return nil, err
	}
	if serErr != nil {
		_ = m.records.Delete(id)
		return nil, serErr
	}
	m.cacheNode(n)
	return n, nil
}

// CreateNewRoot creates a root holding a single separator entry with the
// given left and right children and repins the root pointer to it.
func (m *NodeManager[K, V]) CreateNewRoot(e Entry[K, V], leftID, rightID uint32) (*Node[K, V], error) {
	n, err := m.Create([]Entry[K, V]{e}, []uint32{leftID, rightID})
	if err != nil {
		return nil, err
	}
	if err := m.writeRootPointer(n.id); err != nil {
		return nil, err
	}
	m.root = n
	return n, nil
}

// MakeRoot promotes an existing node to root and repins the root pointer.
func (m *NodeManager[K, V]) MakeRoot(n *Node[K, V]) error {
	n.parentID = 0
	m.MarkChanged(n)
	if err := m.writeRootPointer(n.id); err != nil {
		return err
	}
	m.root = n
	return nil
}

func (m *NodeManager[K, V]) writeRootPointer(id uint32) error {
	payload := make([]byte, 4)
	utils.PutUint32(payload, id)
	return m.records.Update(RootPointerRecordID, payload)
}

// Delete removes the node's backing record and forgets the node. Deleting
// the root leaves the root slot empty until the next MakeRoot or
// CreateNewRoot repins it.
func (m *NodeManager[K, V]) Delete(n *Node[K, V]) error {
	if err := m.records.Delete(n.id); err != nil {
		return err
	}
	delete(m.dirty, n.id)
	delete(m.loaded, n.id)
	if m.root == n {
		m.root = nil
	}
	return nil
}

// MarkChanged adds the node to the dirty set. Dirty nodes are held strongly
// until SaveChanges persists them.
func (m *NodeManager[K, V]) MarkChanged(n *Node[K, V]) {
	m.dirty[n.id] = n
}

// SaveChanges serializes every dirty node into its record and clears the
// dirty set.
func (m *NodeManager[K, V]) SaveChanges() error {
	for id, n := range m.dirty {
		payload, err := m.serializer.Serialize(n)
		if err != nil {
			return err
		}
		if err := m.records.Update(id, payload); err != nil {
			return err
		}
	}
	clear(m.dirty)
	return nil
}

// cacheNode registers a freshly loaded or created node: a weak reference
// keeps it discoverable while any owner holds it, and the pinned FIFO keeps
// hot nodes from being collected. When the FIFO fills up the older half is
// dropped; every weakSweepInterval insertions tombstoned weak entries are
// swept.
func (m *NodeManager[K, V]) cacheNode(n *Node[K, V]) {
	m.loaded[n.id] = weak.Make(n)
	m.pinned = append(m.pinned, n)
	if len(m.pinned) >= strongCacheCapacity {
		keep := len(m.pinned) / 2
		kept := make([]*Node[K, V], keep)
		copy(kept, m.pinned[len(m.pinned)-keep:])
		m.pinned = kept
	}

	m.inserts++
	if m.inserts%weakSweepInterval == 0 {
		for id, ptr := range m.loaded {
			if ptr.Value() == nil {
				delete(m.loaded, id)
			}
		}
	}
}
