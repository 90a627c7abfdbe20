// Copyright (c) 2025 SciGo PageDB Library Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Package btree implements a disk-backed B-tree whose nodes are persisted
// as records. The tree is order 2T+1: non-root nodes hold between T and 2T
// entries, a node overflowing past 2T splits, a non-root node falling under
// T is rebalanced by borrowing from or merging with a sibling.
package btree

import (
	"fmt"
	"slices"

	"github.com/scigolib/pagedb/internal/utils"
)

// Tree is a B-tree over a node manager. A unique tree rejects duplicate
// keys; a non-unique tree allows them and routes duplicates leftward.
type Tree[K, V any] struct {
	manager *NodeManager[K, V]
	unique  bool
}

// NewTree creates a tree over the given manager.
func NewTree[K, V any](manager *NodeManager[K, V], unique bool) *Tree[K, V] {
	return &Tree[K, V]{manager: manager, unique: unique}
}

// Manager exposes the node manager, mainly for tests and invariant checks.
func (t *Tree[K, V]) Manager() *NodeManager[K, V] {
	return t.manager
}

// searchEntries locates key among the node's entries, returning the index of
// an equal key or the complement of the insertion index.
func (t *Tree[K, V]) searchEntries(n *Node[K, V], key K) int {
	var zero V
	probe := Entry[K, V]{Key: key, Value: zero}
	return utils.BinarySearch(n.entries, probe, t.manager.compareEntries)
}

// searchEntriesBoundary is the duplicate-aware variant used by scans: on a
// run of equal keys it reports the first or last occurrence.
func (t *Tree[K, V]) searchEntriesBoundary(n *Node[K, V], key K, firstOccurrence bool) int {
	var zero V
	probe := Entry[K, V]{Key: key, Value: zero}
	return utils.BinarySearchBoundary(n.entries, probe, t.manager.compareEntries, firstOccurrence)
}

// child loads child i of n.
func (t *Tree[K, V]) child(n *Node[K, V], i int) (*Node[K, V], error) {
	if i < 0 || i >= len(n.children) {
		return nil, utils.Corrupted("node %d has no child at index %d", n.id, i)
	}
	c, err := t.manager.Find(n.children[i])
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, utils.Corrupted("node %d child %d missing", n.id, n.children[i])
	}
	return c, nil
}

// Get returns the entry stored under key.
func (t *Tree[K, V]) Get(key K) (Entry[K, V], bool, error) {
	var zero Entry[K, V]
	n := t.manager.Root()
	for {
		r := t.searchEntries(n, key)
		if r >= 0 {
			return n.entries[r], true, nil
		}
		if n.IsLeaf() {
			return zero, false, nil
		}
		c, err := t.child(n, ^r)
		if err != nil {
			return zero, false, err
		}
		n = c
	}
}

// Insert adds an entry. In a unique tree an existing key fails with
// ErrKeyExists before any mutation. Changes are persisted before returning.
func (t *Tree[K, V]) Insert(key K, value V) error {
	n, r, err := t.findNodeForInsertion(key)
	if err != nil {
		return err
	}
	if r >= 0 && t.unique {
		return fmt.Errorf("insert: %w", utils.ErrKeyExists)
	}

	at := r
	if r < 0 {
		at = ^r
	}
	if err := n.insertEntryAt(at, Entry[K, V]{Key: key, Value: value}); err != nil {
		return err
	}
	t.manager.MarkChanged(n)

	if t.overflowing(n) {
		if err := t.split(n); err != nil {
			return err
		}
	}
	return t.manager.SaveChanges()
}

// findNodeForInsertion descends to the node an insert of key should mutate.
// A unique tree stops at any exact hit (the insert will raise); a non-unique
// tree descends through the matched index so duplicates accumulate leftward.
func (t *Tree[K, V]) findNodeForInsertion(key K) (*Node[K, V], int, error) {
	n := t.manager.Root()
	for {
		r := t.searchEntries(n, key)
		if r >= 0 {
			if t.unique || n.IsLeaf() {
				return n, r, nil
			}
			c, err := t.child(n, r)
			if err != nil {
				return nil, 0, err
			}
			n = c
			continue
		}
		if n.IsLeaf() {
			return n, r, nil
		}
		c, err := t.child(n, ^r)
		if err != nil {
			return nil, 0, err
		}
		n = c
	}
}

func (t *Tree[K, V]) overflowing(n *Node[K, V]) bool {
	return len(n.entries) > 2*t.manager.MinEntries()
}

// split divides an overflowing node around its median entry, pushing the
// median into the parent and recursing upward while the parent overflows.
func (t *Tree[K, V]) split(n *Node[K, V]) error {
	h := t.manager.MinEntries()
	separator := n.entries[h]

	rightEntries := slices.Clone(n.entries[h+1:])
	var rightChildren []uint32
	if !n.IsLeaf() {
		rightChildren = slices.Clone(n.children[h+1:])
	}

	right, err := t.manager.Create(rightEntries, rightChildren)
	if err != nil {
		return err
	}
	for _, childID := range rightChildren {
		c, err := t.manager.Find(childID)
		if err != nil {
			return err
		}
		if c == nil {
			return utils.Corrupted("node %d child %d missing during split", n.id, childID)
		}
		c.parentID = right.id
		t.manager.MarkChanged(c)
	}

	n.entries = n.entries[:h]
	if !n.IsLeaf() {
		n.children = n.children[:h+1]
	}
	t.manager.MarkChanged(n)

	if n.parentID == 0 {
		newRoot, err := t.manager.CreateNewRoot(separator, n.id, right.id)
		if err != nil {
			return err
		}
		n.parentID = newRoot.id
		right.parentID = newRoot.id
		t.manager.MarkChanged(n)
		t.manager.MarkChanged(right)
		return nil
	}

	parent, err := t.manager.Find(n.parentID)
	if err != nil {
		return err
	}
	if parent == nil {
		return utils.Corrupted("node %d parent %d missing during split", n.id, n.parentID)
	}
	right.parentID = parent.id
	t.manager.MarkChanged(right)

	r := t.searchEntries(parent, separator.Key)
	at := r
	if r < 0 {
		at = ^r
	}
	if err := parent.insertEntryAt(at, separator); err != nil {
		return err
	}
	if err := parent.insertChildAt(at+1, right.id); err != nil {
		return err
	}
	t.manager.MarkChanged(parent)

	if t.overflowing(parent) {
		return t.split(parent)
	}
	return nil
}

// Delete removes the entry with the given key from a unique tree. It
// reports whether an entry was removed. Changes are persisted before
// returning.
func (t *Tree[K, V]) Delete(key K) (bool, error) {
	if !t.unique {
		return false, fmt.Errorf("delete by key on a non-unique tree: %w", utils.ErrNotSupported)
	}

	n := t.manager.Root()
	for {
		r := t.searchEntries(n, key)
		if r >= 0 {
			if err := t.removeAt(n, r); err != nil {
				return false, err
			}
			return true, t.manager.SaveChanges()
		}
		if n.IsLeaf() {
			return false, nil
		}
		c, err := t.child(n, ^r)
		if err != nil {
			return false, err
		}
		n = c
	}
}

// DeleteValue removes, from a non-unique tree, every entry whose key equals
// key and whose value matches per equal. It reports whether anything was
// removed. Changes are persisted before returning.
func (t *Tree[K, V]) DeleteValue(key K, value V, equal func(a, b V) bool) (bool, error) {
	if t.unique {
		return false, fmt.Errorf("delete by value on a unique tree: %w", utils.ErrNotSupported)
	}

	deleted := false
	for {
		// Mutation invalidates a scan, so each removal restarts from the
		// first occurrence of the key.
		tr, err := t.newTraverser(key, true, true)
		if err != nil {
			return deleted, err
		}
		removed := false
		for {
			n, i, ok, err := tr.next()
			if err != nil {
				return deleted, err
			}
			if !ok || t.manager.CompareKeys(n.entries[i].Key, key) > 0 {
				break
			}
			if equal(n.entries[i].Value, value) {
				if err := t.removeAt(n, i); err != nil {
					return deleted, err
				}
				removed = true
				deleted = true
				break
			}
		}
		if !removed {
			break
		}
	}
	if deleted {
		return deleted, t.manager.SaveChanges()
	}
	return deleted, nil
}

// removeAt removes entry i of n. An internal entry is swapped with its
// in-order predecessor so the physical removal always happens in a leaf;
// the leaf is rebalanced when it falls under T.
func (t *Tree[K, V]) removeAt(n *Node[K, V], i int) error {
	target := n
	if !n.IsLeaf() {
		leaf, err := t.child(n, i)
		if err != nil {
			return err
		}
		for !leaf.IsLeaf() {
			leaf, err = t.child(leaf, len(leaf.children)-1)
			if err != nil {
				return err
			}
		}
		n.entries[i] = leaf.entries[len(leaf.entries)-1]
		if err := leaf.removeEntryAt(len(leaf.entries) - 1); err != nil {
			return err
		}
		t.manager.MarkChanged(n)
		t.manager.MarkChanged(leaf)
		target = leaf
	} else {
		if err := n.removeEntryAt(i); err != nil {
			return err
		}
		t.manager.MarkChanged(n)
	}

	if target.parentID != 0 && len(target.entries) < t.manager.MinEntries() {
		return t.rebalance(target)
	}
	return nil
}

// rebalance restores the occupancy invariant of an under-full non-root
// node: borrow from a sibling with spare entries, else merge with one.
func (t *Tree[K, V]) rebalance(n *Node[K, V]) error {
	parent, err := t.manager.Find(n.parentID)
	if err != nil {
		return err
	}
	if parent == nil {
		return utils.Corrupted("node %d parent %d missing during rebalance", n.id, n.parentID)
	}
	i := parent.childIndex(n.id)
	if i < 0 {
		return utils.Corrupted("node %d not found among children of %d", n.id, parent.id)
	}

	minEntries := t.manager.MinEntries()

	var right *Node[K, V]
	if i+1 < len(parent.children) {
		right, err = t.child(parent, i+1)
		if err != nil {
			return err
		}
		if len(right.entries) > minEntries {
			return t.rotateLeft(n, parent, right, i)
		}
	}

	var left *Node[K, V]
	if i > 0 {
		left, err = t.child(parent, i-1)
		if err != nil {
			return err
		}
		if len(left.entries) > minEntries {
			return t.rotateRight(n, parent, left, i)
		}
	}

	if right != nil {
		return t.merge(parent, i, n, right)
	}
	return t.merge(parent, i-1, left, n)
}

// rotateLeft borrows the right sibling's first entry through the parent
// separator at index i.
func (t *Tree[K, V]) rotateLeft(n, parent, right *Node[K, V], i int) error {
	n.entries = append(n.entries, parent.entries[i])
	parent.entries[i] = right.entries[0]
	if err := right.removeEntryAt(0); err != nil {
		return err
	}
	if !n.IsLeaf() {
		moved := right.children[0]
		if err := right.removeChildAt(0); err != nil {
			return err
		}
		n.children = append(n.children, moved)
		if err := t.reparent(moved, n.id); err != nil {
			return err
		}
	}
	t.manager.MarkChanged(n)
	t.manager.MarkChanged(parent)
	t.manager.MarkChanged(right)
	return nil
}

// rotateRight borrows the left sibling's last entry through the parent
// separator at index i-1.
func (t *Tree[K, V]) rotateRight(n, parent, left *Node[K, V], i int) error {
	if err := n.insertEntryAt(0, parent.entries[i-1]); err != nil {
		return err
	}
	parent.entries[i-1] = left.entries[len(left.entries)-1]
	if err := left.removeEntryAt(len(left.entries) - 1); err != nil {
		return err
	}
	if !n.IsLeaf() {
		moved := left.children[len(left.children)-1]
		if err := left.removeChildAt(len(left.children) - 1); err != nil {
			return err
		}
		if err := n.insertChildAt(0, moved); err != nil {
			return err
		}
		if err := t.reparent(moved, n.id); err != nil {
			return err
		}
	}
	t.manager.MarkChanged(n)
	t.manager.MarkChanged(parent)
	t.manager.MarkChanged(left)
	return nil
}

// merge folds right into left around the parent separator at sepIdx, drops
// the separator and the right child pointer from the parent, and deletes
// the merged-away node. An emptied root hands the root slot to the merged
// child; an under-full non-root parent recurses.
func (t *Tree[K, V]) merge(parent *Node[K, V], sepIdx int, left, right *Node[K, V]) error {
	left.entries = append(left.entries, parent.entries[sepIdx])
	left.entries = append(left.entries, right.entries...)
	for _, childID := range right.children {
		if err := t.reparent(childID, left.id); err != nil {
			return err
		}
	}
	left.children = append(left.children, right.children...)

	if err := parent.removeEntryAt(sepIdx); err != nil {
		return err
	}
	if err := parent.removeChildAt(sepIdx + 1); err != nil {
		return err
	}
	t.manager.MarkChanged(left)
	t.manager.MarkChanged(parent)
	if err := t.manager.Delete(right); err != nil {
		return err
	}

	if parent.parentID == 0 && len(parent.entries) == 0 {
		if err := t.manager.MakeRoot(left); err != nil {
			return err
		}
		return t.manager.Delete(parent)
	}
	if parent.parentID != 0 && len(parent.entries) < t.manager.MinEntries() {
		return t.rebalance(parent)
	}
	return nil
}

func (t *Tree[K, V]) reparent(childID, parentID uint32) error {
	c, err := t.manager.Find(childID)
	if err != nil {
		return err
	}
	if c == nil {
		return utils.Corrupted("child %d missing while reparenting", childID)
	}
	c.parentID = parentID
	t.manager.MarkChanged(c)
	return nil
}
