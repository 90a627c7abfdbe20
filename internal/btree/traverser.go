// Copyright (c) 2025 SciGo PageDB Library Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package btree

import (
	"iter"

	"github.com/scigolib/pagedb/internal/utils"
)

// traverser walks tree entries in key order across node boundaries, using
// child links for descent and parent links for the climb back. It is
// single-pass and assumes the tree is not mutated while it runs.
type traverser[K, V any] struct {
	t         *Tree[K, V]
	node      *Node[K, V]
	idx       int
	ascending bool
	primed    bool
	done      bool
}

// newTraverser positions a traverser at the scan boundary for key. For an
// ascending scan, orEq starts on the first occurrence of an equal key, else
// just past its last occurrence; descending scans mirror that.
func (t *Tree[K, V]) newTraverser(key K, ascending, orEq bool) (*traverser[K, V], error) {
	moveLeft := ascending == orEq
	n, r, err := t.findNodeForIteration(key, moveLeft)
	if err != nil {
		return nil, err
	}

	var start int
	switch {
	case ascending && orEq:
		if r >= 0 {
			start = r
		} else {
			start = ^r
		}
	case ascending:
		if r >= 0 {
			start = r + 1
		} else {
			start = ^r
		}
	case orEq: // descending
		if r >= 0 {
			start = r
		} else {
			start = ^r - 1
		}
	default: // descending, strict
		if r >= 0 {
			start = r - 1
		} else {
			start = ^r - 1
		}
	}

	return &traverser[K, V]{
		t:         t,
		node:      n,
		idx:       start,
		ascending: ascending,
		primed:    true,
	}, nil
}

// findNodeForIteration descends to the leaf holding the scan boundary for
// key. At every equal-key hit in an internal node it follows the first
// occurrence's left child when moveLeft, else the last occurrence's right
// child, so duplicates on either side of a separator are not skipped.
func (t *Tree[K, V]) findNodeForIteration(key K, moveLeft bool) (*Node[K, V], int, error) {
	n := t.manager.Root()
	for {
		r := t.searchEntriesBoundary(n, key, moveLeft)
		if n.IsLeaf() {
			return n, r, nil
		}
		var childIdx int
		switch {
		case r >= 0 && moveLeft:
			childIdx = r
		case r >= 0:
			childIdx = r + 1
		default:
			childIdx = ^r
		}
		c, err := t.child(n, childIdx)
		if err != nil {
			return nil, 0, err
		}
		n = c
	}
}

// next yields the node and entry index of the next entry in scan order.
func (tr *traverser[K, V]) next() (*Node[K, V], int, bool, error) {
	if tr.done {
		return nil, 0, false, nil
	}

	if tr.primed {
		tr.primed = false
		if tr.idx >= 0 && tr.idx < len(tr.node.entries) {
			return tr.node, tr.idx, true, nil
		}
		// Boundary landed outside the leaf; climb without consuming.
		return tr.climb()
	}

	if tr.ascending {
		if !tr.node.IsLeaf() {
			return tr.descend(tr.idx + 1)
		}
		tr.idx++
		if tr.idx < len(tr.node.entries) {
			return tr.node, tr.idx, true, nil
		}
		return tr.climb()
	}

	if !tr.node.IsLeaf() {
		return tr.descend(tr.idx)
	}
	tr.idx--
	if tr.idx >= 0 {
		return tr.node, tr.idx, true, nil
	}
	return tr.climb()
}

// descend walks from child childIdx down to the extreme leaf of the scan
// direction and yields its boundary entry.
func (tr *traverser[K, V]) descend(childIdx int) (*Node[K, V], int, bool, error) {
	n, err := tr.t.child(tr.node, childIdx)
	if err != nil {
		return nil, 0, false, err
	}
	for !n.IsLeaf() {
		next := 0
		if !tr.ascending {
			next = len(n.children) - 1
		}
		n, err = tr.t.child(n, next)
		if err != nil {
			return nil, 0, false, err
		}
	}
	tr.node = n
	if tr.ascending {
		tr.idx = 0
	} else {
		tr.idx = len(n.entries) - 1
	}
	if tr.idx < 0 || tr.idx >= len(n.entries) {
		return nil, 0, false, utils.Corrupted("empty leaf %d reached during scan", n.id)
	}
	return tr.node, tr.idx, true, nil
}

// climb moves up through parents until a not-yet-yielded separator entry is
// found, or the root is exhausted.
func (tr *traverser[K, V]) climb() (*Node[K, V], int, bool, error) {
	for {
		if tr.node.parentID == 0 {
			tr.done = true
			return nil, 0, false, nil
		}
		parent, err := tr.t.manager.Find(tr.node.parentID)
		if err != nil {
			return nil, 0, false, err
		}
		if parent == nil {
			return nil, 0, false, utils.Corrupted("parent %d missing during scan", tr.node.parentID)
		}
		ci := parent.childIndex(tr.node.id)
		if ci < 0 {
			return nil, 0, false, utils.Corrupted("node %d not among children of %d", tr.node.id, parent.id)
		}
		tr.node = parent
		if tr.ascending {
			tr.idx = ci
			if tr.idx < len(parent.entries) {
				return tr.node, tr.idx, true, nil
			}
		} else {
			tr.idx = ci - 1
			if tr.idx >= 0 {
				return tr.node, tr.idx, true, nil
			}
		}
	}
}

// scan wraps a traverser into a lazy, single-pass sequence.
func (t *Tree[K, V]) scan(key K, ascending, orEq bool) iter.Seq2[Entry[K, V], error] {
	return func(yield func(Entry[K, V], error) bool) {
		var zero Entry[K, V]
		tr, err := t.newTraverser(key, ascending, orEq)
		if err != nil {
			yield(zero, err)
			return
		}
		for {
			n, i, ok, err := tr.next()
			if err != nil {
				yield(zero, err)
				return
			}
			if !ok {
				return
			}
			if !yield(n.entries[i], nil) {
				return
			}
		}
	}
}

// LargerThanOrEq yields entries with keys >= key in ascending key order.
func (t *Tree[K, V]) LargerThanOrEq(key K) iter.Seq2[Entry[K, V], error] {
	return t.scan(key, true, true)
}

// LargerThan yields entries with keys > key in ascending key order.
func (t *Tree[K, V]) LargerThan(key K) iter.Seq2[Entry[K, V], error] {
	return t.scan(key, true, false)
}

// LessThanOrEq yields entries with keys <= key in descending key order.
func (t *Tree[K, V]) LessThanOrEq(key K) iter.Seq2[Entry[K, V], error] {
	return t.scan(key, false, true)
}

// LessThan yields entries with keys < key in descending key order.
func (t *Tree[K, V]) LessThan(key K) iter.Seq2[Entry[K, V], error] {
	return t.scan(key, false, false)
}
