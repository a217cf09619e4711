// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package offsetalloc

// popFreeNode pops an available node index off the free-node stack. ok is
// false when the stack is empty: the node pool is exhausted, and no more
// blocks - free or used - can be tracked until one is returned.
func (a *Allocator) popFreeNode() (idx uint32, ok bool) {
	if a.freeOffset == 0 {
		return 0, false
	}

	a.freeOffset--
	return a.freeNodes[a.freeOffset], true
}

// pushFreeNode returns idx to the free-node stack, making it available for
// a future split.
func (a *Allocator) pushFreeNode(idx uint32) {
	a.freeNodes[a.freeOffset] = idx
	a.freeOffset++
}

// insertNodeIntoBin files the free node idx, of the given size, into the
// bin EncodeRoundDown(size) selects, pushing it to the head of that bin's
// doubly linked list and setting the bitmap bits that mark the bin
// non-empty.
func (a *Allocator) insertNodeIntoBin(idx, size uint32) {
	bin := EncodeRoundDown(size)
	head := a.binIndices[bin]

	a.nodes[idx].binListPrev = noNode
	a.nodes[idx].binListNext = head
	if head != noNode {
		a.nodes[head].binListPrev = idx
	}

	a.binIndices[bin] = idx
	a.usedBins.set(bin)
}

// removeNodeFromBin unlinks idx from its bin's free list - the bin is
// derived from the node's current size, which by the package invariant
// (every free node in bin k has round_down(size) == k) always identifies
// the right list. Clears the corresponding bitmap bits if the bin becomes
// empty.
func (a *Allocator) removeNodeFromBin(idx uint32) {
	n := &a.nodes[idx]
	bin := EncodeRoundDown(n.dataSize)

	prev, next := n.binListPrev, n.binListNext
	if prev != noNode {
		a.nodes[prev].binListNext = next
	} else {
		a.binIndices[bin] = next
	}
	if next != noNode {
		a.nodes[next].binListPrev = prev
	}

	if a.binIndices[bin] == noNode {
		a.usedBins.clear(bin)
	}

	n.binListPrev = noNode
	n.binListNext = noNode
}
