// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package offsetalloc

import (
	"unsafe"

	"github.com/cznic/mathutil"
)

// Handle is the opaque result of a successful Allocate. Offset is the
// start of the allocated span, in the caller's own units. Metadata is the
// node index backing the span and is what Free needs to release it in
// O(1) - there is no lookup side-table.
//
// A failed Allocate returns a Handle with both fields set to NoSpace.
type Handle struct {
	Offset   uint32
	Metadata uint32
}

// Report is the result of Allocator.StorageReport.
type Report struct {
	// TotalFreeSpace is the sum of the sizes of every free node, i.e.
	// TotalSize() minus the sum of every live allocation's size.
	TotalFreeSpace uint32

	// LargestFreeRegion is the size of the single largest free block, or
	// 0 if the allocator is fully used. It is computed by an exact scan
	// of the highest non-empty bin's free list: every free block outside
	// that bin is strictly smaller than every block inside it, so the
	// true largest can only live there.
	LargestFreeRegion uint32
}

// Allocator partitions [0, totalSize) into offsets handed out by Allocate
// and reclaimed by Free. It is not safe for concurrent use; see doc.go.
type Allocator struct {
	totalSize      uint32
	maxAllocations uint32

	freeStorage uint32

	usedBins    binmap
	binIndices  [numLeafBins]uint32
	nodes       []node
	freeNodes   []uint32
	freeOffset  uint32
}

// RequiredBytes reports the number of bytes an Allocator for the given
// maxAllocations would need, were its bookkeeping arrays laid out in a
// single contiguous buffer rather than carved from the Go heap as
// independent slices. It is kept for capacity planning: the result is
// dominated by (maxAllocations+1) node records.
func RequiredBytes(maxAllocations uint32) uintptr {
	n := uintptr(maxAllocations) + 1
	return unsafe.Sizeof(Allocator{}) + n*unsafe.Sizeof(node{}) + n*unsafe.Sizeof(uint32(0))
}

// New creates an Allocator managing the region [0, totalSize) with room
// for up to maxAllocations live allocations between any two frees. A split
// on Allocate consumes one extra node, so heavy splitting can exhaust the
// pool sooner than maxAllocations live blocks would suggest.
//
// The whole region starts as a single free block at offset 0.
func New(totalSize, maxAllocations uint32) (*Allocator, error) {
	if totalSize == 0 {
		return nil, &ErrInvalid{"offsetalloc: totalSize must be > 0", totalSize}
	}
	if maxAllocations == 0 {
		return nil, &ErrInvalid{"offsetalloc: maxAllocations must be > 0", maxAllocations}
	}
	if maxAllocations >= noNode-1 {
		return nil, &ErrInvalid{"offsetalloc: maxAllocations too large for the node index space", maxAllocations}
	}

	n := maxAllocations + 1
	a := &Allocator{
		totalSize:      totalSize,
		maxAllocations: maxAllocations,
		nodes:          make([]node, n),
		freeNodes:      make([]uint32, n),
	}

	for i := range a.binIndices {
		a.binIndices[i] = noNode
	}
	for i := uint32(0); i < n; i++ {
		a.freeNodes[i] = i
	}
	a.freeOffset = n

	idx, _ := a.popFreeNode() // n >= 1, guaranteed to succeed
	a.nodes[idx] = node{
		dataOffset:   0,
		dataSize:     totalSize,
		neighborPrev: noNode,
		neighborNext: noNode,
	}
	a.insertNodeIntoBin(idx, totalSize)
	a.freeStorage = totalSize

	return a, nil
}

// TotalSize returns the size of the managed region.
func (a *Allocator) TotalSize() uint32 { return a.totalSize }

// Allocate reserves size caller-units from the region and returns a handle
// to them. ok is false, and the returned Handle's fields are both
// NoSpace, when the request cannot be satisfied: either no bin at or above
// EncodeRoundUp(size) holds a free block, or the node pool is exhausted.
// A size above 0xF0000000 rounds up to bin 240, which never holds a block,
// so such a request always fails.
//
// Among blocks big enough to satisfy size, the smallest-fitting bin is
// used, and within that bin the most recently filed block (its list
// head, whether freed or left over from a split) - there is no best-fit
// scan.
func (a *Allocator) Allocate(size uint32) (Handle, bool) {
	if a.freeOffset == 0 {
		return Handle{NoSpace, NoSpace}, false
	}

	minBin := EncodeRoundUp(size)
	bin, ok := a.usedBins.findLowestSetAfter(minBin)
	if !ok {
		return Handle{NoSpace, NoSpace}, false
	}

	idx := a.binIndices[bin]
	a.removeNodeFromBin(idx)

	n := &a.nodes[idx]
	offset := n.dataOffset
	remainder := n.dataSize - size

	n.dataSize = size
	n.used = true
	a.freeStorage -= size

	if remainder > 0 {
		rIdx, _ := a.popFreeNode() // freeOffset > 0 was checked above
		oldRight := n.neighborNext

		a.nodes[rIdx] = node{
			dataOffset:   offset + size,
			dataSize:     remainder,
			neighborPrev: idx,
			neighborNext: oldRight,
		}
		n.neighborNext = rIdx
		if oldRight != noNode {
			a.nodes[oldRight].neighborPrev = rIdx
		}

		a.insertNodeIntoBin(rIdx, remainder)
	}

	return Handle{offset, idx}, true
}

// Free releases the span described by h, which must have come from a
// still-valid Allocate call on this Allocator. Freeing an already-free or
// alien handle is caller error; Free defends against it with a cheap
// used-flag check that does not affect the O(1) bound, but does not
// validate h.Offset against the node's recorded offset.
//
// Free merges the released span with any adjacent free neighbor before
// filing the survivor into its new bin, so two adjacent free blocks never
// coexist.
func (a *Allocator) Free(h Handle) {
	idx := h.Metadata
	n := &a.nodes[idx]
	if !n.used {
		return
	}

	originalSize := n.dataSize
	offset := n.dataOffset
	size := n.dataSize

	if left := n.neighborPrev; left != noNode && !a.nodes[left].used {
		ln := &a.nodes[left]
		a.removeNodeFromBin(left)

		offset = ln.dataOffset
		size += ln.dataSize

		newPrev := ln.neighborPrev
		n.neighborPrev = newPrev
		if newPrev != noNode {
			a.nodes[newPrev].neighborNext = idx
		}

		a.pushFreeNode(left)
	}

	if right := n.neighborNext; right != noNode && !a.nodes[right].used {
		rn := &a.nodes[right]
		a.removeNodeFromBin(right)

		size += rn.dataSize

		newNext := rn.neighborNext
		n.neighborNext = newNext
		if newNext != noNode {
			a.nodes[newNext].neighborPrev = idx
		}

		a.pushFreeNode(right)
	}

	n.dataOffset = offset
	n.dataSize = size
	n.used = false
	a.freeStorage += originalSize

	a.insertNodeIntoBin(idx, size)
}

// StorageReport computes the current TotalFreeSpace and LargestFreeRegion.
// TotalFreeSpace is O(1) (maintained incrementally by Allocate and Free);
// LargestFreeRegion is O(k) where k is the population of the highest
// non-empty bin.
func (a *Allocator) StorageReport() Report {
	bin, ok := a.usedBins.findHighestSet()
	if !ok {
		return Report{}
	}

	var largest uint32
	for idx := a.binIndices[bin]; idx != noNode; idx = a.nodes[idx].binListNext {
		largest = mathutil.MaxUint32(largest, a.nodes[idx].dataSize)
	}

	return Report{TotalFreeSpace: a.freeStorage, LargestFreeRegion: largest}
}
