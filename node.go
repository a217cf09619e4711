// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package offsetalloc

// noNode is the sentinel node index meaning "none", used for bin-list and
// neighbor-chain pointers at a list head/tail or region edge. It doubles
// as the NO_SPACE value returned in a failed Handle's Offset and Metadata
// fields.
const noNode uint32 = 0xFFFFFFFF

// NoSpace is returned in both fields of the Handle from a failed Allocate.
const NoSpace uint32 = noNode

// node describes one span [dataOffset, dataOffset+dataSize) of the region,
// used or free. Nodes live in a single fixed array (Allocator.nodes);
// their identity is their index into that array, which is exactly the
// Metadata field of the Handle a caller holds.
//
// binListPrev/binListNext thread the node through its bin's doubly linked
// free list and are only meaningful while the node is free. neighborPrev/
// neighborNext thread every node, free or used, through the address-order
// chain that covers the whole region with no gaps and no overlaps.
type node struct {
	dataOffset uint32
	dataSize   uint32

	binListPrev uint32
	binListNext uint32

	neighborPrev uint32
	neighborNext uint32

	used bool
}
