// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package offsetalloc

import "math/bits"

// numTopBins and binsPerTop split the 256 possible bin codes (see codec.go)
// into 32 top-level buckets of 8 sub-bins each.
const (
	numTopBins  = 32
	binsPerTop  = 8
	numLeafBins = numTopBins * binsPerTop
)

// binmap is a two-level bitmap index over the 256 size bins: a 32-bit top
// bitmap records which top buckets have any non-empty sub-bin, and one
// 8-bit sub-bitmap per top bucket records which of its 8 bins are
// non-empty. It answers "smallest non-empty bin >= x" and "largest
// non-empty bin" in O(1) via hardware bit-scan.
type binmap struct {
	top uint32
	sub [numTopBins]uint8
}

// set marks bin non-empty.
func (b *binmap) set(bin uint8) {
	top, sub := bin>>mantissaBits, bin&mantissaMask
	b.sub[top] |= 1 << sub
	b.top |= 1 << top
}

// clear marks bin empty.
func (b *binmap) clear(bin uint8) {
	top, sub := bin>>mantissaBits, bin&mantissaMask
	b.sub[top] &^= 1 << sub
	if b.sub[top] == 0 {
		b.top &^= 1 << top
	}
}

// findLowestSetAfter returns the smallest non-empty bin whose code is >=
// bin, or ok == false if every bin from bin upward is empty.
func (b *binmap) findLowestSetAfter(bin uint8) (found uint8, ok bool) {
	top, sub := bin>>mantissaBits, bin&mantissaMask

	if subMask := b.sub[top] &^ (1<<sub - 1); subMask != 0 {
		return top<<mantissaBits | uint8(bits.TrailingZeros8(subMask)), true
	}

	topMask := b.top &^ (uint32(1)<<(uint32(top)+1) - 1)
	if topMask == 0 {
		return 0, false
	}

	t := uint8(bits.TrailingZeros32(topMask))
	s := uint8(bits.TrailingZeros8(b.sub[t]))
	return t<<mantissaBits | s, true
}

// findHighestSet returns the largest non-empty bin, or ok == false if the
// index has no non-empty bin at all. Used by Allocator.StorageReport to
// locate the bin that must contain the largest free block: any block
// outside the highest non-empty bin is strictly smaller than any block
// inside it.
func (b *binmap) findHighestSet() (found uint8, ok bool) {
	if b.top == 0 {
		return 0, false
	}

	t := uint8(bits.Len32(b.top) - 1)
	s := uint8(bits.Len8(b.sub[t]) - 1)
	return t<<mantissaBits | s, true
}
