// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*

Package offsetalloc implements a two-level segregated-fit (TLSF-like) offset
allocator: it partitions a linear address range [0, totalSize) into
non-overlapping sub-ranges on request and returns them to the free pool on
release, in O(1) worst-case time per operation.

The allocator manages offsets and sizes only. It never owns, reads or writes
the backing storage that [0, totalSize) describes; it has no notion of what
lives at any offset. Callers (GPU heap managers, arena suballocators,
virtual-memory placement logic) layer their own storage atop the offsets
handed out by Allocate and return them via Free.

Size classes

Every free block is filed into one of 256 bins, indexed by an 8-bit
pseudo-float code: a 5-bit exponent and a 3-bit mantissa. Allocation
requests round up to the smallest bin whose representative size is big
enough to satisfy them; free blocks round down to the largest bin whose
representative size still fits inside them. See EncodeRoundUp,
EncodeRoundDown and Decode.

Bin lookup is O(1) via a two-level bitmap: one 32-bit word records which of
the 32 "top" buckets have any non-empty bin, and one 8-bit word per top
bucket records which of its 8 sub-bins are non-empty. Finding the smallest
non-empty bin at or above a requested one is two hardware bit-scans.

Concurrency

Allocator is not safe for concurrent use. All public methods require
exclusive access; callers needing concurrency must serialize access with a
mutex or shard allocation across multiple independent Allocator values - see
TestIndependentAllocatorInstances for the latter usage shape.

*/
package offsetalloc
