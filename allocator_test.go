// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package offsetalloc

import (
	"flag"
	"math/rand"
	"sort"
	"testing"

	"github.com/cznic/sortutil"
)

var (
	stressN    = flag.Int("N", 4000, "Allocator stress test op count")
	stressSeed = flag.Int64("seed", 42, "Allocator stress test rng seed")
)

const (
	mib = 1 << 20

	scenarioTotalSize      = 256 * mib
	scenarioMaxAllocations = 131072
)

func mustNew(t *testing.T, totalSize, maxAllocations uint32) *Allocator {
	t.Helper()
	a, err := New(totalSize, maxAllocations)
	if err != nil {
		t.Fatalf("New(%d, %d): %v", totalSize, maxAllocations, err)
	}
	return a
}

func mustAllocate(t *testing.T, a *Allocator, size, wantOffset uint32) Handle {
	t.Helper()
	h, ok := a.Allocate(size)
	if !ok {
		t.Fatalf("Allocate(%d): failed, want offset %d", size, wantOffset)
	}
	if h.Offset != wantOffset {
		t.Fatalf("Allocate(%d).Offset = %d, want %d", size, h.Offset, wantOffset)
	}
	return h
}

// TestBasic allocates a single block, frees it, then allocates and frees
// the whole region.
func TestBasic(t *testing.T) {
	a := mustNew(t, scenarioTotalSize, scenarioMaxAllocations)

	h := mustAllocate(t, a, 1337, 0)
	a.Free(h)

	h = mustAllocate(t, a, scenarioTotalSize, 0)
	a.Free(h)
}

// TestAdjacentPacksAndSplits allocates four adjacent blocks - including a
// zero-sized one - packing the region with no gaps, frees all of them, and
// confirms the freed space coalesces back into one block spanning the
// whole region.
func TestAdjacentPacksAndSplits(t *testing.T) {
	a := mustNew(t, scenarioTotalSize, scenarioMaxAllocations)

	ha := mustAllocate(t, a, 0, 0)
	hb := mustAllocate(t, a, 1, 0)
	hc := mustAllocate(t, a, 123, 1)
	hd := mustAllocate(t, a, 1234, 124)

	a.Free(ha)
	a.Free(hb)
	a.Free(hc)
	a.Free(hd)

	h := mustAllocate(t, a, scenarioTotalSize, 0)
	a.Free(h)
}

// TestReuseSameBin allocates and frees a block, then allocates a block of
// the same size again and confirms it lands at the same offset.
func TestReuseSameBin(t *testing.T) {
	a := mustNew(t, scenarioTotalSize, scenarioMaxAllocations)

	h1 := mustAllocate(t, a, 1024, 0)
	mustAllocate(t, a, 3456, 1024)
	a.Free(h1)
	mustAllocate(t, a, 1024, 0)
}

// TestComplexReuseAcrossBins interleaves frees and allocations of
// different sizes, exercising reuse across multiple bins in one region.
func TestComplexReuseAcrossBins(t *testing.T) {
	a := mustNew(t, scenarioTotalSize, scenarioMaxAllocations)

	h1 := mustAllocate(t, a, 1024, 0)
	mustAllocate(t, a, 3456, 1024)
	a.Free(h1)
	mustAllocate(t, a, 2345, 4480) // 1024 + 3456
	mustAllocate(t, a, 456, 0)
	mustAllocate(t, a, 512, 456)

	want := uint32(scenarioTotalSize) - 3456 - 2345 - 456 - 512
	report := a.StorageReport()
	if report.TotalFreeSpace != want {
		t.Fatalf("TotalFreeSpace = %d, want %d", report.TotalFreeSpace, want)
	}
	if report.LargestFreeRegion == report.TotalFreeSpace {
		t.Fatalf("LargestFreeRegion (%d) must differ from TotalFreeSpace (%d) here", report.LargestFreeRegion, report.TotalFreeSpace)
	}
}

// TestZeroFragmentationAfterCoalesce fills the region with 256 sequential
// 1 MiB allocations with no slack, frees a scattered set followed by a
// contiguous run to open holes of two different shapes, reallocates to
// exactly refill both shapes (including one coalesced 4 MiB hole), and
// frees everything else, confirming a single block spanning the whole
// region comes back.
func TestZeroFragmentationAfterCoalesce(t *testing.T) {
	const n = 256
	a := mustNew(t, scenarioTotalSize, scenarioMaxAllocations)

	handles := make([]Handle, n)
	for i := 0; i < n; i++ {
		handles[i] = mustAllocate(t, a, mib, uint32(i)*mib)
	}

	if report := a.StorageReport(); report.TotalFreeSpace != 0 || report.LargestFreeRegion != 0 {
		t.Fatalf("after filling region: report = %+v, want all zero", report)
	}

	scattered := []int{243, 5, 123, 95}
	for _, i := range scattered {
		a.Free(handles[i])
	}

	contiguous := []int{151, 152, 153, 154}
	for _, i := range contiguous {
		a.Free(handles[i])
	}

	for i := 0; i < 4; i++ {
		h, ok := a.Allocate(mib)
		if !ok {
			t.Fatalf("reallocating 1 MiB block %d: failed", i)
		}
		handles[scattered[i]] = h
	}

	fourMiB, ok := a.Allocate(4 * mib)
	if !ok {
		t.Fatal("allocating 4 MiB block into the coalesced hole: failed")
	}
	if fourMiB.Offset != uint32(contiguous[0])*mib {
		t.Fatalf("4 MiB block offset = %d, want %d", fourMiB.Offset, uint32(contiguous[0])*mib)
	}
	handles[contiguous[0]] = fourMiB

	skip := map[int]bool{contiguous[1]: true, contiguous[2]: true, contiguous[3]: true}
	for i := 0; i < n; i++ {
		if skip[i] {
			continue
		}
		a.Free(handles[i])
	}

	report := a.StorageReport()
	if report.TotalFreeSpace != scenarioTotalSize || report.LargestFreeRegion != scenarioTotalSize {
		t.Fatalf("final report = %+v, want {%d, %d}", report, scenarioTotalSize, scenarioTotalSize)
	}

	mustAllocate(t, a, scenarioTotalSize, 0)
}

// TestAllocateZeroSized confirms a zero-sized allocation succeeds, lands
// at offset 0, and the resulting handle is freeable like any other.
func TestAllocateZeroSized(t *testing.T) {
	a := mustNew(t, scenarioTotalSize, scenarioMaxAllocations)

	h, ok := a.Allocate(0)
	if !ok || h.Offset != 0 {
		t.Fatalf("Allocate(0) = (%+v, %v), want ({0, _}, true)", h, ok)
	}
	a.Free(h)

	mustAllocate(t, a, scenarioTotalSize, 0)
}

// TestFreeAndReallocateSingleBlock allocates and frees the same block
// repeatedly, confirming each cycle lands at the same offset.
func TestFreeAndReallocateSingleBlock(t *testing.T) {
	a := mustNew(t, scenarioTotalSize, scenarioMaxAllocations)

	for i := 0; i < 5; i++ {
		h := mustAllocate(t, a, 4096, 0)
		a.Free(h)
	}
}

// TestIndependentAllocatorInstances confirms that two Allocator values
// constructed over disjoint regions never observe each other's state -
// offsetalloc keeps no package-level mutable globals, so sharding
// allocation across instances is safe without any synchronization between
// them.
func TestIndependentAllocatorInstances(t *testing.T) {
	a := mustNew(t, 1<<16, 64)
	b := mustNew(t, 1<<16, 64)

	ha := mustAllocate(t, a, 100, 0)
	hb := mustAllocate(t, b, 200, 0)

	if a.StorageReport().TotalFreeSpace != 1<<16-100 {
		t.Fatalf("a.TotalFreeSpace = %d, want %d", a.StorageReport().TotalFreeSpace, 1<<16-100)
	}
	if b.StorageReport().TotalFreeSpace != 1<<16-200 {
		t.Fatalf("b.TotalFreeSpace = %d, want %d", b.StorageReport().TotalFreeSpace, 1<<16-200)
	}

	a.Free(ha)
	b.Free(hb)
}

// TestAllocatorRandomizedStress runs a seeded random sequence of
// allocate/free operations, verifying free-space accounting and the
// absence of overlapping allocations after every mutation, then confirms
// full coalescing at the end by freeing everything and allocating the
// whole region back.
func TestAllocatorRandomizedStress(t *testing.T) {
	const totalSize = 1 << 24 // 16 MiB
	const maxAllocations = 4096

	rng := rand.New(rand.NewSource(*stressSeed))
	a := mustNew(t, totalSize, maxAllocations)

	live := map[uint32]Handle{}
	liveSize := map[uint32]uint32{}
	nextID := uint32(0)

	verify := func() {
		var sum int64
		offsets := make(sortutil.Int64Slice, 0, len(live))
		for id, h := range live {
			sz := int64(liveSize[id])
			sum += sz
			offsets = append(offsets, int64(h.Offset)<<32|sz)
		}

		report := a.StorageReport()
		if want := uint32(totalSize) - uint32(sum); report.TotalFreeSpace != want {
			t.Fatalf("TotalFreeSpace = %d, want %d (sum live = %d)", report.TotalFreeSpace, want, sum)
		}

		sort.Sort(offsets)
		var prevEnd int64
		for _, packed := range offsets {
			off, sz := packed>>32, packed&0xffffffff
			if off < prevEnd {
				t.Fatalf("overlapping allocation at offset %d, previous end %d", off, prevEnd)
			}
			if off+sz > totalSize {
				t.Fatalf("allocation [%d, %d) exceeds region size %d", off, off+sz, totalSize)
			}
			prevEnd = off + sz
		}
	}

	for i := 0; i < *stressN; i++ {
		if len(live) == 0 || rng.Intn(2) == 0 {
			size := uint32(rng.Intn(1 << 16))
			h, ok := a.Allocate(size)
			if ok {
				id := nextID
				nextID++
				live[id] = h
				liveSize[id] = size
			}
		} else {
			var victim uint32
			n := rng.Intn(len(live))
			for id := range live {
				if n == 0 {
					victim = id
					break
				}
				n--
			}
			a.Free(live[victim])
			delete(live, victim)
			delete(liveSize, victim)
		}
		verify()
	}

	for _, h := range live {
		a.Free(h)
	}

	mustAllocate(t, a, totalSize, 0)
}
