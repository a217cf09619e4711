// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command offsetallocbench drives an offsetalloc.Allocator through a set
// of scripted allocate/free scenarios, logging storage reports through
// glog at selected steps of each scenario.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/google/subcommands"

	"github.com/cznic/offsetalloc"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&runCmd{}, "")
	subcommands.Register(&reportCmd{}, "")

	flag.Parse()
	defer glog.Flush()

	os.Exit(int(subcommands.Execute(context.Background())))
}

// runCmd replays a fixed set of allocate/free scenarios, each against its
// own fresh Allocator, logging a storage report at selected steps.
type runCmd struct {
	totalSize      uint
	maxAllocations uint
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "replay the scripted allocator scenarios" }
func (*runCmd) Usage() string {
	return "run:\n  allocate and free scripted sequences of blocks, logging a report after each step.\n"
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.UintVar(&c.totalSize, "total-size", 256<<20, "region size in bytes")
	f.UintVar(&c.maxAllocations, "max-allocations", 131072, "node pool capacity")
}

func (c *runCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	scenarios := []struct {
		name string
		run  func(*offsetalloc.Allocator, uint32) error
	}{
		{"basic", scenarioBasic},
		{"adjacent-packs-and-splits", scenarioAdjacentPacksAndSplits},
		{"reuse-same-bin", scenarioReuseSameBin},
		{"complex-reuse-across-bins", scenarioComplexReuseAcrossBins},
		{"zero-fragmentation-after-coalesce", scenarioZeroFragmentationAfterCoalesce},
	}

	for _, s := range scenarios {
		a, err := offsetalloc.New(uint32(c.totalSize), uint32(c.maxAllocations))
		if err != nil {
			glog.Errorf("offsetalloc.New: %v", err)
			return subcommands.ExitFailure
		}

		if err := s.run(a, uint32(c.totalSize)); err != nil {
			glog.Errorf("%s: %v", s.name, err)
			return subcommands.ExitFailure
		}
	}

	return subcommands.ExitSuccess
}

func logReport(a *offsetalloc.Allocator, step string) {
	r := a.StorageReport()
	glog.Infof("%s: free=%d largest=%d", step, r.TotalFreeSpace, r.LargestFreeRegion)
}

// scenarioBasic allocates a single block, frees it, then allocates and
// frees the whole region.
func scenarioBasic(a *offsetalloc.Allocator, totalSize uint32) error {
	h, ok := a.Allocate(1337)
	if !ok {
		return fmt.Errorf("allocate 1337: failed")
	}
	logReport(a, "allocate 1337")

	a.Free(h)
	logReport(a, "free first block")

	h, ok = a.Allocate(totalSize)
	if !ok || h.Offset != 0 {
		return fmt.Errorf("allocate whole region after freeing: offset=%d ok=%v", h.Offset, ok)
	}
	logReport(a, "allocate whole region")
	a.Free(h)
	return nil
}

// scenarioAdjacentPacksAndSplits allocates four adjacent blocks - including
// a zero-sized one - packing the region with no gaps, frees all of them,
// and confirms the freed space coalesces back into one block spanning the
// whole region.
func scenarioAdjacentPacksAndSplits(a *offsetalloc.Allocator, totalSize uint32) error {
	sizes := []uint32{0, 1, 123, 1234}
	handles := make([]offsetalloc.Handle, len(sizes))
	for i, sz := range sizes {
		h, ok := a.Allocate(sz)
		if !ok {
			return fmt.Errorf("allocate %d: failed", sz)
		}
		handles[i] = h
		logReport(a, fmt.Sprintf("allocate %d", sz))
	}

	for _, h := range handles {
		a.Free(h)
	}
	logReport(a, "free all four blocks")

	h, ok := a.Allocate(totalSize)
	if !ok || h.Offset != 0 {
		return fmt.Errorf("allocate whole region after freeing: offset=%d ok=%v", h.Offset, ok)
	}
	a.Free(h)
	return nil
}

// scenarioReuseSameBin allocates and frees a block, then allocates a block
// of the same size again and confirms it lands at the same offset.
func scenarioReuseSameBin(a *offsetalloc.Allocator, _ uint32) error {
	h1, ok := a.Allocate(1024)
	if !ok {
		return fmt.Errorf("allocate 1024: failed")
	}
	if _, ok := a.Allocate(3456); !ok {
		return fmt.Errorf("allocate 3456: failed")
	}
	a.Free(h1)
	logReport(a, "free first 1024 block")

	h2, ok := a.Allocate(1024)
	if !ok || h2.Offset != h1.Offset {
		return fmt.Errorf("reallocate 1024: offset=%d ok=%v, want %d", h2.Offset, ok, h1.Offset)
	}
	logReport(a, "reallocate 1024")
	return nil
}

// scenarioComplexReuseAcrossBins interleaves frees and allocations of
// different sizes, exercising reuse across multiple bins in one region.
func scenarioComplexReuseAcrossBins(a *offsetalloc.Allocator, _ uint32) error {
	h1, ok := a.Allocate(1024)
	if !ok {
		return fmt.Errorf("allocate 1024: failed")
	}
	if _, ok := a.Allocate(3456); !ok {
		return fmt.Errorf("allocate 3456: failed")
	}
	a.Free(h1)

	if _, ok := a.Allocate(2345); !ok {
		return fmt.Errorf("allocate 2345: failed")
	}
	if _, ok := a.Allocate(456); !ok {
		return fmt.Errorf("allocate 456: failed")
	}
	if _, ok := a.Allocate(512); !ok {
		return fmt.Errorf("allocate 512: failed")
	}
	logReport(a, "complex reuse across bins")
	return nil
}

// scenarioZeroFragmentationAfterCoalesce fills the region with equal-sized
// blocks, frees a scattered set and a contiguous run, reallocates into both
// hole shapes - including the larger coalesced hole - and frees everything
// else, confirming the region comes back together into a single free
// block with no fragmentation left behind.
func scenarioZeroFragmentationAfterCoalesce(a *offsetalloc.Allocator, totalSize uint32) error {
	const n = 256
	blockSize := totalSize / n

	handles := make([]offsetalloc.Handle, n)
	for i := 0; i < n; i++ {
		h, ok := a.Allocate(blockSize)
		if !ok {
			return fmt.Errorf("filling block %d: failed", i)
		}
		handles[i] = h
	}
	logReport(a, "region filled")

	scattered := []int{243, 5, 123, 95}
	for _, i := range scattered {
		a.Free(handles[i])
	}

	contiguous := []int{151, 152, 153, 154}
	for _, i := range contiguous {
		a.Free(handles[i])
	}
	logReport(a, "scattered and contiguous frees")

	for i := 0; i < len(scattered); i++ {
		h, ok := a.Allocate(blockSize)
		if !ok {
			return fmt.Errorf("reallocating block %d: failed", i)
		}
		handles[scattered[i]] = h
	}

	big, ok := a.Allocate(4 * blockSize)
	if !ok {
		return fmt.Errorf("allocating coalesced hole: failed")
	}
	if want := uint32(contiguous[0]) * blockSize; big.Offset != want {
		return fmt.Errorf("coalesced hole offset=%d, want %d", big.Offset, want)
	}
	handles[contiguous[0]] = big
	logReport(a, "reallocated into both hole shapes")

	skip := map[int]bool{contiguous[1]: true, contiguous[2]: true, contiguous[3]: true}
	for i := 0; i < n; i++ {
		if skip[i] {
			continue
		}
		a.Free(handles[i])
	}

	r := a.StorageReport()
	if r.TotalFreeSpace != totalSize || r.LargestFreeRegion != totalSize {
		return fmt.Errorf("after freeing everything else: report = %+v, want all free", r)
	}
	logReport(a, "region fully reclaimed")
	return nil
}

// reportCmd constructs an allocator, replays a sequence of sizes given as
// positional args (a bare size allocates, a size prefixed with "-" frees
// the most recently allocated block of that size), and prints the final
// report.
type reportCmd struct {
	totalSize      uint
	maxAllocations uint
}

func (*reportCmd) Name() string     { return "report" }
func (*reportCmd) Synopsis() string { return "replay a sequence of allocate/free sizes and print the final report" }
func (*reportCmd) Usage() string {
	return "report <size>...:\n  a bare size allocates; a \"-\"-prefixed size frees the newest live block of that size.\n"
}

func (c *reportCmd) SetFlags(f *flag.FlagSet) {
	f.UintVar(&c.totalSize, "total-size", 256<<20, "region size in bytes")
	f.UintVar(&c.maxAllocations, "max-allocations", 131072, "node pool capacity")
}

func (c *reportCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := offsetalloc.New(uint32(c.totalSize), uint32(c.maxAllocations))
	if err != nil {
		glog.Errorf("offsetalloc.New: %v", err)
		return subcommands.ExitFailure
	}

	bySize := map[uint32][]offsetalloc.Handle{}
	for _, arg := range f.Args() {
		var size int64
		var free bool
		if len(arg) > 0 && arg[0] == '-' {
			free = true
			if _, err := fmt.Sscanf(arg[1:], "%d", &size); err != nil {
				glog.Errorf("bad size %q: %v", arg, err)
				return subcommands.ExitUsageError
			}
		} else if _, err := fmt.Sscanf(arg, "%d", &size); err != nil {
			glog.Errorf("bad size %q: %v", arg, err)
			return subcommands.ExitUsageError
		}

		sz := uint32(size)
		if free {
			stack := bySize[sz]
			if len(stack) == 0 {
				glog.Errorf("free %d: no live block of that size", sz)
				continue
			}
			h := stack[len(stack)-1]
			bySize[sz] = stack[:len(stack)-1]
			a.Free(h)
			continue
		}

		h, ok := a.Allocate(sz)
		if !ok {
			glog.Errorf("allocate %d: failed", sz)
			continue
		}
		bySize[sz] = append(bySize[sz], h)
		glog.Infof("allocate %d -> offset %d", sz, h.Offset)
	}

	r := a.StorageReport()
	fmt.Printf("total_free_space=%d largest_free_region=%d\n", r.TotalFreeSpace, r.LargestFreeRegion)
	return subcommands.ExitSuccess
}
