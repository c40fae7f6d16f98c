package vmm

import (
	"unsafe"

	"github.com/opsys-edu/gophernel/kernel"
	"github.com/opsys-edu/gophernel/kernel/kfmt/early"
	"github.com/opsys-edu/gophernel/kernel/mem"
	"github.com/opsys-edu/gophernel/kernel/mem/pmm"
)

// maxRegions is the fixed capacity of a VMPool's region descriptor array.
// Each descriptor packs a (base, size) pair of 32-bit words, so 512 entries
// fill exactly one page -- the page the pool reserves for its own metadata.
const maxRegions = mem.EntriesPerPage / 2

// region describes one allocated virtual range as a pair of 32-bit words,
// matching the word size of the target machine. A region with size == 0 is
// the sentinel marking "no further region" in the descriptor array.
type region struct {
	base uint32
	size uint32
}

// VMPool carves a contiguous virtual address range, expressed as a number of
// frames, into variable-size allocated regions. The region descriptor array
// lives in the pool's own first page, so the pool needs no other allocator
// to bootstrap itself.
type VMPool struct {
	baseAddress uintptr
	sizeFrames  uint32

	framePool *pmm.ContFramePool
	pageTable *PageTable

	// next chains this pool into its PageTable's VMPool list.
	next *VMPool
}

// regions returns the pool's descriptor array, addressed directly through
// its first (identity-mapped or already-faulted-in) page.
func (vp *VMPool) regions() *[maxRegions]region {
	return (*[maxRegions]region)(unsafe.Pointer(vp.baseAddress))
}

// NewVMPool constructs a pool owning [baseAddress, baseAddress+sizeBytes),
// reserves its first page to host the region descriptor array, seeds
// descriptor 0 with that page itself, and registers itself with pageTable.
func NewVMPool(baseAddress uintptr, sizeBytes mem.Size, framePool *pmm.ContFramePool, pageTable *PageTable) *VMPool {
	vp := &VMPool{
		baseAddress: baseAddress,
		sizeFrames:  sizeBytes.Pages(),
		framePool:   framePool,
		pageTable:   pageTable,
	}

	pageTable.RegisterPool(vp)

	regs := vp.regions()
	regs[0] = region{base: uint32(baseAddress), size: uint32(mem.PageSize)}
	for i := 1; i < maxRegions; i++ {
		regs[i] = region{}
	}

	early.Printf("[vmm] registered VM pool at %x\n", baseAddress)
	return vp
}

// Allocate reserves sizeBytes rounded up to a whole number of frames,
// first-fit between existing regions (lowest address first), and returns the
// new region's base address. No physical frames are touched here: backing
// is installed lazily by the page-fault handler.
func (vp *VMPool) Allocate(sizeBytes mem.Size) (uintptr, *kernel.Error) {
	k := sizeBytes.Pages() * uint32(mem.PageSize)
	regs := vp.regions()

	i := 0
	for ; i < maxRegions-1 && regs[i].size != 0; i++ {
		if regs[i+1].size == 0 {
			// Nothing follows region i yet; fall through to the
			// append-at-the-end path below.
			break
		}

		gap := regs[i+1].base - (regs[i].base + regs[i].size)
		if k <= gap {
			if err := vp.shiftRight(i + 1); err != nil {
				return 0, err
			}
			regs[i+1] = region{base: regs[i].base + regs[i].size, size: k}
			return uintptr(regs[i+1].base), nil
		}
	}

	if i >= maxRegions-1 {
		return 0, &kernel.Error{Module: "vmm", Message: "VMPool: region descriptor table is full", Kind: kernel.RegionTableFull}
	}

	newBase := regs[i].base + regs[i].size
	regs[i+1] = region{base: newBase, size: k}
	return uintptr(newBase), nil
}

// shiftRight makes room for a new descriptor at index from by moving every
// live descriptor at or after from one slot to the right.
func (vp *VMPool) shiftRight(from int) *kernel.Error {
	regs := vp.regions()

	last := from
	for ; last < maxRegions; last++ {
		if regs[last].size == 0 {
			break
		}
	}
	if last >= maxRegions-1 {
		return &kernel.Error{Module: "vmm", Message: "VMPool: region descriptor table is full", Kind: kernel.RegionTableFull}
	}

	for i := last; i >= from; i-- {
		regs[i+1] = regs[i]
	}
	return nil
}

// Release finds the descriptor whose base equals startAddress, frees every
// frame backing it via the page table, and compacts the descriptor array.
// Every left-shift zeroes the slot it vacates so a later IsLegitimate scan
// cannot read stale data past the live descriptors.
func (vp *VMPool) Release(startAddress uintptr) *kernel.Error {
	regs := vp.regions()
	base32 := uint32(startAddress)

	for i := 0; i < maxRegions; i++ {
		if regs[i].base != base32 || regs[i].size == 0 {
			continue
		}

		frames := regs[i].size >> mem.PageShift
		for j := uint32(0); j < frames; j++ {
			if err := vp.pageTable.FreePage(startAddress + uintptr(j)*uintptr(mem.PageSize)); err != nil {
				return err
			}
		}

		for j := i; j < maxRegions-1; j++ {
			regs[j] = regs[j+1]
		}
		regs[maxRegions-1] = region{}
		return nil
	}

	return &kernel.Error{Module: "vmm", Message: "VMPool: release of an address with no matching region", Kind: kernel.InvalidRelease}
}

// IsLegitimate returns true if addr is the pool's descriptor-page anchor or
// falls within some live region. The scan always runs the full table: an
// early exit on the first zero-size slot would risk missing live regions if
// a caller inspects the table mid-compaction, so this walks every slot
// unconditionally.
func (vp *VMPool) IsLegitimate(addr uintptr) bool {
	if addr == vp.baseAddress {
		return true
	}

	addr32 := uint32(addr)
	regs := vp.regions()
	for i := 0; i < maxRegions; i++ {
		if regs[i].size == 0 {
			continue
		}
		if regs[i].base <= addr32 && addr32 < regs[i].base+regs[i].size {
			return true
		}
	}
	return false
}
