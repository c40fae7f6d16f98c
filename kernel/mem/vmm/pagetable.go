// Package vmm implements the two-level 32-bit x86 page table manager and the
// virtual memory region pools that sit on top of it.
package vmm

import (
	"unsafe"

	"github.com/opsys-edu/gophernel/kernel"
	"github.com/opsys-edu/gophernel/kernel/cpu"
	"github.com/opsys-edu/gophernel/kernel/irq"
	"github.com/opsys-edu/gophernel/kernel/kfmt/early"
	"github.com/opsys-edu/gophernel/kernel/mem"
	"github.com/opsys-edu/gophernel/kernel/mem/pmm"
)

var (
	// kernelPool supplies frames for page directories and page tables.
	kernelPool *pmm.ContFramePool

	// processPool supplies frames for process-owned backing pages.
	processPool *pmm.ContFramePool

	// sharedSize is the size, in bytes, of the identity-mapped prefix
	// installed by every PageTable (typically 4 MiB).
	sharedSize mem.Size

	// currentPageTable is the PageTable most recently loaded via Load.
	currentPageTable *PageTable

	pagingEnabled bool

	// The following function variables are mocked by tests and are
	// automatically inlined by the compiler in a real build.
	readCR2Fn                 = cpu.ReadCR2
	readCR0Fn                 = cpu.ReadCR0
	writeCR0Fn                = cpu.WriteCR0
	writeCR3Fn                = cpu.WriteCR3
	handleExceptionWithCodeFn = irq.HandleExceptionWithCode
)

// PageTable owns one 32-bit page directory and the chain of VMPools that
// decide which faulting addresses within it are legitimate.
type PageTable struct {
	pdFrame pmm.Frame
	vmPools *VMPool
}

// InitPaging records the kernel/process frame pools and the size of the
// identity-mapped region every PageTable will install. It must be called
// exactly once, before the first PageTable is constructed.
func InitPaging(kernel_, process *pmm.ContFramePool, shared mem.Size) {
	kernelPool = kernel_
	processPool = process
	sharedSize = shared
}

// directory returns the page directory as a 1024-entry array addressed
// directly through its identity-mapped physical frame.
func (pt *PageTable) directory() *[mem.EntriesPerPage]pageTableEntry {
	return (*[mem.EntriesPerPage]pageTableEntry)(unsafe.Pointer(pt.pdFrame.Address()))
}

// NewPageTable allocates a page directory frame from the kernel pool,
// identity-maps [0, sharedSize) via a single page table installed at
// directory entry 0, and leaves every other directory entry not-present.
func NewPageTable() *PageTable {
	pt := &PageTable{pdFrame: kernelPool.GetFrames(1)}
	dir := pt.directory()

	ptFrame := kernelPool.GetFrames(1)
	table := (*[mem.EntriesPerPage]pageTableEntry)(unsafe.Pointer(ptFrame.Address()))

	sharedPages := uint32(sharedSize.Pages())
	for i := uint32(0); i < mem.EntriesPerPage; i++ {
		if i < sharedPages {
			entry := pageTableEntry(0)
			entry.SetFrame(pmm.Frame(i))
			entry.SetFlags(FlagPresent | FlagRW)
			table[i] = entry
		} else {
			table[i] = notPresentPTE
		}
	}

	dirEntry0 := pageTableEntry(0)
	dirEntry0.SetFrame(ptFrame)
	dirEntry0.SetFlags(FlagPresent | FlagRW)
	dir[0] = dirEntry0

	for i := 1; i < mem.EntriesPerPage; i++ {
		dir[i] = notPresentPDE
	}

	early.Printf("[vmm] constructed page table\n")
	return pt
}

// Load installs this page table as the active one by writing its directory's
// physical address into CR3.
func (pt *PageTable) Load() {
	currentPageTable = pt
	writeCR3Fn(uint32(pt.pdFrame.Address()))
	early.Printf("[vmm] loaded page table\n")
}

// EnablePaging sets the paging-enable bit (bit 31) in CR0.
func EnablePaging() {
	pagingEnabled = true
	writeCR0Fn(readCR0Fn() | (1 << 31))
	early.Printf("[vmm] enabled paging\n")
}

// RegisterPool inserts vp at the head of this page table's VMPool chain.
// Called from VMPool construction.
func (pt *PageTable) RegisterPool(vp *VMPool) {
	vp.next = pt.vmPools
	pt.vmPools = vp
}

// CheckAddress walks this page table's VMPool chain and reports whether any
// registered pool considers addr legitimate.
func (pt *PageTable) CheckAddress(addr uintptr) bool {
	for vp := pt.vmPools; vp != nil; vp = vp.next {
		if vp.IsLegitimate(addr) {
			return true
		}
	}
	return false
}

// HandleFault is the page-fault handler: it consults the faulting page
// table's VMPool chain and, if the address is legitimate, lazily installs
// whatever page-directory and page-table entries are missing.
func HandleFault(errorCode uint32, frame *irq.Frame, regs *irq.Regs) {
	addr := uintptr(readCR2Fn())
	pt := currentPageTable

	if !pt.CheckAddress(addr) {
		early.Printf("[vmm] unmapped page fault at %x\n", addr)
		kernel.Panic(&kernel.Error{Module: "vmm", Message: "page fault at an address no VMPool considers legitimate", Kind: kernel.UnmappedFault})
		return
	}

	page := PageFromAddress(addr)
	p1 := page.DirectoryIndex()
	p2 := page.TableIndex()

	dir := pt.directory()
	if !dir[p1].HasFlags(FlagPresent) {
		ptFrame := kernelPool.GetFrames(1)
		table := (*[mem.EntriesPerPage]pageTableEntry)(unsafe.Pointer(ptFrame.Address()))
		for i := range table {
			table[i] = notPresentPTE
		}

		entry := pageTableEntry(0)
		entry.SetFrame(ptFrame)
		entry.SetFlags(FlagPresent | FlagRW)
		dir[p1] = entry
	}

	table := (*[mem.EntriesPerPage]pageTableEntry)(unsafe.Pointer(dir[p1].Frame().Address()))
	backing := processPool.GetFrames(1)
	entry := pageTableEntry(0)
	entry.SetFrame(backing)
	entry.SetFlags(FlagPresent | FlagRW | FlagUser)
	table[p2] = entry
}

// FreePage releases the backing frame mapped at virtAddr (if any), resets its
// page-table entry to not-present, and flushes the TLB. The directory entry
// must be masked to its frame bits before being dereferenced as a page-table
// pointer; it is not a bare pointer, it still carries its own flag bits.
func (pt *PageTable) FreePage(virtAddr uintptr) *kernel.Error {
	page := PageFromAddress(virtAddr)
	p1 := page.DirectoryIndex()
	p2 := page.TableIndex()

	dir := pt.directory()
	if !dir[p1].HasFlags(FlagPresent) {
		return nil
	}

	table := (*[mem.EntriesPerPage]pageTableEntry)(unsafe.Pointer(dir[p1].Frame().Address()))
	if !table[p2].HasFlags(FlagPresent) {
		return nil
	}

	if err := pmm.ReleaseFrames(table[p2].Frame()); err != nil {
		return err
	}

	table[p2] = notPresentPTE
	writeCR3Fn(uint32(pt.pdFrame.Address()))
	return nil
}

// Init wires the page-fault exception handler. Must be called after
// InitPaging and after the first PageTable has been loaded.
func Init() *kernel.Error {
	handleExceptionWithCodeFn(irq.PageFaultException, HandleFault)
	return nil
}
