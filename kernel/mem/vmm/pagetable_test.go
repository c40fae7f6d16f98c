package vmm

import (
	"testing"
	"unsafe"

	"github.com/opsys-edu/gophernel/kernel/irq"
	"github.com/opsys-edu/gophernel/kernel/mem"
	"github.com/opsys-edu/gophernel/kernel/mem/pmm"
)

// newTestPool backs a ContFramePool with real, page-aligned Go memory so
// that frame.Address() derefs inside the test process are valid. nFrames
// must be a multiple of 4.
func newTestPool(t *testing.T, nFrames uint32) *pmm.ContFramePool {
	t.Helper()
	raw := make([]byte, uintptr(nFrames+1)*uintptr(mem.PageSize))
	addr := uintptr(unsafe.Pointer(&raw[0]))
	aligned := (addr + uintptr(mem.PageSize) - 1) &^ uintptr(mem.PageSize-1)
	base := pmm.Frame(aligned >> mem.PageShift)
	return pmm.NewContFramePool(base, nFrames, pmm.InvalidFrame, 0)
}

// backedAddress returns a page-aligned address inside real, zeroed Go memory
// -- used to stand in for a VMPool's base address in tests, where no actual
// paging hardware backs the numeric address space.
func backedAddress(t *testing.T, pages uint32) uintptr {
	t.Helper()
	raw := make([]byte, uintptr(pages+1)*uintptr(mem.PageSize))
	addr := uintptr(unsafe.Pointer(&raw[0]))
	return (addr + uintptr(mem.PageSize) - 1) &^ uintptr(mem.PageSize-1)
}

func setupTestPaging(t *testing.T) (*pmm.ContFramePool, *pmm.ContFramePool) {
	t.Helper()
	kp := newTestPool(t, 64)
	pp := newTestPool(t, 64)
	InitPaging(kp, pp, 4*mem.Mb)

	// Load and FreePage write CR3, which only the kernel may do.
	oldWriteCR3 := writeCR3Fn
	t.Cleanup(func() { writeCR3Fn = oldWriteCR3 })
	writeCR3Fn = func(uint32) {}

	return kp, pp
}

func TestNewPageTableIdentityMapsSharedRegion(t *testing.T) {
	setupTestPaging(t)
	pt := NewPageTable()

	dir := pt.directory()
	if !dir[0].HasFlags(FlagPresent | FlagRW) {
		t.Fatal("expected directory entry 0 to be present and writable")
	}
	for i := 1; i < mem.EntriesPerPage; i++ {
		if dir[i] != notPresentPDE {
			t.Fatalf("expected directory entry %d to be the not-present sentinel", i)
		}
	}

	table := (*[mem.EntriesPerPage]pageTableEntry)(unsafe.Pointer(dir[0].Frame().Address()))
	for i := 0; i < mem.EntriesPerPage; i++ {
		if !table[i].HasFlags(FlagPresent | FlagRW) {
			t.Fatalf("expected identity-mapped entry %d to be present and writable", i)
		}
		if table[i].HasFlags(FlagUser) {
			t.Fatalf("expected identity-mapped entry %d to be supervisor-only", i)
		}
		if got := table[i].Frame(); got != pmm.Frame(i) {
			t.Fatalf("expected identity-mapped entry %d to point at frame %d; got %d", i, i, got)
		}
	}
}

func TestHandleFaultInstallsMissingEntries(t *testing.T) {
	_, _ = setupTestPaging(t)
	pt := NewPageTable()
	pt.Load()

	vmBase := backedAddress(t, 8)
	vp := NewVMPool(vmBase, 8*mem.PageSize, nil, pt)
	if _, err := vp.Allocate(4 * mem.PageSize); err != nil {
		t.Fatalf("unexpected error allocating a region: %v", err)
	}

	faultAddr := vmBase + uintptr(mem.PageSize)*2 // inside the allocated region

	oldReadCR2 := readCR2Fn
	defer func() { readCR2Fn = oldReadCR2 }()
	readCR2Fn = func() uint32 { return uint32(faultAddr) }

	HandleFault(0, &irq.Frame{}, &irq.Regs{})

	p1 := (faultAddr >> 22) & 0x3FF
	p2 := (faultAddr >> 12) & 0x3FF
	dir := pt.directory()
	if !dir[p1].HasFlags(FlagPresent) {
		t.Fatal("expected HandleFault to install a page table at the faulting directory index")
	}
	table := (*[mem.EntriesPerPage]pageTableEntry)(unsafe.Pointer(dir[p1].Frame().Address()))
	if !table[p2].HasFlags(FlagPresent | FlagRW | FlagUser) {
		t.Fatal("expected HandleFault to install a present, writable, user-accessible backing page")
	}
}

func TestFreePageReleasesFrameAndResetsEntry(t *testing.T) {
	_, _ = setupTestPaging(t)
	pt := NewPageTable()
	pt.Load()

	vmBase := backedAddress(t, 8)
	vp := NewVMPool(vmBase, 8*mem.PageSize, nil, pt)

	faultAddr := vmBase // the descriptor page itself is always legitimate

	oldReadCR2 := readCR2Fn
	defer func() { readCR2Fn = oldReadCR2 }()
	readCR2Fn = func() uint32 { return uint32(faultAddr) }
	HandleFault(0, &irq.Frame{}, &irq.Regs{})

	if err := pt.FreePage(faultAddr); err != nil {
		t.Fatalf("unexpected error from FreePage: %v", err)
	}

	p1 := (faultAddr >> 22) & 0x3FF
	p2 := (faultAddr >> 12) & 0x3FF
	dir := pt.directory()
	table := (*[mem.EntriesPerPage]pageTableEntry)(unsafe.Pointer(dir[p1].Frame().Address()))
	if table[p2].HasFlags(FlagPresent) {
		t.Fatal("expected FreePage to clear the Present flag")
	}

	// Freeing an already-not-present page is a no-op, not an error.
	if err := pt.FreePage(faultAddr); err != nil {
		t.Fatalf("expected freeing an absent page to be a no-op; got %v", err)
	}

	_ = vp
}

func TestCheckAddressConsultsVMPoolChain(t *testing.T) {
	setupTestPaging(t)
	pt := NewPageTable()

	base1 := backedAddress(t, 1)
	base2 := backedAddress(t, 1)
	vp1 := NewVMPool(base1, mem.PageSize, nil, pt)
	vp2 := NewVMPool(base2, mem.PageSize, nil, pt)

	if pt.vmPools != vp2 {
		t.Fatal("expected most recently registered pool to be at the head of the chain")
	}

	if !pt.CheckAddress(base1) {
		t.Fatal("expected address matching vp1's anchor to be legitimate")
	}
	if !pt.CheckAddress(base2) {
		t.Fatal("expected address matching vp2's anchor to be legitimate")
	}
	if pt.CheckAddress(backedAddress(t, 1)) {
		t.Fatal("expected an unrelated address to not be legitimate")
	}

	_ = vp1
}
