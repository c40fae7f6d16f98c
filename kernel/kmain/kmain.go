// Package kmain wires the kernel's four core subsystems together and is the
// first Go code executed after the rt0 bootstrap hands off control.
package kmain

import (
	"github.com/opsys-edu/gophernel/kernel"
	"github.com/opsys-edu/gophernel/kernel/disk"
	"github.com/opsys-edu/gophernel/kernel/hal"
	"github.com/opsys-edu/gophernel/kernel/hal/multiboot"
	"github.com/opsys-edu/gophernel/kernel/kfmt/early"
	"github.com/opsys-edu/gophernel/kernel/mem"
	"github.com/opsys-edu/gophernel/kernel/mem/pmm"
	"github.com/opsys-edu/gophernel/kernel/mem/vmm"
	"github.com/opsys-edu/gophernel/kernel/sched"
	"github.com/opsys-edu/gophernel/kernel/thread"
)

// Memory map constants from spec.md §6, expressed as absolute frame numbers
// (PAGE_SIZE = 4096).
const (
	kernelPoolBase  = pmm.Frame(2 * mem.Mb / mem.PageSize)
	kernelPoolLen   = uint32(2 * mem.Mb / mem.PageSize) // (4MB-2MB)/PAGE_SIZE
	processPoolBase = pmm.Frame(4 * mem.Mb / mem.PageSize)
	processPoolLen  = uint32((32 - 4) * mem.Mb / mem.PageSize)

	holeBase = pmm.Frame(15 * mem.Mb / mem.PageSize)
	holeLen  = uint32(1 * mem.Mb / mem.PageSize)

	identityMappedSize = 4 * mem.Mb

	// requiredMemory is the highest physical address spec.md §6's fixed
	// memory map reaches (the end of the process frame pool). The
	// bootloader-reported memory map must cover at least this much RAM.
	requiredMemory = 32 * mem.Mb

	// demoStackBytes is the stack size given to each cooperative demo
	// thread spawned below.
	demoStackBytes = 4096

	// demoDiskCapacity mirrors the original assignment's SYSTEM_DISK_SIZE.
	demoDiskCapacity = 10 * mem.Mb
)

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}
	errNotEnoughMem  = &kernel.Error{Module: "kmain", Message: "bootloader-reported memory map does not cover the fixed kernel memory map"}
)

// Kmain is the kernel entrypoint. The rt0 initialization code reaches it
// through main in the root package, after rt0 has set up the GDT and a
// minimal g0 struct, letting Go code run on the small stack the assembly
// allocated.
//
// multibootInfoPtr is the address of the multiboot info payload the
// bootloader handed to rt0; kernelStart/kernelEnd are the physical bounds of
// the loaded kernel image, kept for informational logging. The four core
// subsystems carve up the fixed memory map from spec.md §6 rather than
// scanning multiboot themselves; checkMemoryMap is the one place that
// cross-checks that fixed layout against what the bootloader reported.
//
// Kmain is not expected to return. If it does, the rt0 code halts the CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)

	hal.InitTerminal()
	hal.ActiveTerminal.Clear()
	early.Printf("gophernel booting (image [%x, %x))\n", kernelStart, kernelEnd)

	checkMemoryMap()

	kernelPool := pmm.NewContFramePool(kernelPoolBase, kernelPoolLen, pmm.InvalidFrame, 0)
	processPool := pmm.NewContFramePool(processPoolBase, processPoolLen, pmm.InvalidFrame, 0)
	processPool.MarkInaccessible(holeBase, holeLen)

	vmm.InitPaging(kernelPool, processPool, identityMappedSize)
	pageTable := vmm.NewPageTable()
	pageTable.Load()
	vmm.EnablePaging()

	if err := vmm.Init(); err != nil {
		kernel.Panic(err)
	}

	scheduler := sched.New()
	boot := thread.Bootstrap()

	// A demo VMPool covering the first 1 MiB above the identity-mapped
	// region; every page inside it is backed lazily by HandleFault on
	// first touch.
	demoPool := vmm.NewVMPool(uintptr(identityMappedSize), 1*mem.Mb, processPool, pageTable)

	systemDisk := disk.NewBlockingDisk(disk.NewMemDisk(disk.Master, uint32(demoDiskCapacity)), scheduler)

	spawnDemoThreads(scheduler, demoPool, systemDisk)

	early.Printf("[kmain] yielding from the boot thread to start the demo threads\n")
	scheduler.Resume(boot)
	scheduler.Yield()

	kernel.Panic(errKmainReturned)
}

// checkMemoryMap walks the bootloader-reported memory regions and confirms
// that available RAM actually reaches requiredMemory, the top of spec.md
// §6's fixed layout (the process frame pool's end). The four subsystems
// trust that fixed layout unconditionally once they start carving it up, so
// this is the one point where the real multiboot memory map is consulted
// rather than assumed.
func checkMemoryMap() {
	var highestAvailable uint64
	multiboot.VisitMemRegions(func(e *multiboot.MemoryMapEntry) bool {
		if e.Type == multiboot.MemAvailable {
			if end := e.PhysAddress + e.Length; end > highestAvailable {
				highestAvailable = end
			}
		}
		return true
	})

	if highestAvailable < uint64(requiredMemory) {
		kernel.Panic(errNotEnoughMem)
	}
}

// spawnDemoThreads mirrors the original assignment's kernel-simple-example:
// a handful of cooperative threads that print their ID and yield to each
// other, plus one thread that exercises the blocking disk.
func spawnDemoThreads(scheduler *sched.Scheduler, vmPool *vmm.VMPool, systemDisk *disk.BlockingDisk) {
	printer := func() {
		for i := 0; i < 3; i++ {
			early.Printf("[thread %d] iteration %d\n", thread.CurrentThread().ID(), i)
			scheduler.Resume(thread.CurrentThread())
			scheduler.Yield()
		}
		scheduler.Terminate(thread.CurrentThread())
	}

	allocator := func() {
		addr, err := vmPool.Allocate(mem.PageSize)
		if err != nil {
			kernel.Panic(err)
		}
		early.Printf("[thread %d] allocated a page at %x\n", thread.CurrentThread().ID(), addr)
		scheduler.Terminate(thread.CurrentThread())
	}

	diskUser := func() {
		buf := make([]byte, disk.BlockSize)
		for i := range buf {
			buf[i] = '*'
		}
		systemDisk.Write(1, buf)

		readBack := make([]byte, disk.BlockSize)
		systemDisk.Read(1, readBack)
		early.Printf("[thread %d] round-tripped %d bytes through the blocking disk\n", thread.CurrentThread().ID(), len(readBack))

		scheduler.Terminate(thread.CurrentThread())
	}

	t1 := thread.New(printer, demoStackBytes)
	t2 := thread.New(printer, demoStackBytes)
	t3 := thread.New(allocator, demoStackBytes)
	t4 := thread.New(diskUser, demoStackBytes)

	scheduler.Add(t1)
	scheduler.Add(t2)
	scheduler.Add(t3)
	scheduler.Add(t4)
}
