package main

import "github.com/opsys-edu/gophernel/kernel/kmain"

var (
	multibootInfoPtr       uintptr
	kernelStart, kernelEnd uintptr
)

// main is the only Go symbol that is visible (exported) from the rt0
// initialization code. It trampolines into the real kernel entrypoint
// (kmain.Kmain) and is intentionally defined this way to keep the Go
// compiler from optimizing away the kernel code it has no visibility into
// from the rt0 assembly side.
//
// main is invoked by the rt0 assembly code after it has set up the GDT and a
// minimal g0 struct, letting Go code run on the 4K stack the assembly
// allocated. The three globals are patched by that same assembly before
// jumping here: the multiboot info pointer handed to us by the bootloader,
// and the physical start/end addresses of the loaded kernel image.
//
// main is not expected to return. If it does, the rt0 code halts the CPU.
func main() {
	kmain.Kmain(multibootInfoPtr, kernelStart, kernelEnd)
}
