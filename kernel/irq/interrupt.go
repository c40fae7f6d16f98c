package irq

import "github.com/opsys-edu/gophernel/kernel/kfmt/early"

// Regs holds the general purpose register contents saved by the assembly
// trampoline before invoking a Go exception/IRQ handler.
type Regs struct {
	EAX, EBX, ECX, EDX uint32
	ESI, EDI, EBP      uint32
}

// Print outputs the register contents to the active console. Mostly useful
// when printing diagnostics for an unrecoverable exception.
func (r *Regs) Print() {
	early.Printf("EAX: %8x, EBX: %8x\n", r.EAX, r.EBX)
	early.Printf("ECX: %8x, EDX: %8x\n", r.ECX, r.EDX)
	early.Printf("ESI: %8x, EDI: %8x\n", r.ESI, r.EDI)
	early.Printf("EBP: %8x\n", r.EBP)
}

// Frame describes the machine state pushed onto the stack by the CPU itself
// when an interrupt or exception occurs.
type Frame struct {
	EIP, CS, EFlags, ESP, SS uint32
}

// Print outputs the frame contents to the active console.
func (f *Frame) Print() {
	early.Printf("EIP: %8x, CS: %8x\n", f.EIP, f.CS)
	early.Printf("EFLAGS: %8x\n", f.EFlags)
	early.Printf("ESP: %8x, SS: %8x\n", f.ESP, f.SS)
}
