package vmm

import (
	"github.com/opsys-edu/gophernel/kernel/mem"
	"github.com/opsys-edu/gophernel/kernel/mem/pmm"
)

// PageTableEntryFlag describes a flag that can be applied to a page
// directory or page table entry. Only the low 12 bits of a 32-bit x86 entry
// are flag bits; the remaining bits hold the frame number.
type PageTableEntryFlag uint32

const (
	// FlagPresent marks an entry as pointing to a valid frame.
	FlagPresent = PageTableEntryFlag(1 << 0)

	// FlagRW marks an entry as writable.
	FlagRW = PageTableEntryFlag(1 << 1)

	// FlagUser marks an entry as accessible from user-mode code.
	FlagUser = PageTableEntryFlag(1 << 2)

	// entryFlagMask selects the bits of an entry that are flags rather
	// than part of the encoded frame number.
	entryFlagMask = uint32(mem.PageSize - 1)
)

// notPresentPDE is installed in directory entries that have not yet been
// populated with a page table: writable, supervisor, not present.
const notPresentPDE = pageTableEntry(0b010)

// notPresentPTE is installed in table entries that have not yet been
// populated with a backing frame: writable, user, not present.
const notPresentPTE = pageTableEntry(0b110)

// pageTableEntry describes a single 32-bit page directory or page table
// entry: the high 20 bits hold a frame number, the low 12 bits hold flags.
type pageTableEntry uint32

// HasFlags returns true if this entry has every one of the input flags set.
func (pte pageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return uint32(pte)&uint32(flags) == uint32(flags)
}

// SetFlags ORs the input flags into the entry, leaving the frame untouched.
func (pte *pageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = pageTableEntry(uint32(*pte) | uint32(flags))
}

// ClearFlags unsets the input flags from the entry, leaving the frame untouched.
func (pte *pageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte = pageTableEntry(uint32(*pte) &^ uint32(flags))
}

// Frame returns the physical frame that this entry points to, ignoring the
// entry's flag bits.
func (pte pageTableEntry) Frame() pmm.Frame {
	return pmm.Frame(uint32(pte) &^ entryFlagMask >> mem.PageShift)
}

// SetFrame updates the entry to point at the given frame, preserving the
// entry's current flags.
func (pte *pageTableEntry) SetFrame(frame pmm.Frame) {
	*pte = pageTableEntry((uint32(*pte) & entryFlagMask) | uint32(frame.Address()))
}
