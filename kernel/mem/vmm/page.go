package vmm

import "github.com/opsys-edu/gophernel/kernel/mem"

// Page describes a virtual memory page index.
type Page uintptr

// Address returns a pointer to the virtual memory address pointed to by this Page.
func (f Page) Address() uintptr {
	return uintptr(f << mem.PageShift)
}

// DirectoryIndex returns this page's index into a 2-level page directory
// (bits [31:22] of the corresponding virtual address).
func (f Page) DirectoryIndex() uintptr {
	return (uintptr(f) >> 10) & 0x3FF
}

// TableIndex returns this page's index into the page table its directory
// entry points to (bits [21:12] of the corresponding virtual address).
func (f Page) TableIndex() uintptr {
	return uintptr(f) & 0x3FF
}

// PageFromAddress returns a Page that corresponds to the given virtual
// address. This function can handle both page-aligned and not aligned virtual
// addresses. in the latter case, the input address will be rounded down to the
// page that contains it.
func PageFromAddress(virtAddr uintptr) Page {
	return Page((virtAddr & ^(uintptr(mem.PageSize - 1))) >> mem.PageShift)
}
