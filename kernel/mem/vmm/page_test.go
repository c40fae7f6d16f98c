package vmm

import (
	"testing"

	"github.com/opsys-edu/gophernel/kernel/mem"
)

func TestPageMethods(t *testing.T) {
	for pageIndex := uint64(0); pageIndex < 128; pageIndex++ {
		page := Page(pageIndex)

		if exp, got := uintptr(pageIndex<<mem.PageShift), page.Address(); got != exp {
			t.Errorf("expected page (%d, index: %d) call to Address() to return %x; got %x", page, pageIndex, exp, got)
		}
	}
}

func TestPageIndices(t *testing.T) {
	specs := []struct {
		addr  uintptr
		expP1 uintptr
		expP2 uintptr
	}{
		{0, 0, 0},
		{4096, 0, 1},
		{uintptr(4 * mem.Mb), 1, 0},
		{uintptr(4*mem.Mb + 8192), 1, 2},
	}

	for specIndex, spec := range specs {
		page := PageFromAddress(spec.addr)
		if got := page.DirectoryIndex(); got != spec.expP1 {
			t.Errorf("[spec %d] expected DirectoryIndex() to return %d; got %d", specIndex, spec.expP1, got)
		}
		if got := page.TableIndex(); got != spec.expP2 {
			t.Errorf("[spec %d] expected TableIndex() to return %d; got %d", specIndex, spec.expP2, got)
		}
	}
}

func TestPageFromAddress(t *testing.T) {
	specs := []struct {
		input   uintptr
		expPage Page
	}{
		{0, Page(0)},
		{4095, Page(0)},
		{4096, Page(1)},
		{4123, Page(1)},
	}

	for specIndex, spec := range specs {
		if got := PageFromAddress(spec.input); got != spec.expPage {
			t.Errorf("[spec %d] expected returned page to be %v; got %v", specIndex, spec.expPage, got)
		}
	}
}
