// Package pmm contains the physical frame (page) types shared by the
// contiguous frame allocator and the virtual memory manager.
package pmm

import (
	"math"

	"github.com/opsys-edu/gophernel/kernel/mem"
)

// Frame describes a physical memory page index.
type Frame uint64

// InvalidFrame marks the absence of a frame. NewContFramePool takes it as
// infoFrameNo to mean that the pool keeps its bitmap inside its own range.
const InvalidFrame = Frame(math.MaxUint64)

// IsValid returns true if this is a valid frame.
func (f Frame) IsValid() bool {
	return f != InvalidFrame
}

// Address returns the physical memory address pointed to by this Frame.
func (f Frame) Address() uintptr {
	return uintptr(f << mem.PageShift)
}

// FrameState describes the 2-bit allocation state tracked for each frame by
// a ContFramePool's bitmap.
type FrameState uint8

const (
	// FrameFree indicates that the frame is not part of any allocated run.
	FrameFree FrameState = iota

	// FrameInaccessible marks a frame that the allocator must never hand
	// out (e.g. a physical memory hole) and that is invisible to the
	// allocator's free-run search.
	FrameInaccessible

	// FrameAllocated marks a frame that is part of an allocated run but
	// is not the first frame of that run.
	FrameAllocated

	// FrameHeadOfSequence marks the first frame of an allocated run. The
	// run's length is implicit: it is this frame plus every following
	// FrameAllocated frame, up to the next frame that is not FrameAllocated.
	FrameHeadOfSequence
)

// String returns a human readable name for the frame state, used by
// diagnostic bitmap dumps.
func (s FrameState) String() string {
	switch s {
	case FrameFree:
		return "free"
	case FrameInaccessible:
		return "inaccessible"
	case FrameAllocated:
		return "allocated"
	case FrameHeadOfSequence:
		return "head"
	default:
		return "unknown"
	}
}
