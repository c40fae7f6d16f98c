package pmm

import (
	"reflect"
	"unsafe"

	"github.com/opsys-edu/gophernel/kernel"
	"github.com/opsys-edu/gophernel/kernel/errors"
	"github.com/opsys-edu/gophernel/kernel/mem"
)

// framesPerInfoFrame is the number of frame descriptors (2 bits each) that
// fit inside a single management frame.
const framesPerInfoFrame = uint32(mem.PageSize) * 4

// poolListHead anchors the global singly linked list of live ContFramePools.
// release_frames is a static operation and routes through this list to find
// the pool that owns a given frame. New pools are inserted at the head so
// that every previously registered pool remains reachable regardless of how
// many pools are created.
var poolListHead *ContFramePool

// panicFn is mocked by tests that need to observe ReleaseFrames' invariant
// violations without halting the process.
var panicFn = kernel.Panic

// ContFramePool is a bitmap-backed allocator for contiguous runs of physical
// page frames. Each frame is described by two bits (FrameState) packed four
// to a byte, most-significant pair first.
type ContFramePool struct {
	baseFrameNo Frame
	nFrames     uint32

	infoFrameNo Frame
	nInfoFrames uint32

	bitmap    []byte
	bitmapHdr reflect.SliceHeader

	next *ContFramePool
}

// NewContFramePool constructs a pool owning [baseFrameNo, baseFrameNo+nFrames).
// If infoFrameNo is InvalidFrame the pool places its bitmap at the start of
// its own range, reserving that range as a single allocated run; when
// nInfoFrames is also zero it first computes how many management frames it
// needs. Otherwise the bitmap is assumed to live at infoFrameNo, outside the
// pool's own range.
func NewContFramePool(baseFrameNo Frame, nFrames uint32, infoFrameNo Frame, nInfoFrames uint32) *ContFramePool {
	if nInfoFrames == 0 && infoFrameNo == InvalidFrame {
		nInfoFrames = NeededInfoFrames(nFrames)
	}

	if nFrames%4 != 0 {
		kernel.Panic("ContFramePool: n_frames must be a multiple of 4")
	}
	if nFrames > framesPerInfoFrame*nInfoFrames {
		kernel.Panic("ContFramePool: n_frames exceeds bitmap capacity")
	}

	pool := &ContFramePool{
		baseFrameNo: baseFrameNo,
		nFrames:     nFrames,
		infoFrameNo: infoFrameNo,
		nInfoFrames: nInfoFrames,
	}

	bitmapBytes := uintptr(nFrames / 4)
	var bitmapAddr uintptr
	internal := infoFrameNo == InvalidFrame
	if internal {
		bitmapAddr = baseFrameNo.Address()
	} else {
		bitmapAddr = infoFrameNo.Address()
	}

	pool.bitmapHdr.Data = bitmapAddr
	pool.bitmapHdr.Len = int(bitmapBytes)
	pool.bitmapHdr.Cap = int(bitmapBytes)
	pool.bitmap = *(*[]byte)(unsafe.Pointer(&pool.bitmapHdr))

	for i := uint32(0); i < nFrames; i++ {
		pool.setState(i, FrameFree)
	}

	if internal {
		pool.markRun(0, nInfoFrames)
	}

	pool.next = poolListHead
	poolListHead = pool

	return pool
}

// state returns the FrameState of the relFrame-th frame in this pool (frame
// index relative to baseFrameNo).
func (p *ContFramePool) state(relFrame uint32) FrameState {
	b := p.bitmap[relFrame/4]
	shift := 6 - 2*(relFrame%4)
	return FrameState((b >> shift) & 0x3)
}

// setState updates the FrameState of the relFrame-th frame in this pool.
func (p *ContFramePool) setState(relFrame uint32, s FrameState) {
	idx := relFrame / 4
	shift := 6 - 2*(relFrame%4)
	mask := byte(0x3) << shift
	p.bitmap[idx] = (p.bitmap[idx] &^ mask) | (byte(s) << shift)
}

// markRun marks relFrame as HeadOfSequence and the following n-1 frames as
// Allocated.
func (p *ContFramePool) markRun(relFrame, n uint32) {
	p.setState(relFrame, FrameHeadOfSequence)
	for i := uint32(1); i < n; i++ {
		p.setState(relFrame+i, FrameAllocated)
	}
}

// GetFrames reserves a contiguous run of n frames and returns the frame
// number of the run's first (head-of-sequence) frame. The search is
// first-fit, lowest address first. There is no out-of-memory return value:
// a pool that cannot satisfy the request has violated its caller's sizing
// contract and GetFrames panics.
func (p *ContFramePool) GetFrames(n uint32) Frame {
	if n == 0 {
		kernel.Panic(errors.ErrInvalidParamValue)
	}

	var lastHead, count uint32
	found := false
	for i := uint32(0); i < p.nFrames; i++ {
		if p.state(i) == FrameFree {
			count++
			if count >= n {
				found = true
				break
			}
		} else {
			lastHead = i + 1
			count = 0
		}
	}

	if !found {
		kernel.Panic(&kernel.Error{Module: "pmm", Message: "ContFramePool.GetFrames: out of frames", Kind: kernel.OutOfFrames})
	}

	p.markRun(lastHead, n)
	return p.baseFrameNo + Frame(lastHead)
}

// MarkInaccessible marks [base, base+n) (absolute frame numbers) as
// Inaccessible, making them invisible to GetFrames and permanently
// unreleasable. Used by the bootstrap code to carve out physical memory
// holes (e.g. ACPI/BIOS reserved regions) inside an otherwise available pool.
func (p *ContFramePool) MarkInaccessible(base Frame, n uint32) {
	if n == 0 {
		kernel.Panic(errors.ErrInvalidParamValue)
	}

	rel := uint32(base - p.baseFrameNo)
	p.setState(rel, FrameInaccessible)
	for i := uint32(1); i < n; i++ {
		p.setState(rel+i, FrameInaccessible)
	}
}

// ReleaseFrames is a static operation: the pool owning firstFrameNo is not
// known to the caller, so it walks the global pool list to find it. The
// frame must currently be a head-of-sequence frame. Both failure modes are
// invariant violations rather than recoverable conditions: a caller can only
// reach either one by releasing a frame number it never received from
// GetFrames. Both panic, matching spec.md §7's disposition table (the same
// row as the ContFramePool constructor's n_frames invariant checks above).
func ReleaseFrames(firstFrameNo Frame) *kernel.Error {
	var owner *ContFramePool
	for p := poolListHead; p != nil; p = p.next {
		if firstFrameNo >= p.baseFrameNo && firstFrameNo < p.baseFrameNo+Frame(p.nFrames) {
			owner = p
			break
		}
	}

	if owner == nil {
		panicFn(&kernel.Error{Module: "pmm", Message: "ReleaseFrames: frame does not belong to any pool", Kind: kernel.InvalidRelease})
	}

	rel := uint32(firstFrameNo - owner.baseFrameNo)
	if owner.state(rel) != FrameHeadOfSequence {
		panicFn(&kernel.Error{Module: "pmm", Message: "ReleaseFrames: frame is not a head of sequence", Kind: kernel.InvalidRelease})
	}

	owner.setState(rel, FrameFree)
	for cur := rel + 1; cur < owner.nFrames; cur++ {
		if owner.state(cur) != FrameAllocated {
			break
		}
		owner.setState(cur, FrameFree)
	}

	return nil
}

// NeededInfoFrames returns the number of management frames required to hold
// the 2-bit-per-frame bitmap describing a pool of n frames.
func NeededInfoFrames(n uint32) uint32 {
	return (n + framesPerInfoFrame - 1) / framesPerInfoFrame
}
