// Package thread implements kernel thread control blocks and the raw
// stack-switch primitive that multiplexes them onto the single CPU.
package thread

import (
	"unsafe"

	"github.com/opsys-edu/gophernel/kernel"
	"github.com/opsys-edu/gophernel/kernel/kfmt/early"
)

// stackAlign is the alignment New gives the top of a thread's stack; the
// initial switchTo frame is built directly below that aligned top.
const stackAlign = 16

// minStackBytes is small but enough to run a trivial entry function; real
// threads should request far more.
const minStackBytes = 256

var (
	nextID  uint32
	current *Thread

	// switchToFn performs the actual register/stack-pointer swap. It is a
	// var so tests can replace it with a fake that never really jumps
	// control flow elsewhere.
	switchToFn = switchTo
)

// Thread is a kernel thread: an independent stack plus the saved CPU state
// needed to resume it. Threads never return from their entry function; they
// terminate by asking a scheduler to remove them from the ready queue.
type Thread struct {
	id    uint32
	stack []byte
	esp   uintptr
	entry func()
}

// New allocates a stackBytes-sized stack for entry and prepares it so that
// the first DispatchTo into this thread begins executing entry.
func New(entry func(), stackBytes uint32) *Thread {
	if entry == nil {
		kernel.Panic(&kernel.Error{Module: "thread", Message: "Thread: entry function must not be nil"})
	}
	if stackBytes < minStackBytes {
		kernel.Panic(&kernel.Error{Module: "thread", Message: "Thread: requested stack is too small"})
	}

	t := &Thread{
		id:    nextID,
		stack: make([]byte, stackBytes),
		entry: entry,
	}
	nextID++

	top := uintptr(unsafe.Pointer(&t.stack[len(t.stack)-1])) + 1
	top &^= stackAlign - 1
	t.esp = buildInitialFrame(top)

	early.Printf("[thread] created thread %d with %d byte stack\n", t.id, stackBytes)
	return t
}

// ID returns the thread's identifier, assigned in creation order starting
// at zero.
func (t *Thread) ID() uint32 { return t.id }

// CurrentThread returns the thread presently executing on the CPU, or nil
// before Bootstrap has established the initial thread context.
func CurrentThread() *Thread { return current }

// Bootstrap adopts the calling context -- the one running kmain before any
// cooperative thread has ever been dispatched to -- as the current thread,
// so that it can later be resumed like any other. It must be called at most
// once, before the first DispatchTo.
func Bootstrap() *Thread {
	t := &Thread{id: nextID}
	nextID++
	current = t
	early.Printf("[thread] bootstrapped thread %d from the boot context\n", t.id)
	return t
}

// DispatchTo switches the CPU from the calling thread to next, saving the
// caller's stack pointer and restoring next's. It must be called with
// interrupts enabled so the resumed thread can receive timer ticks; it
// returns only when some other thread later dispatches back to the caller.
func DispatchTo(next *Thread) {
	prev := current
	current = next

	if prev == nil {
		var discard uintptr
		switchToFn(&discard, next.esp)
		return
	}
	switchToFn(&prev.esp, next.esp)
}

// trampoline is the landing point for the very first DispatchTo into a
// freshly created thread. buildInitialFrame arranges the new stack so that
// switchTo's restore sequence "returns" here instead of into some caller.
func trampoline() {
	current.entry()
	kernel.Panic(&kernel.Error{Module: "thread", Message: "Thread: entry function returned instead of terminating itself"})
}

// buildInitialFrame lays out a fake switchTo exit frame at the top of a new
// thread's stack: four saved callee-saved registers (zeroed) below a return
// address pointing at trampoline, so that the thread's first resume falls
// straight into it.
func buildInitialFrame(top uintptr) uintptr {
	sp := top

	sp -= 4
	*(*uint32)(unsafe.Pointer(sp)) = uint32(trampolineAddr())

	for i := 0; i < 4; i++ { // BX, SI, DI, BP
		sp -= 4
		*(*uint32)(unsafe.Pointer(sp)) = 0
	}

	return sp
}

// switchTo saves the current stack pointer into *savedESP and switches
// execution onto the stack at newESP. Implemented in thread_386.s.
func switchTo(savedESP *uintptr, newESP uintptr)

// trampolineAddr returns trampoline's entry address for use as a raw return
// address on a fabricated stack frame. Implemented in thread_386.s.
func trampolineAddr() uintptr
