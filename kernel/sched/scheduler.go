package sched

import (
	"github.com/opsys-edu/gophernel/kernel/cpu"
	"github.com/opsys-edu/gophernel/kernel/kfmt/early"
	"github.com/opsys-edu/gophernel/kernel/thread"
)

var (
	disableInterruptsFn = cpu.DisableInterrupts
	enableInterruptsFn  = cpu.EnableInterrupts
	dispatchToFn        = thread.DispatchTo
)

// Scheduler multiplexes kernel threads over a single ready queue, FIFO. It
// owns exactly one queue; every mutation of it is bracketed by disabling and
// re-enabling interrupts.
type Scheduler struct {
	ready Queue
}

// New constructs an empty scheduler.
func New() *Scheduler {
	early.Printf("[sched] constructed scheduler\n")
	return &Scheduler{}
}

// Yield gives up the CPU. If the ready queue is empty the calling thread
// keeps running. Otherwise the head of the queue is dispatched to; the
// caller itself is not re-queued, so it must call Resume(CurrentThread())
// first if it wants to remain runnable.
func (s *Scheduler) Yield() {
	disableInterruptsFn()
	next := s.ready.Pop()
	if next == nil {
		enableInterruptsFn()
		return
	}
	enableInterruptsFn()

	dispatchToFn(next)
}

// Resume appends t to the ready queue, making it eligible to run.
func (s *Scheduler) Resume(t *thread.Thread) {
	disableInterruptsFn()
	s.ready.Push(t)
	enableInterruptsFn()
}

// Add makes a newly created thread runnable. It is an alias for Resume.
func (s *Scheduler) Add(t *thread.Thread) {
	s.Resume(t)
}

// Terminate removes t from the ready queue -- a no-op if t is the currently
// running thread, since a thread terminating itself was never requeued --
// and then yields. Go's garbage collector reclaims t's stack and control
// block once nothing references it any longer; there is no explicit
// destructor to run with interrupts disabled.
func (s *Scheduler) Terminate(t *thread.Thread) {
	disableInterruptsFn()
	if thread.CurrentThread() != t {
		s.ready.Delete(t)
	}
	enableInterruptsFn()

	s.Yield()
}

// Len reports the number of threads currently on the ready queue.
func (s *Scheduler) Len() int {
	return s.ready.Len()
}
