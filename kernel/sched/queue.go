// Package sched implements the cooperative, single ready-queue FIFO
// scheduler that multiplexes kernel threads onto the CPU.
package sched

import (
	"container/list"

	"github.com/opsys-edu/gophernel/kernel/thread"
)

// Queue is a FIFO ready queue of threads. No third-party or hand-rolled
// linked list is a better fit than container/list here: push is an append,
// pop takes the front, and delete is a linear scan by identity -- exactly
// what container/list already provides.
type Queue struct {
	l list.List
}

// Push appends t to the back of the queue.
func (q *Queue) Push(t *thread.Thread) {
	q.l.PushBack(t)
}

// Pop removes and returns the thread at the front of the queue, or nil if
// the queue is empty.
func (q *Queue) Pop() *thread.Thread {
	e := q.l.Front()
	if e == nil {
		return nil
	}
	q.l.Remove(e)
	return e.Value.(*thread.Thread)
}

// Delete removes the first node whose thread pointer matches t. A no-op if
// t is not present.
func (q *Queue) Delete(t *thread.Thread) {
	for e := q.l.Front(); e != nil; e = e.Next() {
		if e.Value.(*thread.Thread) == t {
			q.l.Remove(e)
			return
		}
	}
}

// Len reports the number of threads currently queued.
func (q *Queue) Len() int {
	return q.l.Len()
}
