// Package ksync implements the three blocking sync primitives built on top
// of sched's scheduler core: message queues, counting/binary semaphores,
// and priority-inheriting mutexes (spec.md §4.7-4.9). Every blocking call
// in this package follows the same loop spec.md §4.6 calls the shared
// wait/timeout protocol, grounded directly on original_source's
// kernel/src/semaphore.c and mutex.c -- each entry point duplicates the
// loop rather than sharing one generic helper, the same way those two C
// files do, since the fast-path condition and wait-list differ per object
// and a forced abstraction would just hide that.
package ksync

import (
	"nanokernel/kernel/kerr"
	"nanokernel/kernel/ktime"
	"nanokernel/kernel/list"
	"nanokernel/kernel/sched"
)

// Semaphore is a counting semaphore. A Post while a waiter is queued
// increments count and wakes that waiter, which takes the token through
// its own wait loop once it runs. The token is not handed to the waiter
// directly: until the waiter runs it sits in count, a Wait from another
// task can take it first, and the woken waiter then queues again.
type Semaphore struct {
	s        *sched.Scheduler
	Name     string
	count    int
	max      int
	waiters  list.List[*sched.TCB]
	deleted  bool
}

// Init populates an already-allocated Semaphore in place. It rejects
// max == 0 or initial > max with kerr.Null, mirroring sem_create's NULL
// return on the same bad arguments in original_source/kernel/src/semaphore.c.
func (sem *Semaphore) Init(s *sched.Scheduler, initial, max int, name string) kerr.Kind {
	if max == 0 || initial > max {
		return kerr.Null
	}
	sem.s = s
	sem.Name = name
	sem.count = initial
	sem.max = max
	sem.waiters = list.List[*sched.TCB]{}
	sem.deleted = false
	return kerr.OK
}

// Delete wakes every waiter with WokeDeleted and marks the semaphore
// unusable; the caller is responsible for returning the slot to its pool.
func (sem *Semaphore) Delete() {
	cs := sem.s.CS()
	tok := cs.Enter()
	sem.deleted = true
	var woken []*sched.TCB
	for n := sem.waiters.PopFront(); n != nil; n = sem.waiters.PopFront() {
		t := n.Value
		t.OnDetach = nil
		woken = append(woken, t)
	}
	cs.Leave(tok)
	for _, t := range woken {
		sem.s.WakeBlocked(t, sched.WokeDeleted)
	}
}

// Wait blocks self until a token is available or timeoutTicks elapses.
// timeoutTicks == ktime.NoWait never blocks; ktime.WaitForever never times
// out.
func (sem *Semaphore) Wait(self *sched.TCB, timeoutTicks uint32) kerr.Kind {
	deadline := sem.s.Now() + timeoutTicks
	for {
		cs := sem.s.CS()
		tok := cs.Enter()

		if sem.deleted {
			cs.Leave(tok)
			return kerr.ObjectDeleted
		}
		if sem.count > 0 {
			sem.count--
			cs.Leave(tok)
			return kerr.OK
		}
		if timeoutTicks == ktime.NoWait {
			cs.Leave(tok)
			return kerr.Empty
		}
		now := sem.s.NowLocked()
		remaining := timeoutTicks
		if timeoutTicks != ktime.WaitForever {
			remaining = ktime.TicksUntil(deadline, now)
			if remaining == 0 {
				cs.Leave(tok)
				return kerr.Timeout
			}
		}

		sem.waiters.PushBack(&self.WaitNode)
		self.OnDetach = func() { sem.detach(self) }
		cs.Leave(tok)

		reason := sem.s.Block(self, remaining)
		if reason == sched.WokeTimeout {
			return kerr.Timeout
		}
		if reason == sched.WokeDeleted {
			return kerr.ObjectDeleted
		}
		if timeoutTicks != ktime.WaitForever {
			timeoutTicks = ktime.TicksUntil(deadline, sem.s.Now())
			if timeoutTicks == 0 {
				return kerr.Timeout
			}
		}
		// WokeNormally: loop and re-check the fast path.
	}
}

// detach removes self from sem.waiters; called by the scheduler (via
// OnDetach) when self's wait times out or the task is deleted while
// blocked, never by Wait itself (Wait's own PopFront in Post already
// clears OnDetach first).
func (sem *Semaphore) detach(self *sched.TCB) {
	cs := sem.s.CS()
	tok := cs.Enter()
	sem.waiters.Remove(&self.WaitNode)
	cs.Leave(tok)
}

// TryWait is Wait with a zero timeout.
func (sem *Semaphore) TryWait(self *sched.TCB) kerr.Kind {
	return sem.Wait(self, ktime.NoWait)
}

// Post releases one token. If a waiter is queued, count is incremented
// without checking max and that waiter is woken; it decrements count
// later, through its own wait loop's fast path, in a separate critical
// section. With no waiter queued, Post returns kerr.Overflow if count is
// already at max, and increments count otherwise.
func (sem *Semaphore) Post() kerr.Kind {
	cs := sem.s.CS()
	tok := cs.Enter()
	if sem.deleted {
		cs.Leave(tok)
		return kerr.ObjectDeleted
	}
	n := sem.waiters.PopFront()
	if n == nil && sem.count >= sem.max {
		cs.Leave(tok)
		return kerr.Overflow
	}
	sem.count++
	var woken *sched.TCB
	if n != nil {
		woken = n.Value
		woken.OnDetach = nil
	}
	cs.Leave(tok)
	if woken != nil {
		sem.s.WakeBlocked(woken, sched.WokeNormally)
	}
	return kerr.OK
}

// GetCount returns the current token count.
func (sem *Semaphore) GetCount() int {
	cs := sem.s.CS()
	tok := cs.Enter()
	defer cs.Leave(tok)
	return sem.count
}

// HasWaitingTasks reports whether any task is blocked in Wait.
func (sem *Semaphore) HasWaitingTasks() bool {
	cs := sem.s.CS()
	tok := cs.Enter()
	defer cs.Leave(tok)
	return !sem.waiters.Empty()
}
