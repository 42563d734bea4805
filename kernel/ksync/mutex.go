package ksync

import (
	"nanokernel/kernel/kerr"
	"nanokernel/kernel/ktime"
	"nanokernel/kernel/list"
	"nanokernel/kernel/sched"
)

// noInheritance is the saved-priority sentinel: "inheritance not currently
// applied", grounded on original_source's mutex_control_block using
// MAX_PRIORITY as its own sentinel for the same reason (a real priority
// value can never coincide with the lowest band-and-one-past-it it uses).
const noInheritance = -1

// Mutex is a binary lock with single-step priority inheritance (spec.md
// §4.9): a lock request from a higher-priority waiter temporarily boosts
// the current owner's effective priority to the waiter's, reverted exactly
// to the owner's base priority on unlock or delete.
type Mutex struct {
	s        *sched.Scheduler
	Name     string
	owner    *sched.TCB
	waiters  list.List[*sched.TCB]
	savedPri int // noInheritance, or owner's base_priority pre-boost
	deleted  bool
}

// Init populates an already-allocated Mutex in place.
func (m *Mutex) Init(s *sched.Scheduler, name string) {
	m.s = s
	m.Name = name
	m.owner = nil
	m.waiters = list.List[*sched.TCB]{}
	m.savedPri = noInheritance
	m.deleted = false
}

// Delete restores the owner's priority if inheritance was applied, wakes
// every waiter with WokeDeleted, and marks the mutex unusable.
func (m *Mutex) Delete() {
	cs := m.s.CS()
	tok := cs.Enter()
	m.restorePriorityLocked()
	m.owner = nil
	m.deleted = true
	var woken []*sched.TCB
	for n := m.waiters.PopFront(); n != nil; n = m.waiters.PopFront() {
		t := n.Value
		t.OnDetach = nil
		woken = append(woken, t)
	}
	cs.Leave(tok)
	for _, t := range woken {
		m.s.WakeBlocked(t, sched.WokeDeleted)
	}
}

// Lock acquires the mutex, blocking self for up to timeoutTicks if it is
// already held. Recursive lock by the current owner returns kerr.Recursive
// without blocking.
func (m *Mutex) Lock(self *sched.TCB, timeoutTicks uint32) kerr.Kind {
	deadline := m.s.Now() + timeoutTicks
	for {
		cs := m.s.CS()
		tok := cs.Enter()

		if m.deleted {
			cs.Leave(tok)
			return kerr.ObjectDeleted
		}
		if m.owner == nil {
			m.owner = self
			cs.Leave(tok)
			return kerr.OK
		}
		if m.owner == self {
			cs.Leave(tok)
			return kerr.Recursive
		}
		if timeoutTicks == ktime.NoWait {
			cs.Leave(tok)
			return kerr.Timeout
		}
		now := m.s.NowLocked()
		remaining := timeoutTicks
		if timeoutTicks != ktime.WaitForever {
			remaining = ktime.TicksUntil(deadline, now)
			if remaining == 0 {
				cs.Leave(tok)
				return kerr.Timeout
			}
		}

		m.waiters.PushBack(&self.WaitNode)
		self.OnDetach = func() { m.detach(self) }
		m.applyInheritanceLocked(self.Priority)
		cs.Leave(tok)

		reason := m.s.Block(self, remaining)
		if reason == sched.WokeTimeout {
			return kerr.Timeout
		}
		if reason == sched.WokeDeleted {
			return kerr.ObjectDeleted
		}
		if timeoutTicks != ktime.WaitForever {
			timeoutTicks = ktime.TicksUntil(deadline, m.s.Now())
			if timeoutTicks == 0 {
				return kerr.Timeout
			}
		}
		// WokeNormally: the mutex is free (or was, at wake time); loop
		// and re-attempt the fast path -- ownership transfer happens
		// here, not in unlock, so the protocol stays one wait loop.
	}
}

// TryLock is Lock with a zero timeout.
func (m *Mutex) TryLock(self *sched.TCB) kerr.Kind {
	return m.Lock(self, ktime.NoWait)
}

// Unlock releases the mutex. It returns kerr.NotOwner if self does not
// hold it. Priority inheritance, if applied, is reverted before the
// mutex-state change is visible to a woken waiter.
func (m *Mutex) Unlock(self *sched.TCB) kerr.Kind {
	cs := m.s.CS()
	tok := cs.Enter()
	if m.deleted {
		cs.Leave(tok)
		return kerr.ObjectDeleted
	}
	if m.owner != self {
		cs.Leave(tok)
		return kerr.NotOwner
	}
	m.restorePriorityLocked()
	m.owner = nil
	n := m.waiters.PopFront()
	var woken *sched.TCB
	if n != nil {
		woken = n.Value
		woken.OnDetach = nil
	}
	cs.Leave(tok)
	if woken != nil {
		m.s.WakeBlocked(woken, sched.WokeNormally)
	}
	return kerr.OK
}

func (m *Mutex) detach(self *sched.TCB) {
	cs := m.s.CS()
	tok := cs.Enter()
	m.waiters.Remove(&self.WaitNode)
	cs.Leave(tok)
}

// applyInheritanceLocked boosts m.owner's priority to newWaiterPriority if
// that is strictly higher (numerically lower) than the owner's current
// effective priority, saving the owner's base priority the first time
// inheritance is applied.
func (m *Mutex) applyInheritanceLocked(newWaiterPriority int) {
	if m.owner == nil {
		return
	}
	if newWaiterPriority >= m.owner.Priority {
		return
	}
	if m.savedPri == noInheritance {
		m.savedPri = m.owner.Base
	}
	m.s.BoostPriority(m.owner, newWaiterPriority)
}

// restorePriorityLocked reverts a prior boost, if any, on unlock or delete.
// Matches spec.md §4.9's single-step inheritance exactly: a waiter whose
// own wait times out or is cancelled does not shrink an already-applied
// boost early, only unlock/delete does.
func (m *Mutex) restorePriorityLocked() {
	if m.owner == nil || m.savedPri == noInheritance {
		return
	}
	m.s.RestorePriority(m.owner, m.savedPri)
	m.savedPri = noInheritance
}

// GetOwner returns the current owner, or nil if unlocked.
func (m *Mutex) GetOwner() *sched.TCB {
	cs := m.s.CS()
	tok := cs.Enter()
	defer cs.Leave(tok)
	return m.owner
}

// IsLocked reports whether the mutex is currently held.
func (m *Mutex) IsLocked() bool {
	return m.GetOwner() != nil
}

// HasWaitingTasks reports whether any task is blocked in Lock.
func (m *Mutex) HasWaitingTasks() bool {
	cs := m.s.CS()
	tok := cs.Enter()
	defer cs.Leave(tok)
	return !m.waiters.Empty()
}
