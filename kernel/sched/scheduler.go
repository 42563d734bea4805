package sched

import (
	"golang.org/x/sync/semaphore"

	"nanokernel/kernel/kerr"
	"nanokernel/kernel/klog"
	"nanokernel/kernel/ktime"
	"nanokernel/kernel/list"
	"nanokernel/kernel/pool"
	"nanokernel/kernel/port"
)

// Scheduler is the banded-priority ready-queue + wrap-safe delayed-list
// core (spec.md §3, §5). It owns no knowledge of queues, semaphores, or
// mutexes -- ksync calls back into it through Block and WakeBlocked for
// its wait/timeout loop, BoostPriority and RestorePriority for mutex
// priority inheritance, and Now, NowLocked, and CS for the tick count and
// the shared critical section.
type Scheduler struct {
	cs   port.CriticalSection
	sw   port.Switcher
	fp   port.FramePreparer
	pool *pool.Pool[TCB]

	ready           []list.List[*TCB] // index 0 == highest priority
	delayedCurrent  list.List[*TCB]
	delayedOverflow list.List[*TCB]

	now     uint32
	current *TCB
	idle    *TCB

	// cpu is the single-core invariant: at most one task goroutine ever
	// holds it. Grounded on the teacher's prohibitPreemption/
	// permitPreemption pairing in family.go, made runtime-checked here
	// via a weight-1 golang.org/x/sync/semaphore instead of a plain
	// counter, since TryAcquire can catch a second, buggy holder
	// instead of just miscounting past it. Unused by the tinygo port,
	// which has a real single core and no goroutines to police.
	cpu *semaphore.Weighted
}

// New builds a Scheduler with maxPriority+1 ready bands and a task pool of
// maxTasks TCBs.
func New(maxPriority, maxTasks int, cs port.CriticalSection, sw port.Switcher, fp port.FramePreparer) *Scheduler {
	if maxPriority < 0 || maxTasks <= 0 {
		panic("sched: invalid scheduler bounds")
	}
	return &Scheduler{
		cs:    cs,
		sw:    sw,
		fp:    fp,
		pool:  pool.New[TCB](maxTasks),
		ready: make([]list.List[*TCB], maxPriority+1),
		cpu:   semaphore.NewWeighted(1),
	}
}

// MaxPriority returns the lowest (numerically largest) valid priority.
func (s *Scheduler) MaxPriority() int { return len(s.ready) - 1 }

// CS returns the critical section this scheduler was built with, so ksync
// can guard its own wait-list and object-state mutations with the same
// mutual-exclusion primitive the scheduler itself uses, exactly as
// spec.md §4.6's shared wait/timeout protocol assumes a single critical
// section shared by every subsystem touching TCB state.
func (s *Scheduler) CS() port.CriticalSection { return s.cs }

// Now returns the current tick count.
func (s *Scheduler) Now() uint32 {
	tok := s.cs.Enter()
	defer s.cs.Leave(tok)
	return s.now
}

// NowLocked returns the current tick count without entering the critical
// section. Callers in ksync that already hold CS() (e.g. mid-way through
// the shared wait/timeout loop) use this instead of Now, since Enter is
// not reentrant.
func (s *Scheduler) NowLocked() uint32 { return s.now }

// Current returns the task currently marked Running, or nil before the
// first Dispatch.
func (s *Scheduler) Current() *TCB {
	tok := s.cs.Enter()
	defer s.cs.Leave(tok)
	return s.current
}

// SetIdle registers the always-runnable idle task, created by the caller
// with priority MaxPriority via AddTask. It must be called exactly once,
// before the first Dispatch.
func (s *Scheduler) SetIdle(idle *TCB) {
	s.idle = idle
}

// AddTask allocates a TCB at the given priority, builds its initial stack
// frame via the configured FramePreparer, and links it into its ready
// band. It returns kerr.AllocationFailed if the task pool is exhausted.
func (s *Scheduler) AddTask(name string, priority int, stackSize int, fn func(uintptr), param uintptr) (*TCB, kerr.Kind) {
	if priority < 0 || priority > s.MaxPriority() {
		return nil, kerr.Null
	}
	tok := s.cs.Enter()
	t := s.pool.Alloc()
	if t == nil {
		s.cs.Leave(tok)
		return nil, kerr.AllocationFailed
	}
	id, _ := s.pool.IndexOf(t)
	s.cs.Leave(tok)

	*t = TCB{ID: id, wake: make(chan struct{}, 1)}
	t.Name = name
	t.schedNode.Value = t
	t.WaitNode.Value = t
	t.Priority = priority
	t.Base = priority
	t.Stack = make([]byte, stackSize)
	t.Fn = fn
	t.Param = param
	// fn is a Go closure, not a bare machine address, so there is no
	// uintptr to give PrepareInitialFrame as PC; a real port's trampoline
	// (entered via PendSV) is what would actually call into t.Fn, not the
	// raw frame this builds. Passed as 0 since this port dispatches by
	// invoking t.Fn directly and never restores SP into the PC.
	t.SP = s.fp.PrepareInitialFrame(t.Stack, 0, param)

	tok = s.cs.Enter()
	t.State = Ready
	s.ready[priority].PushBack(&t.schedNode)
	s.cs.Leave(tok)
	return t, kerr.OK
}

// RemoveTask deletes a task: unlinks it from its ready or delayed list (or
// from a ksync wait-list, via its OnDetach callback), marks it Deleted,
// and frees its TCB back to the pool, matching spec.md §4.4's literal
// "remove from all lists; set state = Deleted; free slots" for deleting a
// task other than the caller.
//
// Host-port caveat: if t's goroutine is parked inside a blocking ksync
// call at this moment, it is simply abandoned here, not resumed with
// WokeDeleted -- exactly mirroring the real target, where a deleted
// task's stack is reclaimed without unwinding any call frames. A task
// that deletes itself does not come through here: the kernel facade's
// TaskDelete uses Retire and ExitRetired for that path. A task whose
// function returns reaches RemoveTask through Exit.
func (s *Scheduler) RemoveTask(t *TCB) {
	tok := s.cs.Enter()
	detach := t.OnDetach
	t.OnDetach = nil
	s.unlinkSchedLocked(t)
	t.State = Deleted
	s.cs.Leave(tok)

	if detach != nil {
		detach()
	}

	tok = s.cs.Enter()
	s.pool.Free(t)
	s.cs.Leave(tok)
}

// unlinkSchedLocked removes t from whichever of the ready/delayed lists it
// is actually linked into. It checks membership directly rather than
// trusting t.State, since callers sometimes update State before unlinking
// (e.g. to compute the right delayed list to re-arm into next).
func (s *Scheduler) unlinkSchedLocked(t *TCB) {
	if !t.schedNode.Linked() {
		return
	}
	if inList(&s.ready[t.Priority], &t.schedNode) {
		s.ready[t.Priority].Remove(&t.schedNode)
		return
	}
	if inList(&s.delayedCurrent, &t.schedNode) {
		s.delayedCurrent.Remove(&t.schedNode)
		return
	}
	s.delayedOverflow.Remove(&t.schedNode)
}

func inList(l *list.List[*TCB], n *list.Node[*TCB]) bool {
	found := false
	l.Do(func(m *list.Node[*TCB]) {
		if m == n {
			found = true
		}
	})
	return found
}

// pickNextLocked returns the head of the highest nonempty ready band, or
// idle if every real band is empty. Must be called with the critical
// section held.
func (s *Scheduler) pickNextLocked() *TCB {
	for band := 0; band <= s.MaxPriority(); band++ {
		if n := s.ready[band].First(); n != nil {
			return n.Value
		}
	}
	return s.idle
}

// Dispatch makes the scheduling decision and, if a different task was
// chosen, hands it the baton and blocks self until it is handed back.
// self is nil only for the very first call, made once at kernel start.
func (s *Scheduler) Dispatch(self *TCB) {
	tok := s.cs.Enter()
	next := s.pickNextLocked()
	s.unlinkSchedLocked(next)
	next.State = Running
	prev := s.current
	s.current = next
	s.cs.Leave(tok)

	if prev == next {
		return
	}
	klog.Debugf("sched: dispatch %s -> %s", taskName(prev), next.Name)

	if self != nil {
		s.releaseCPU()
	}
	next.Wake()
	if self != nil {
		self.WaitForWake()
		s.acquireCPU()
	}
}

// StartTask spawns the goroutine that runs t's function on the host port.
// It waits for t's first baton, acquires the CPU invariant token, runs
// t.Fn, and on return exits the task. Real hardware ports never call this:
// a task's first execution there begins with the exception-return frame
// FramePreparer built, not a goroutine.
func (s *Scheduler) StartTask(t *TCB) {
	go func() {
		t.WaitForWake()
		s.acquireCPU()
		t.Fn(t.Param)
		s.Exit(t)
	}()
}

// Exit is a task's own goroutine announcing that its function returned --
// the host port's stand-in for a task falling off the end of Fn on real
// hardware. It removes t (unlink, mark Deleted, free its TCB slot) and
// hands off to whichever task the scheduler picks next without waiting to
// run again itself, since this goroutine is about to end.
func (s *Scheduler) Exit(t *TCB) {
	s.RemoveTask(t)
	s.ExitRetired(t)
}

// Retire unlinks t from its ready or delayed list and marks it Deleted
// without returning its TCB slot to the pool. This is the first half of
// a task deleting itself: spec.md requires that a task cannot free the
// stack it is currently running on, so the second half -- returning the
// slot to the pool -- is left to a later Reclaim call made by another
// task. On the host port the retiring goroutine does not unwind: after
// ExitRetired it stays parked for good.
func (s *Scheduler) Retire(t *TCB) {
	tok := s.cs.Enter()
	s.unlinkSchedLocked(t)
	t.State = Deleted
	s.cs.Leave(tok)
}

// Reclaim returns a Retired TCB's slot to the pool. Only ever called by
// the kernel facade's idle task, for tasks that have retired themselves
// and handed the CPU off; it does not check on the retired goroutine.
func (s *Scheduler) Reclaim(t *TCB) {
	tok := s.cs.Enter()
	s.pool.Free(t)
	s.cs.Leave(tok)
}

// ExitRetired is Exit's second half, factored out so a self-delete via
// Retire can reuse it without going through RemoveTask/pool.Free a second
// time: it releases the CPU token and hands off to whichever task the
// scheduler picks next, without waiting to be dispatched again itself.
func (s *Scheduler) ExitRetired(t *TCB) {
	s.releaseCPU()

	tok := s.cs.Enter()
	next := s.pickNextLocked()
	s.unlinkSchedLocked(next)
	next.State = Running
	prev := s.current
	s.current = next
	s.cs.Leave(tok)

	klog.Debugf("sched: dispatch %s -> %s (exit)", taskName(prev), next.Name)
	next.Wake()
}

func (s *Scheduler) acquireCPU() {
	if !s.cpu.TryAcquire(1) {
		panic("sched: cpu token already held; two tasks running at once")
	}
}

func (s *Scheduler) releaseCPU() {
	s.cpu.Release(1)
}

func taskName(t *TCB) string {
	if t == nil {
		return "<none>"
	}
	return t.Name
}

// Yield puts self back at the tail of its own band and dispatches.
func (s *Scheduler) Yield(self *TCB) {
	tok := s.cs.Enter()
	self.State = Ready
	s.ready[self.Priority].PushBack(&self.schedNode)
	s.cs.Leave(tok)
	s.Dispatch(self)
}

// Delay removes self from scheduling and places it on a delayed list,
// waking it again at now+ticks. ticks==0 returns immediately without
// blocking self at all.
func (s *Scheduler) Delay(self *TCB, ticks uint32) {
	if ticks == 0 {
		return
	}
	tok := s.cs.Enter()
	self.Deadline = s.now + ticks
	self.State = Delayed
	s.armDelayLocked(self)
	s.cs.Leave(tok)
	s.Dispatch(self)
}

func (s *Scheduler) armDelayLocked(t *TCB) {
	if t.Deadline < s.now {
		s.insertSortedLocked(&s.delayedOverflow, t)
	} else {
		s.insertSortedLocked(&s.delayedCurrent, t)
	}
}

// insertSortedLocked keeps a delayed list ordered by Deadline so Tick only
// ever has to look at the head.
func (s *Scheduler) insertSortedLocked(l *list.List[*TCB], t *TCB) {
	var before *list.Node[*TCB]
	l.Do(func(n *list.Node[*TCB]) {
		if before == nil && ktime.Lt(t.Deadline, n.Value.Deadline) {
			before = n
		}
	})
	l.InsertBefore(before, &t.schedNode)
}

// Block removes self from scheduling (it must already be linked into some
// ksync wait-list by the caller, with OnDetach set to unlink it from
// there) and, unless timeoutTicks is ktime.WaitForever, also arms a
// delayed-list entry for the timeout. It returns the WakeReason that ended
// the block.
func (s *Scheduler) Block(self *TCB, timeoutTicks uint32) WakeReason {
	tok := s.cs.Enter()
	self.State = Blocked
	armed := timeoutTicks != ktime.WaitForever
	if armed {
		self.Deadline = s.now + timeoutTicks
		s.armDelayLocked(self)
	}
	s.cs.Leave(tok)

	s.Dispatch(self)

	tok = s.cs.Enter()
	if armed && self.schedNode.Linked() {
		s.unlinkSchedLocked(self)
	}
	reason := self.WakeReason
	self.WakeReason = WokeNormally
	s.cs.Leave(tok)
	return reason
}

// WakeBlocked moves a Blocked task (already unlinked from its ksync
// wait-list by the caller) back to Ready with the given reason, also
// unlinking it from the delayed list if it had an armed timeout.
func (s *Scheduler) WakeBlocked(t *TCB, reason WakeReason) {
	tok := s.cs.Enter()
	s.unlinkSchedLocked(t)
	t.WakeReason = reason
	t.State = Ready
	s.ready[t.Priority].PushBack(&t.schedNode)
	s.cs.Leave(tok)
}

// Tick advances the tick count by one, expires any delayed tasks whose
// deadline has arrived (detaching timed-out waiters from their ksync
// wait-list via OnDetach), and requests a preemption if a task that
// outranks the currently running one just became ready. This is the
// scheduler's only entry point meant to be called from outside task
// context, by the tick-source ISR (or its simulation).
func (s *Scheduler) Tick() {
	tok := s.cs.Enter()
	s.now++
	if s.now == 0 {
		// Wrapped: delayedOverflow holds the deadlines that had already
		// wrapped past zero when they were armed. They move, in order,
		// onto the tail of delayedCurrent, and delayedOverflow starts the
		// new epoch empty. Nodes are moved rather than the two List
		// values swapped, since each node records the list it is on.
		for n := s.delayedOverflow.PopFront(); n != nil; n = s.delayedOverflow.PopFront() {
			s.delayedCurrent.PushBack(n)
		}
	}
	var detaches []func()
	highestWoken := s.MaxPriority() + 1
	for {
		n := s.delayedCurrent.First()
		if n == nil || ktime.Lt(s.now, n.Value.Deadline) {
			break
		}
		t := n.Value
		s.delayedCurrent.Remove(n)
		if t.OnDetach != nil {
			detaches = append(detaches, t.OnDetach)
			t.OnDetach = nil
		}
		t.WakeReason = WokeTimeout
		t.State = Ready
		s.ready[t.Priority].PushBack(&t.schedNode)
		if t.Priority < highestWoken {
			highestWoken = t.Priority
		}
	}
	curPriority := s.MaxPriority() + 1
	if s.current != nil {
		curPriority = s.current.Priority
	}
	preempt := highestWoken < curPriority
	s.cs.Leave(tok)

	for _, detach := range detaches {
		detach()
	}
	if preempt {
		s.sw.TriggerContextSwitch()
	}
}

// BoostPriority raises t's effective priority (priority inheritance,
// spec.md §5.4). If t is currently Ready, it is re-linked into its new
// band so the next Dispatch sees it there. The caller must already hold
// CS(): ksync's mutex calls it from inside its own critical section, and
// Enter is not reentrant.
func (s *Scheduler) BoostPriority(t *TCB, priority int) {
	s.reprioritizeLocked(t, priority)
}

// RestorePriority reverts a prior BoostPriority, returning t to priority
// (the caller tracks whatever the pre-boost value was).
func (s *Scheduler) RestorePriority(t *TCB, priority int) {
	s.BoostPriority(t, priority)
}

func (s *Scheduler) reprioritizeLocked(t *TCB, priority int) {
	if t.Priority == priority {
		return
	}
	if t.State == Ready {
		s.ready[t.Priority].Remove(&t.schedNode)
		t.Priority = priority
		s.ready[priority].PushBack(&t.schedNode)
		return
	}
	t.Priority = priority
}
