// Package sched implements the banded-priority, round-robin scheduler core
// (spec.md §3, §5): ready queues per priority, the current/overflow delayed
// lists for wrap-safe timeouts, and the TCB pool. It is grounded on the
// teacher's family.go and schedule.go, replacing their decaying-counter
// fairness scheme with spec.md's strict highest-nonempty-band, round-robin
// within a band.
package sched

import (
	"nanokernel/kernel/kerr"
	"nanokernel/kernel/list"
)

// State is a task's scheduling state (spec.md §3.2).
type State int

const (
	// Unused marks a TCB slot not currently allocated to any task.
	Unused State = iota
	Ready
	Running
	Blocked
	Delayed
	Deleted
)

func (s State) String() string {
	switch s {
	case Unused:
		return "Unused"
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Blocked:
		return "Blocked"
	case Delayed:
		return "Delayed"
	case Deleted:
		return "Deleted"
	default:
		return "Unknown"
	}
}

// WakeReason tells a task that just returned from a blocking wait why it
// was woken, the same distinction the teacher's JoyError return values
// draw at the family API boundary.
type WakeReason int

const (
	WokeNormally WakeReason = iota
	WokeTimeout
	WokeDeleted
)

// TCB is a task control block. Every field the scheduler core touches is
// protected by the owning Scheduler's critical section; task code never
// mutates its own TCB directly.
type TCB struct {
	ID       int
	Name     string
	Priority int // current, possibly boosted, priority
	Base     int // priority the task was created with

	State      State
	WakeReason WakeReason

	// SP is this task's saved stack pointer. Fn/Param and Stack are
	// recorded for FramePreparer use at creation time only.
	SP     uintptr
	Stack  []byte
	Fn     func(uintptr)
	Param  uintptr

	// Deadline is the tick value at which a Delayed task becomes Ready
	// again, or at which a Blocked task's wait times out. Only
	// meaningful while schedNode sits on one of the delayed lists.
	Deadline uint32

	// schedNode links this TCB into exactly one of: a ready-priority
	// list, the scheduler's delayed-current list, or its
	// delayed-overflow list. It is never linked into more than one of
	// those at a time.
	schedNode list.Node[*TCB]

	// WaitNode links this TCB into a ksync wait-list (queue, semaphore,
	// or mutex) independently of schedNode: a task waiting with a
	// timeout is on a wait-list AND on a delayed list simultaneously.
	WaitNode list.Node[*TCB]

	// OnDetach, when non-nil, is set by ksync right before a Block call
	// and cleared by whoever takes the task off its wait-list: the ksync
	// call that wakes it (send, receive, post, unlock, delete), or the
	// scheduler. The scheduler invokes it
	// (then clears it itself) whenever it needs to remove this task
	// from a wait-list it doesn't own the list for -- a timeout firing
	// in Tick, or a RemoveTask while the task is Blocked.
	OnDetach func()

	// wake is the baton: exactly one send occurs per time this task is
	// chosen to run, and the task's own goroutine (on the host port)
	// blocks receiving from it whenever it is not Running. Unused by
	// real hardware ports, which restore SP instead of signalling a
	// channel.
	wake chan struct{}
}

// Wake hands this task's baton, exactly once. Safe to call from outside
// the task's own goroutine; the scheduler calls this immediately after
// choosing the task to run next.
func (t *TCB) Wake() {
	select {
	case t.wake <- struct{}{}:
	default:
		// Already holds an unclaimed wake: scheduler invariant
		// violation (the same task was dispatched twice without
		// running in between).
		panic("sched: TCB woken while already holding an unclaimed wake")
	}
}

// WaitForWake blocks the calling goroutine until this task is dispatched.
// Only the host port's task-runner wrapper calls this.
func (t *TCB) WaitForWake() {
	<-t.wake
}

// ErrFromWake turns a WakeReason into the kerr.Kind a blocked ksync call
// should return to its caller.
func ErrFromWake(r WakeReason) kerr.Kind {
	switch r {
	case WokeTimeout:
		return kerr.Timeout
	case WokeDeleted:
		return kerr.ObjectDeleted
	default:
		return kerr.OK
	}
}
