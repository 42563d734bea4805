package ksync

import (
	"nanokernel/kernel/port"
	"nanokernel/kernel/sched"
)

// harness drives a real scheduler with a live idle task so blocking ksync
// calls have somewhere to hand the baton off to, mirroring how the kernel
// facade wires sched up for the host port (see kernel/sched/scheduler_test.go
// for the lower-level, goroutine-free style used when a test doesn't need an
// actual blocking round trip).
type harness struct {
	s *sched.Scheduler
}

func newHarness(maxPriority, maxTasks int) *harness {
	cs := &port.HostCriticalSection{}
	sw := port.NewHostSwitcher()
	s := sched.New(maxPriority, maxTasks, cs, sw, port.ARMv7M{})
	idle, errk := s.AddTask("idle", maxPriority, 64, func(uintptr) {
		for {
			sw.WaitForInterrupt()
			s.Yield(s.Current())
		}
	}, 0)
	if errk != 0 {
		panic("harness: failed to add idle task")
	}
	s.SetIdle(idle)
	s.StartTask(idle)
	return &harness{s: s}
}

// spawn creates a task at priority running body as its entire function,
// started via StartTask so the scheduler's own baton protocol governs it
// exactly like a task on any other port. done is closed once body returns.
func (h *harness) spawn(priority int, body func(self *sched.TCB)) (*sched.TCB, <-chan struct{}) {
	done := make(chan struct{})
	var tcb *sched.TCB
	tcb, errk := h.s.AddTask("t", priority, 64, func(uintptr) {
		body(tcb)
		close(done)
	}, 0)
	if errk != 0 {
		panic("harness: failed to add task")
	}
	h.s.StartTask(tcb)
	return tcb, done
}

// start performs the one-time initial dispatch a real kernel_start would
// do: pick the highest-priority ready task and hand it the baton. Called
// from a goroutine that is not itself a task (self == nil), so it returns
// immediately rather than waiting to be woken back.
func (h *harness) start() {
	h.s.Dispatch(nil)
}
