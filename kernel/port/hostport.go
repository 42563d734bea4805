package port

import "sync"

// HostCriticalSection implements CriticalSection with a plain mutex,
// serializing the scheduler's task goroutines against each other and
// against the tick-driving goroutine exactly the way masking interrupts
// serializes task code against the real tick ISR on a single core.
type HostCriticalSection struct {
	mu sync.Mutex
}

// Enter acquires the mutex. The returned Token is unused by this
// implementation (nesting is never exercised by this kernel's own code;
// see port.go's CriticalSection doc comment).
func (h *HostCriticalSection) Enter() Token {
	h.mu.Lock()
	return 0
}

// Leave releases the mutex.
func (h *HostCriticalSection) Leave(Token) {
	h.mu.Unlock()
}

// HostSwitcher is the cooperative, goroutine-backed Switcher used by
// hosted tests. It cannot honor TriggerContextSwitch as true preemption:
// Go gives no way to forcibly suspend a running goroutine's user code
// from the outside, the same way a real core can be made to take a
// pended interrupt between any two instructions. Per spec.md §9's own
// note ("a cooperative simulation ... is sufficient to exercise every
// property in §8 except hardware preemption fairness"), this port only
// *requests* a switch: the CPU token is actually handed to the next task
// the next time the running task's own goroutine reaches a voluntary
// suspension point (Yield, Delay, or a blocking wait). The kernel's idle
// task, which yields every iteration of its loop, is what keeps that
// request latency small in practice.
//
// The actual baton -- the guarantee that only one task goroutine is ever
// outside the scheduler's own bookkeeping and running task code -- is not
// this type's job: sched.Scheduler holds a weight-1
// golang.org/x/sync/semaphore.Weighted for that, acquired by a task
// goroutine the moment it's handed the CPU and released the moment it
// hands it onward. This type only tracks that a switch was asked for.
type HostSwitcher struct {
	preemptRequests int
	mu              sync.Mutex
}

// NewHostSwitcher returns a ready-to-use Switcher.
func NewHostSwitcher() *HostSwitcher {
	return &HostSwitcher{}
}

// TriggerContextSwitch records that a switch was requested; see the type
// doc comment for why this cannot be synchronous on a hosted port.
func (h *HostSwitcher) TriggerContextSwitch() {
	h.mu.Lock()
	h.preemptRequests++
	h.mu.Unlock()
}

// PendingPreemptions returns and clears the count of requested switches,
// for tests that want to assert preemption was at least requested.
func (h *HostSwitcher) PendingPreemptions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := h.preemptRequests
	h.preemptRequests = 0
	return n
}

// WaitForInterrupt is the idle task's low-power hint. The host port has
// no power states to drop into, so it simply gives the Go scheduler a
// chance to run other goroutines.
func (h *HostSwitcher) WaitForInterrupt() {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() { wg.Done() }()
	wg.Wait()
}
