// Package kernel is the thin public entry-point layer spec.md §4.10 and §6
// describe: kernel_init/kernel_start plus the task/queue/semaphore/mutex
// call tables, each a direct forward onto kernel/sched and kernel/ksync.
// It owns nothing scheduling-theoretic itself -- its only state is the
// pools that back queue/semaphore/mutex control blocks, the scheduler and
// idle task kernel_init builds, and the deferred-reclaim list a self-
// deleting task leaves for idle to drain.
//
// Grounded on the teacher's family.go facade: a narrow interface
// (FamilyAPIDef there, Kernel here) implemented by one package-private
// type and exposed through a single package variable, so callers can
// substitute a fake for tests the same way joy's own tests substitute
// FamilyAPI.
package kernel

import (
	"sync"

	"nanokernel/kernel/kerr"
	"nanokernel/kernel/klog"
	"nanokernel/kernel/ksync"
	"nanokernel/kernel/pool"
	"nanokernel/kernel/port"
	"nanokernel/kernel/sched"
)

// TaskHandle, QueueHandle, SemHandle, and MutexHandle are the opaque
// handles spec.md §5 describes ("the application owns only opaque
// handles"): plain pointers into kernel-owned pools. Dereferencing one
// after its object's Delete call is the same undefined behavior spec.md
// calls out for the reference target; this package never does so itself.
type (
	TaskHandle  = *sched.TCB
	QueueHandle = *ksync.Queue
	SemHandle   = *ksync.Semaphore
	MutexHandle = *ksync.Mutex
)

// Kernel is the public entry-point surface. kernelImpl is the only
// implementation; API is exported so tests can substitute a fake the way
// joy's tests substitute FamilyAPI.
type Kernel interface {
	Init()
	Start()

	TaskCreate(fn func(uintptr), name string, stackSize int, param uintptr, priority int) TaskHandle
	TaskDelete(t TaskHandle)
	TaskDelay(ticks uint32)
	TaskYield()
	TaskCurrent() TaskHandle
	TaskGetState(t TaskHandle) sched.State
	TaskGetPriority(t TaskHandle) int

	QueueCreate(length, itemSize int) QueueHandle
	QueueDelete(q QueueHandle)
	QueueSend(q QueueHandle, item []byte, timeoutTicks uint32) kerr.Kind
	QueueReceive(q QueueHandle, item []byte, timeoutTicks uint32) kerr.Kind
	QueueSendImmediate(q QueueHandle, item []byte) kerr.Kind
	QueueReceiveImmediate(q QueueHandle, item []byte) kerr.Kind
	QueueIsEmpty(q QueueHandle) bool
	QueueIsFull(q QueueHandle) bool
	QueueMessagesWaiting(q QueueHandle) int

	SemCreate(initial, max int, name string) SemHandle
	SemBinary(name string) SemHandle
	SemCounting(max int, name string) SemHandle
	SemDelete(s SemHandle)
	SemWait(s SemHandle, timeoutTicks uint32) kerr.Kind
	SemTryWait(s SemHandle) kerr.Kind
	SemPost(s SemHandle) kerr.Kind
	SemGetCount(s SemHandle) int
	SemHasWaitingTasks(s SemHandle) bool

	MutexCreate(name string) MutexHandle
	MutexDelete(m MutexHandle)
	MutexLock(m MutexHandle, timeoutTicks uint32) kerr.Kind
	MutexTryLock(m MutexHandle) kerr.Kind
	MutexUnlock(m MutexHandle) kerr.Kind
	MutexGetOwner(m MutexHandle) TaskHandle
	MutexIsLocked(m MutexHandle) bool
	MutexHasWaitingTasks(m MutexHandle) bool
}

// kernelState mirrors kernel.c's kernel_initialized/kernel_running pair.
type kernelState int

const (
	uninitialized kernelState = iota
	initialized
	started
)

type kernelImpl struct {
	mu    sync.Mutex // guards state and the pools below (object create/delete is rare, unlike the hot sched.CS path)
	state kernelState

	cs   port.CriticalSection
	sw   port.Switcher
	sch  *sched.Scheduler
	idle *sched.TCB

	queues  *pool.Pool[ksync.Queue]
	sems    *pool.Pool[ksync.Semaphore]
	mutexes *pool.Pool[ksync.Mutex]

	retireMu sync.Mutex
	retired  []*sched.TCB
}

// API is the package's single Kernel instance, matching the teacher's
// var FamilyAPI FamilyAPIDef = &familyAPIImpl{} convention.
var API Kernel = &kernelImpl{}

// Init is kernel_init (spec.md §4.10): builds the pools, the scheduler,
// and the idle task, and is idempotent on repeated calls.
func (k *kernelImpl) Init() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.state != uninitialized {
		return
	}

	k.cs, k.sw = newPort()
	k.sch = sched.New(MaxPriority, MaxTasks, k.cs, k.sw, port.ARMv7M{})
	afterSchedulerInit(k.sch)
	k.queues = pool.New[ksync.Queue](MaxQueues)
	k.sems = pool.New[ksync.Semaphore](MaxSemaphores)
	k.mutexes = pool.New[ksync.Mutex](MaxMutexes)

	idle, errk := k.sch.AddTask("IDLE", MaxPriority, idleStackSize, k.idleLoop, 0)
	if errk != kerr.OK {
		klog.Fatalf("kernel: idle task creation failed: %v", errk)
		return
	}
	k.idle = idle
	k.sch.SetIdle(idle)

	k.state = initialized
}

// Start is kernel_start: requires a prior Init, starts the idle task's
// goroutine and hands off to the first task get_next_task picks. On the
// host port Dispatch(nil) returns once the baton has been handed off
// rather than never returning, since the caller is not itself a task;
// real ports block forever inside the equivalent port_start_first_task.
func (k *kernelImpl) Start() {
	k.mu.Lock()
	if k.state == uninitialized {
		k.mu.Unlock()
		klog.Fatalf("kernel: Start called before Init")
		return
	}
	if k.state == started {
		k.mu.Unlock()
		return
	}
	k.state = started
	idle := k.idle
	k.mu.Unlock()

	k.sch.StartTask(idle)
	k.sch.Dispatch(nil)
}

// idleLoop is the idle task body (spec.md §3's idle task description):
// each iteration gives the host port's WaitForInterrupt hint, drains any
// tasks a self-delete left for deferred reclamation, and yields.
func (k *kernelImpl) idleLoop(uintptr) {
	for {
		k.sw.WaitForInterrupt()
		k.reclaimRetired()
		k.sch.Yield(k.sch.Current())
	}
}

func (k *kernelImpl) reclaimRetired() {
	k.retireMu.Lock()
	pending := k.retired
	k.retired = nil
	k.retireMu.Unlock()
	for _, t := range pending {
		k.sch.Reclaim(t)
	}
}

// TaskCreate is task_create. stackSize is resolved to the smallest stack
// size class that fits it (kernel/config.go); a size larger than every
// class makes TaskCreate return nil rather than silently growing the
// class table.
func (k *kernelImpl) TaskCreate(fn func(uintptr), name string, stackSize int, param uintptr, priority int) TaskHandle {
	k.mu.Lock()
	ready := k.state != uninitialized
	k.mu.Unlock()
	if !ready || fn == nil {
		return nil
	}
	class, ok := resolveStackClass(stackSize)
	if !ok {
		return nil
	}
	t, errk := k.sch.AddTask(name, priority, class, fn, param)
	if errk != kerr.OK {
		return nil
	}
	// AddTask only builds the TCB and links it into its ready band; on
	// the host port a task has no goroutine backing it until StartTask
	// spawns one. Skipping this would leave t visible to Dispatch with
	// nothing to wake -- the same inert-proxy hazard recorded in
	// DESIGN.md for ksync's own tests.
	k.sch.StartTask(t)
	return t
}

// TaskDelete is task_delete. Deleting nil or the idle task is a no-op
// (spec.md §4.3). Deleting the current task retires it immediately
// (unlinked, marked Deleted) but leaves its TCB slot allocated until idle
// reclaims it on a later iteration, since a task cannot free the stack it
// is currently running on -- original_source/kernel/src/kernel.c's own
// task_delete left this exact step as a TODO ("Implement deferred
// deletion in idle task"); spec.md §3 and §8.6 resolve it, and idleLoop/
// reclaimRetired above is that resolution. Deleting any other task goes
// straight through Scheduler.RemoveTask, which also detaches it from a
// ksync wait-list if it was blocked.
func (k *kernelImpl) TaskDelete(t TaskHandle) {
	if t == nil || t == k.idle {
		return
	}
	if t == k.sch.Current() {
		k.retireMu.Lock()
		k.retired = append(k.retired, t)
		k.retireMu.Unlock()
		k.sch.Retire(t)
		k.sch.ExitRetired(t)
		// Matches original_source's own comment on this exact call site
		// ("Should never reach here if context switching works"): once
		// the baton is handed to the next task above, this goroutine
		// must never touch kernel state again -- its TCB slot is only
		// waiting on idle's Reclaim, which may hand the same memory to
		// a brand new task at any point after that.
		select {}
	}
	k.sch.RemoveTask(t)
}

func (k *kernelImpl) TaskDelay(ticks uint32) {
	self := k.sch.Current()
	if self == nil || self == k.idle {
		return
	}
	k.sch.Delay(self, ticks)
}

func (k *kernelImpl) TaskYield() {
	self := k.sch.Current()
	if self == nil {
		return
	}
	k.sch.Yield(self)
}

func (k *kernelImpl) TaskCurrent() TaskHandle { return k.sch.Current() }

func (k *kernelImpl) TaskGetState(t TaskHandle) sched.State {
	if t == nil {
		return sched.Unused
	}
	return t.State
}

func (k *kernelImpl) TaskGetPriority(t TaskHandle) int {
	if t == nil {
		return -1
	}
	return t.Priority
}

// QueueCreate draws a Queue control block from the pool and initializes it,
// after checking that the requested length*itemSize capacity fits the
// largest configured queue buffer size class (kernel/config.go's
// queueBufferClasses). The request is not resolved to a class and the
// per-class slot counts are not enforced; the buffer itself is allocated
// by Queue.Init.
func (k *kernelImpl) QueueCreate(length, itemSize int) QueueHandle {
	if length <= 0 || itemSize <= 0 || !fitsQueueBufferClass(length*itemSize) {
		return nil
	}
	k.mu.Lock()
	q := k.queues.Alloc()
	k.mu.Unlock()
	if q == nil {
		return nil
	}
	if errk := q.Init(k.sch, length, itemSize, ""); errk != kerr.OK {
		k.mu.Lock()
		k.queues.Free(q)
		k.mu.Unlock()
		return nil
	}
	return q
}

func (k *kernelImpl) QueueDelete(q QueueHandle) {
	if q == nil {
		return
	}
	q.Delete()
	k.mu.Lock()
	k.queues.Free(q)
	k.mu.Unlock()
}

func (k *kernelImpl) QueueSend(q QueueHandle, item []byte, timeoutTicks uint32) kerr.Kind {
	if q == nil {
		return kerr.Null
	}
	return q.Send(k.requireCurrent(), item, timeoutTicks)
}

func (k *kernelImpl) QueueReceive(q QueueHandle, item []byte, timeoutTicks uint32) kerr.Kind {
	if q == nil {
		return kerr.Null
	}
	return q.Receive(k.requireCurrent(), item, timeoutTicks)
}

func (k *kernelImpl) QueueSendImmediate(q QueueHandle, item []byte) kerr.Kind {
	return k.QueueSend(q, item, 0)
}

func (k *kernelImpl) QueueReceiveImmediate(q QueueHandle, item []byte) kerr.Kind {
	return k.QueueReceive(q, item, 0)
}

func (k *kernelImpl) QueueIsEmpty(q QueueHandle) bool {
	if q == nil {
		return true
	}
	return q.IsEmpty()
}

func (k *kernelImpl) QueueIsFull(q QueueHandle) bool {
	if q == nil {
		return false
	}
	return q.IsFull()
}

func (k *kernelImpl) QueueMessagesWaiting(q QueueHandle) int {
	if q == nil {
		return 0
	}
	return q.MessagesWaiting()
}

func (k *kernelImpl) SemCreate(initial, max int, name string) SemHandle {
	k.mu.Lock()
	s := k.sems.Alloc()
	k.mu.Unlock()
	if s == nil {
		return nil
	}
	if errk := s.Init(k.sch, initial, max, name); errk != kerr.OK {
		k.mu.Lock()
		k.sems.Free(s)
		k.mu.Unlock()
		return nil
	}
	return s
}

// SemBinary and SemCounting are the convenience constructors spec.md §6
// names explicitly.
func (k *kernelImpl) SemBinary(name string) SemHandle        { return k.SemCreate(1, 1, name) }
func (k *kernelImpl) SemCounting(max int, name string) SemHandle { return k.SemCreate(0, max, name) }

func (k *kernelImpl) SemDelete(s SemHandle) {
	if s == nil {
		return
	}
	s.Delete()
	k.mu.Lock()
	k.sems.Free(s)
	k.mu.Unlock()
}

func (k *kernelImpl) SemWait(s SemHandle, timeoutTicks uint32) kerr.Kind {
	if s == nil {
		return kerr.Null
	}
	return s.Wait(k.requireCurrent(), timeoutTicks)
}

func (k *kernelImpl) SemTryWait(s SemHandle) kerr.Kind {
	if s == nil {
		return kerr.Null
	}
	return s.TryWait(k.requireCurrent())
}

func (k *kernelImpl) SemPost(s SemHandle) kerr.Kind {
	if s == nil {
		return kerr.Null
	}
	return s.Post()
}

func (k *kernelImpl) SemGetCount(s SemHandle) int {
	if s == nil {
		return 0
	}
	return s.GetCount()
}

func (k *kernelImpl) SemHasWaitingTasks(s SemHandle) bool {
	if s == nil {
		return false
	}
	return s.HasWaitingTasks()
}

func (k *kernelImpl) MutexCreate(name string) MutexHandle {
	k.mu.Lock()
	m := k.mutexes.Alloc()
	k.mu.Unlock()
	if m == nil {
		return nil
	}
	m.Init(k.sch, name)
	return m
}

func (k *kernelImpl) MutexDelete(m MutexHandle) {
	if m == nil {
		return
	}
	m.Delete()
	k.mu.Lock()
	k.mutexes.Free(m)
	k.mu.Unlock()
}

func (k *kernelImpl) MutexLock(m MutexHandle, timeoutTicks uint32) kerr.Kind {
	if m == nil {
		return kerr.Null
	}
	return m.Lock(k.requireCurrent(), timeoutTicks)
}

func (k *kernelImpl) MutexTryLock(m MutexHandle) kerr.Kind {
	if m == nil {
		return kerr.Null
	}
	return m.TryLock(k.requireCurrent())
}

func (k *kernelImpl) MutexUnlock(m MutexHandle) kerr.Kind {
	if m == nil {
		return kerr.Null
	}
	return m.Unlock(k.requireCurrent())
}

func (k *kernelImpl) MutexGetOwner(m MutexHandle) TaskHandle {
	if m == nil {
		return nil
	}
	return m.GetOwner()
}

func (k *kernelImpl) MutexIsLocked(m MutexHandle) bool {
	if m == nil {
		return false
	}
	return m.IsLocked()
}

func (k *kernelImpl) MutexHasWaitingTasks(m MutexHandle) bool {
	if m == nil {
		return false
	}
	return m.HasWaitingTasks()
}

// requireCurrent resolves the calling task, falling back to a bare,
// scheduler-unknown TCB for calls made from outside any task context
// (e.g. an ISR's non-blocking SendImmediate). A bare TCB is never linked
// into a ready band, so it only ever safely participates in a sync
// object's non-blocking fast path -- see kernel/ksync's test-harness
// correctness note in DESIGN.md for why that distinction matters.
func (k *kernelImpl) requireCurrent() *sched.TCB {
	if t := k.sch.Current(); t != nil {
		return t
	}
	return &sched.TCB{}
}

// resolveStackClass returns the smallest configured class that fits n
// bytes, or (0, false) if none does.
func resolveStackClass(n int) (int, bool) {
	if n <= 0 {
		n = stackSizeClasses[0].size
	}
	for _, c := range stackSizeClasses {
		if n <= c.size {
			return c.size, true
		}
	}
	return 0, false
}

// fitsQueueBufferClass reports whether n bytes fits within the largest
// configured queue buffer size class.
func fitsQueueBufferClass(n int) bool {
	for _, c := range queueBufferClasses {
		if n <= c.size {
			return true
		}
	}
	return false
}

const idleStackSize = 512
