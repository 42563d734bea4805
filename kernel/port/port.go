// Package port defines the seam spec.md §6 calls out as external: the
// critical-section primitive, the context-switch trigger, and first-task
// launch. These are deliberately interfaces, not concrete hardware code --
// the CPU context-switch trampoline, the tick interrupt source, and the
// startup/vector table are all out of scope per spec.md §1 and are
// referenced by interface only.
//
// Two implementations live alongside this file: hostport (cooperative,
// goroutine-backed, for hosted tests -- see hostport.go) and tinygo_port
// (behind //go:build tinygo, targeting a real ARMv7-M SysTick/PendSV pair).
package port

// Token is an opaque critical-section nesting token, standing in for a
// saved interrupt mask on the reference target.
type Token uint32

// CriticalSection is the mask/unmask-interrupts primitive. Enter disables
// interrupts (or, on the host port, acquires mutual exclusion across
// goroutines) and returns a token that Leave uses to restore the prior
// state. Nested Enter/Leave pairs on the real target save and restore the
// previous mask; this kernel's own internal code never nests a pair, so
// the host port is free to implement Enter/Leave with a plain mutex.
type CriticalSection interface {
	Enter() Token
	Leave(Token)
}

// Switcher is the context-switch trigger and first-task-launch seam.
// TriggerContextSwitch requests that the CPU resume in whatever task the
// scheduler has chosen as next. On the reference target this pends the
// lowest-priority supervisor interrupt; a hosted port can only request it
// cooperatively (see hostport.go's doc comment on this exact limitation).
type Switcher interface {
	TriggerContextSwitch()
	WaitForInterrupt()
}

// FramePreparer synthesizes the initial saved-register frame a newly
// created task's stack must hold so that the first restore on this port
// lands the CPU at fn(param) in thread mode (spec.md §4.4). Implementers
// for other architectures return the equivalent frame for their port; the
// returned value is the stack pointer to store in the TCB.
type FramePreparer interface {
	PrepareInitialFrame(stack []byte, fn, param uintptr) uintptr
}
