//go:build tinygo

package kernel

import (
	"nanokernel/kernel/port"
	"nanokernel/kernel/sched"
)

// tinygoCPUFreqHz is the reference target's core clock. It is unexported
// and Init takes no clock argument, so code outside this package cannot
// change it; it is not derived from the board's clock tree, the same
// gap waj334-sigo__systick.go leaves as a board-specific step.
var tinygoCPUFreqHz uint32 = 48_000_000

// newPort returns the real ARMv7-M SysTick/PendSV port.
func newPort() (port.CriticalSection, port.Switcher) {
	return port.TinygoCriticalSection{}, port.TinygoSwitcher{}
}

// afterSchedulerInit wires the SysTick handler to the scheduler's own
// Tick and starts the timer -- see port/tinygo_port.go's TickHandler doc
// comment for why this indirection exists instead of a direct call.
func afterSchedulerInit(sch *sched.Scheduler) {
	port.TickHandler = sch.Tick
	port.InitSysTick(tinygoCPUFreqHz)
}
