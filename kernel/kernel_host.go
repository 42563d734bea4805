//go:build !tinygo

package kernel

import (
	"nanokernel/kernel/port"
	"nanokernel/kernel/sched"
)

// newPort returns the cooperative, goroutine-backed port used by hosted
// tests and any non-tinygo build. See kernel_tinygo.go for the real
// ARMv7-M counterpart selected when built with the tinygo compiler.
func newPort() (port.CriticalSection, port.Switcher) {
	return &port.HostCriticalSection{}, port.NewHostSwitcher()
}

// afterSchedulerInit is a no-op on the host port: there is no SysTick to
// wire up, and nothing on this port calls Scheduler.Tick by itself; the
// tests call Scheduler.Tick directly.
func afterSchedulerInit(*sched.Scheduler) {}
