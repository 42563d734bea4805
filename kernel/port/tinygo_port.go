//go:build tinygo

package port

import (
	"device/arm"
	"machine"
)

// TinygoCriticalSection implements CriticalSection by masking IRQ/FIQ on
// the core, the ARMv7-M equivalent of upbeat.MaskDAIF/UnmaskDAIF's AArch64
// DAIF bits. Like HostCriticalSection, it never needs to save/restore a
// prior mask state -- this kernel's own code never nests a pair -- so the
// returned Token carries nothing.
type TinygoCriticalSection struct{}

// Enter masks interrupts via the Thumb-2 CPSID instruction.
func (TinygoCriticalSection) Enter() Token {
	arm.Asm("cpsid i")
	return 0
}

// Leave unmasks interrupts via CPSIE.
func (TinygoCriticalSection) Leave(Token) {
	arm.Asm("cpsie i")
}

// TinygoSwitcher implements Switcher against the SysTick/PendSV pair
// spec.md §1 and §6 name as the reference target's tick source and
// context-switch trigger, the ARMv7-M analog of joy/schedule.go's
// InitSchedulingTimer plus the local-timer-IRQ-driven preempt path.
type TinygoSwitcher struct{}

// TriggerContextSwitch pends PendSV, the lowest-priority exception on this
// core (see InitSysTick below), so the switch actually happens only once
// any higher-priority handler currently running returns -- the real-port
// equivalent of the host port's cooperative "request, don't force" model.
func (TinygoSwitcher) TriggerContextSwitch() {
	machine.SCB.ICSR.SetPENDSVSET(1)
}

// WaitForInterrupt issues WFI, dropping the core into sleep until the next
// exception (normally the next SysTick tick) wakes it -- the idle task's
// low-power hint, standing in for the host port's goroutine yield.
func (TinygoSwitcher) WaitForInterrupt() {
	arm.Asm("wfi")
}

// TickHandler is called from SysTick_Handler below; kernel.Init wires it
// to the scheduler's own Tick, the same indirection joy/schedule.go avoids
// only because timerTick lives in the same package as currentFamily --
// this port can't do that without an import cycle (kernel depends on
// port, not the other way around).
var TickHandler func()

// InitSysTick configures SysTick for a 1kHz tick (kernel/config.go's
// TickHz) and sets PendSV below it in priority, so a tick that also needs
// to reschedule always finishes the SysTick handler first. cpuFreqHz is
// the core clock in Hz; callers derive it from their board's clock tree
// the way waj334-sigo's initSysTick leaves as a board-specific TODO.
func InitSysTick(cpuFreqHz uint32) {
	machine.SCB.SHPR3.SetPRI_PENDSV(0xff) // lowest priority
	machine.SCB.SHPR3.SetPRI_SYSTICK(0xfe)

	machine.SysTick.RVR.SetRELOAD(cpuFreqHz/1000 - 1)
	machine.SysTick.CVR.Set(0)
	machine.SysTick.CSR.SetCLKSOURCE(1)
	machine.SysTick.CSR.SetTICKINT(1)
	machine.SysTick.CSR.SetENABLE(1)
}

//go:interrupt SysTick_Handler
func SysTick_Handler() {
	if TickHandler != nil {
		TickHandler()
	}
}
