package port

import "encoding/binary"

// ARMv7M synthesizes the initial exception-return stack frame for a
// Thumb-2 / ARMv7-M target (SysTick + PendSV), exactly as spec.md §4.4
// describes it: as if the task had just been preempted by the same
// exception that performs context switches, so the first restore lands
// the CPU at fn(param) in thread mode.
type ARMv7M struct{}

const (
	xpsrThumbBit = uint32(1) << 24
	frameWords   = 16 // xPSR, PC, LR, R12, R3, R2, R1, R0, R11..R4
)

// PrepareInitialFrame lays out, from the top of stack downward: xPSR (T
// bit set), PC=fn, LR=0, R12/R3/R2/R1=0, R0=param, then R11..R4=0. It
// returns the resulting stack pointer -- a real offset into stack's
// backing memory on a genuine ARM port; on the host port stack is a plain
// []byte with no fixed address, so the returned value is that slice's
// byte offset, useful only for verifying the frame layout itself.
func (ARMv7M) PrepareInitialFrame(stack []byte, fn, param uintptr) uintptr {
	if len(stack) < frameWords*4 {
		panic("port: stack too small for initial frame")
	}
	top := len(stack) &^ 7 // 8-byte align, per AAPCS
	sp := top - frameWords*4

	frame := make([]uint32, frameWords)
	frame[0] = xpsrThumbBit        // xPSR
	frame[1] = uint32(fn)          // PC
	frame[2] = 0                   // LR
	frame[3] = 0                   // R12
	frame[4] = 0                   // R3
	frame[5] = 0                   // R2
	frame[6] = 0                   // R1
	frame[7] = uint32(param)       // R0
	for i := 8; i < frameWords; i++ {
		frame[i] = 0 // R11..R4
	}
	for i, w := range frame {
		binary.LittleEndian.PutUint32(stack[top-(i+1)*4:], w)
	}
	return uintptr(sp)
}
