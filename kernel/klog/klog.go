// Package klog is the kernel's leveled logger. Its shape is lifted
// directly from the teacher's lib/trust package: a mask of independently
// toggleable levels, a package-level current level, and Errorf/Warnf/
// Infof/Debugf/Statsf/Fatalf entry points, all backed by fmt rather than
// a third-party structured logger (see SPEC_FULL.md's ambient-stack
// rationale).
package klog

import "fmt"

// Mask is a bitmask of log levels, matching trust.MaskLevel's bit layout.
type Mask int

const (
	Nothing Mask = 0x0
	Error   Mask = 0x1
	Warn    Mask = 0x2
	Info    Mask = 0x4
	Debug   Mask = 0x8
	Stats   Mask = 0x10
	fatal   Mask = 0x80
)

var level = fatal | Error | Warn | Info | Debug | Stats

// FaultLoop is called by Fatalf after printing the fatal message. On the
// reference target this never returns (§7: "a failure of kernel_init's
// idle-task creation is fatal and enters a fault loop"). Tests replace it
// with something that returns, via SetFaultLoop.
var FaultLoop = func() { select {} }

// SetFaultLoop overrides the fault-loop hook invoked by Fatalf. It returns
// the previous hook so tests can restore it.
func SetFaultLoop(fn func()) func() {
	prev := FaultLoop
	FaultLoop = fn
	return prev
}

// SetLevel replaces the active level mask and returns the previous one.
func SetLevel(mask Mask) Mask {
	prev := level &^ fatal
	level = (mask & 0x1f) | fatal
	return prev
}

// Level returns the currently active mask, fatal bit included.
func Level() Mask { return level }

func logf(l Mask, prefix, format string, args ...interface{}) {
	if level&l == 0 {
		return
	}
	if len(format) == 0 || format[len(format)-1] != '\n' {
		format += "\n"
	}
	fmt.Printf(prefix+format, args...)
}

// Errorf logs at Error level.
func Errorf(format string, args ...interface{}) { logf(Error, "ERROR: ", format, args...) }

// Warnf logs at Warn level.
func Warnf(format string, args ...interface{}) { logf(Warn, " WARN: ", format, args...) }

// Infof logs at Info level.
func Infof(format string, args ...interface{}) { logf(Info, " INFO: ", format, args...) }

// Debugf logs at Debug level.
func Debugf(format string, args ...interface{}) { logf(Debug, "DEBUG: ", format, args...) }

// Statsf logs at Stats level, tagging the message with category.
func Statsf(category, format string, args ...interface{}) {
	logf(Stats, fmt.Sprintf("STATS[%s]: ", category), format, args...)
}

// Fatalf logs unconditionally (Fatalf is not maskable) and then invokes
// the fault-loop hook. It does not return on the reference target.
func Fatalf(format string, args ...interface{}) {
	logf(fatal, "FATAL: ", format, args...)
	FaultLoop()
}
