package kernel

// Compile-time kernel tunables (spec.md §6). None of these are loaded from
// a config file or flag set: a kernel sized at compile time and linked
// into one firmware image has no runtime configuration surface, matching
// the teacher's own const-only sizing (maxFamilies, KPageSize in
// src/joy/family.go and src/joy/memory.go).
const (
	// MaxPriority is the lowest (numerically largest) schedulable
	// priority; 0 is highest.
	MaxPriority = 7
	// MaxTasks bounds the TCB pool.
	MaxTasks = 8
	// MaxQueues bounds the queue-control-block pool.
	MaxQueues = 4
	// MaxSemaphores bounds the semaphore-control-block pool.
	MaxSemaphores = 8
	// MaxMutexes bounds the mutex-control-block pool.
	MaxMutexes = 4
	// TickHz is the reference tick frequency (1 kHz => 1ms period).
	TickHz = 1000
)

// Stack size classes and their slot counts (bytes -> count).
var stackSizeClasses = []stackClass{
	{size: 512, count: 4},
	{size: 1024, count: 6},
	{size: 2048, count: 2},
}

type stackClass struct {
	size  int
	count int
}

// Queue buffer size classes and their slot counts (bytes -> count).
var queueBufferClasses = []stackClass{
	{size: 64, count: 8},
	{size: 256, count: 4},
	{size: 1024, count: 2},
}
