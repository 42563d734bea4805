package ktime

import "testing"

func TestCompareAcrossWrap(t *testing.T) {
	// now is just before the wrap; deadline is just after it.
	now := uint32(0xFFFFFFFE)
	deadline := uint32(1)
	if !Lt(now, deadline) {
		t.Fatalf("expected %#x < %#x across wrap", now, deadline)
	}
	if !Gt(deadline, now) {
		t.Fatalf("expected %#x > %#x across wrap", deadline, now)
	}
}

func TestTicksUntilSaturatesAtZero(t *testing.T) {
	if got := TicksUntil(100, 150); got != 0 {
		t.Fatalf("TicksUntil past deadline = %d want 0", got)
	}
	if got := TicksUntil(150, 100); got != 50 {
		t.Fatalf("TicksUntil = %d want 50", got)
	}
}

func TestWrapSafeDeadline(t *testing.T) {
	// Scenario 5 from spec.md §8: tick_now = 0xFFFFFFFE, timeout 5 means
	// wake = 3 (wrapped); timeout 1 means wake = 0xFFFFFFFF (no wrap).
	start := uint32(0xFFFFFFFE)
	wakeX := start + 5 // wraps to 3
	wakeY := start + 1 // 0xFFFFFFFF, no wrap

	if wakeX != 3 {
		t.Fatalf("wakeX = %#x want 3", wakeX)
	}
	if wakeY != 0xFFFFFFFF {
		t.Fatalf("wakeY = %#x want 0xFFFFFFFF", wakeY)
	}

	// Y's wake has not yet happened at start, and is in the "current" epoch
	// (wakeY >= now).
	if !Gte(wakeY, start) {
		t.Fatal("wakeY should be in the current epoch")
	}
	// X's wake is numerically below start -- which is exactly why the
	// plain unsigned compare made when arming puts it on the overflow
	// list. Compared using signed arithmetic, it still follows start.
	if !(wakeX < start) {
		t.Fatal("wakeX should be numerically below start (overflow epoch)")
	}
	if !Gt(wakeX, start) {
		t.Fatal("wakeX should still follow start under wrap-safe comparison")
	}
}

func TestTimeoutElapsesExactlyOnce(t *testing.T) {
	for _, timeout := range []uint32{1, 5, 100, 1 << 20} {
		for _, start := range []uint32{0, 1000, 0xFFFFFFF0} {
			deadline := start + timeout
			now := start
			ticked := uint32(0)
			for {
				remaining := TicksUntil(deadline, now)
				if remaining == 0 {
					break
				}
				now++
				ticked++
			}
			if ticked != timeout {
				t.Fatalf("start=%#x timeout=%d: elapsed %d ticks before Timeout", start, timeout, ticked)
			}
		}
	}
}
