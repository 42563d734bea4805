package pool

import (
	"math/rand"
	"testing"
)

type slot struct {
	A int64
	B int64
}

func TestAllocZeroFilled(t *testing.T) {
	p := New[slot](4)
	s := p.Alloc()
	s.A, s.B = 7, 9
	if !p.Free(s) {
		t.Fatal("free should succeed")
	}
	s2 := p.Alloc()
	if s2.A != 0 || s2.B != 0 {
		t.Fatalf("reallocated slot not zero filled: %+v", *s2)
	}
}

func TestAllocExhaustion(t *testing.T) {
	p := New[slot](3)
	var got []*slot
	for i := 0; i < 3; i++ {
		s := p.Alloc()
		if s == nil {
			t.Fatalf("alloc %d should not fail", i)
		}
		got = append(got, s)
	}
	if p.Alloc() != nil {
		t.Fatal("pool should be exhausted")
	}
	if !p.Free(got[0]) {
		t.Fatal("free should succeed")
	}
	if p.Alloc() == nil {
		t.Fatal("alloc should succeed after a free")
	}
}

func TestDoubleFreeRejected(t *testing.T) {
	p := New[slot](2)
	s := p.Alloc()
	if !p.Free(s) {
		t.Fatal("first free should succeed")
	}
	before := p.Stats()
	if p.Free(s) {
		t.Fatal("second free of same pointer should be rejected")
	}
	after := p.Stats()
	if before != after {
		t.Fatalf("bitmap mutated by rejected double-free: %+v -> %+v", before, after)
	}
}

func TestForeignPointerRejected(t *testing.T) {
	p := New[slot](2)
	foreign := &slot{}
	if p.Free(foreign) {
		t.Fatal("free of foreign pointer should be rejected")
	}
}

func TestPeakTracksHighWaterMark(t *testing.T) {
	p := New[slot](4)
	a := p.Alloc()
	b := p.Alloc()
	p.Free(a)
	p.Free(b)
	if p.Stats().Peak != 2 {
		t.Fatalf("peak = %d want 2", p.Stats().Peak)
	}
}

func TestPoolConsistencyRandomized(t *testing.T) {
	const n = 32
	p := New[slot](n)
	rng := rand.New(rand.NewSource(7))
	live := map[*slot]bool{}

	for i := 0; i < 10000; i++ {
		st := p.Stats()
		if st.Used+st.Free != st.Total {
			t.Fatalf("used+free != total: %+v", st)
		}
		if st.Used != len(live) {
			t.Fatalf("used=%d tracked=%d", st.Used, len(live))
		}
		if rng.Intn(2) == 0 {
			s := p.Alloc()
			if s == nil {
				if st.Used != n {
					t.Fatal("alloc failed while pool not full")
				}
				continue
			}
			if live[s] {
				t.Fatal("alloc returned a pointer already live")
			}
			live[s] = true
		} else {
			if len(live) == 0 {
				continue
			}
			var victim *slot
			for k := range live {
				victim = k
				break
			}
			if !p.Free(victim) {
				t.Fatal("free of a live pointer should succeed")
			}
			delete(live, victim)
		}
	}
}
