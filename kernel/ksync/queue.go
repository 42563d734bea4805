package ksync

import (
	"nanokernel/kernel/kerr"
	"nanokernel/kernel/ktime"
	"nanokernel/kernel/list"
	"nanokernel/kernel/ring"
	"nanokernel/kernel/sched"
)

// Queue is a fixed-capacity FIFO message queue with independent
// sender/receiver wait-lists (spec.md §4.7), grounded on the QCB shape in
// original_source/kernel/inc/queue.h (a circular_buffer_t plus
// waiting_senders/waiting_receivers) and on original_source/kernel/src's
// shared wait/timeout structure, which semaphore.c and mutex.c both show
// in full even though queue.c's own send/receive bodies were left as
// unimplemented declarations.
type Queue struct {
	s                *sched.Scheduler
	Name             string
	buf              *ring.Ring[[]byte]
	itemSize         int
	waitingSenders   list.List[*sched.TCB]
	waitingReceivers list.List[*sched.TCB]
	deleted          bool
}

// Init populates an already-allocated Queue in place, allocating a new
// ring buffer with room for at least length items. It does not check the
// size against kernel/config.go's queueBufferClasses; QueueCreate does.
func (q *Queue) Init(s *sched.Scheduler, length, itemSize int, name string) kerr.Kind {
	if length <= 0 || itemSize <= 0 {
		return kerr.Null
	}
	q.s = s
	q.Name = name
	q.buf = ring.New[[]byte](length)
	q.itemSize = itemSize
	q.waitingSenders = list.List[*sched.TCB]{}
	q.waitingReceivers = list.List[*sched.TCB]{}
	q.deleted = false
	return kerr.OK
}

// Delete wakes every waiter (sender and receiver) with WokeDeleted.
func (q *Queue) Delete() {
	cs := q.s.CS()
	tok := cs.Enter()
	q.deleted = true
	var woken []*sched.TCB
	for _, wl := range []*list.List[*sched.TCB]{&q.waitingSenders, &q.waitingReceivers} {
		for n := wl.PopFront(); n != nil; n = wl.PopFront() {
			t := n.Value
			t.OnDetach = nil
			woken = append(woken, t)
		}
	}
	cs.Leave(tok)
	for _, t := range woken {
		q.s.WakeBlocked(t, sched.WokeDeleted)
	}
}

// Send copies item (exactly itemSize bytes) into the queue, blocking self
// for up to timeoutTicks if the queue is full.
func (q *Queue) Send(self *sched.TCB, item []byte, timeoutTicks uint32) kerr.Kind {
	if len(item) != q.itemSize {
		return kerr.Null
	}
	deadline := q.s.Now() + timeoutTicks
	for {
		cs := q.s.CS()
		tok := cs.Enter()

		if q.deleted {
			cs.Leave(tok)
			return kerr.ObjectDeleted
		}
		if !q.buf.Full() {
			cpy := append([]byte(nil), item...)
			q.buf.Put(cpy)
			n := q.waitingReceivers.PopFront()
			var woken *sched.TCB
			if n != nil {
				woken = n.Value
				woken.OnDetach = nil
			}
			cs.Leave(tok)
			if woken != nil {
				q.s.WakeBlocked(woken, sched.WokeNormally)
			}
			return kerr.OK
		}
		if timeoutTicks == ktime.NoWait {
			cs.Leave(tok)
			return kerr.Full
		}
		now := q.s.NowLocked()
		remaining := timeoutTicks
		if timeoutTicks != ktime.WaitForever {
			remaining = ktime.TicksUntil(deadline, now)
			if remaining == 0 {
				cs.Leave(tok)
				return kerr.Timeout
			}
		}

		q.waitingSenders.PushBack(&self.WaitNode)
		self.OnDetach = func() { q.detachSender(self) }
		cs.Leave(tok)

		reason := q.s.Block(self, remaining)
		if reason == sched.WokeTimeout {
			return kerr.Timeout
		}
		if reason == sched.WokeDeleted {
			return kerr.ObjectDeleted
		}
		if timeoutTicks != ktime.WaitForever {
			timeoutTicks = ktime.TicksUntil(deadline, q.s.Now())
			if timeoutTicks == 0 {
				return kerr.Timeout
			}
		}
	}
}

// SendImmediate is Send with a zero timeout.
func (q *Queue) SendImmediate(self *sched.TCB, item []byte) kerr.Kind {
	return q.Send(self, item, ktime.NoWait)
}

// Receive copies the oldest item into item (which must be exactly
// itemSize bytes), blocking self for up to timeoutTicks if the queue is
// empty.
func (q *Queue) Receive(self *sched.TCB, item []byte, timeoutTicks uint32) kerr.Kind {
	if len(item) != q.itemSize {
		return kerr.Null
	}
	deadline := q.s.Now() + timeoutTicks
	for {
		cs := q.s.CS()
		tok := cs.Enter()

		if q.deleted {
			cs.Leave(tok)
			return kerr.ObjectDeleted
		}
		if !q.buf.Empty() {
			v, _ := q.buf.Get()
			copy(item, v)
			n := q.waitingSenders.PopFront()
			var woken *sched.TCB
			if n != nil {
				woken = n.Value
				woken.OnDetach = nil
			}
			cs.Leave(tok)
			if woken != nil {
				q.s.WakeBlocked(woken, sched.WokeNormally)
			}
			return kerr.OK
		}
		if timeoutTicks == ktime.NoWait {
			cs.Leave(tok)
			return kerr.Empty
		}
		now := q.s.NowLocked()
		remaining := timeoutTicks
		if timeoutTicks != ktime.WaitForever {
			remaining = ktime.TicksUntil(deadline, now)
			if remaining == 0 {
				cs.Leave(tok)
				return kerr.Timeout
			}
		}

		q.waitingReceivers.PushBack(&self.WaitNode)
		self.OnDetach = func() { q.detachReceiver(self) }
		cs.Leave(tok)

		reason := q.s.Block(self, remaining)
		if reason == sched.WokeTimeout {
			return kerr.Timeout
		}
		if reason == sched.WokeDeleted {
			return kerr.ObjectDeleted
		}
		if timeoutTicks != ktime.WaitForever {
			timeoutTicks = ktime.TicksUntil(deadline, q.s.Now())
			if timeoutTicks == 0 {
				return kerr.Timeout
			}
		}
	}
}

// ReceiveImmediate is Receive with a zero timeout.
func (q *Queue) ReceiveImmediate(self *sched.TCB, item []byte) kerr.Kind {
	return q.Receive(self, item, ktime.NoWait)
}

func (q *Queue) detachSender(self *sched.TCB) {
	cs := q.s.CS()
	tok := cs.Enter()
	q.waitingSenders.Remove(&self.WaitNode)
	cs.Leave(tok)
}

func (q *Queue) detachReceiver(self *sched.TCB) {
	cs := q.s.CS()
	tok := cs.Enter()
	q.waitingReceivers.Remove(&self.WaitNode)
	cs.Leave(tok)
}

// IsEmpty reports whether the queue currently holds no items.
func (q *Queue) IsEmpty() bool {
	cs := q.s.CS()
	tok := cs.Enter()
	defer cs.Leave(tok)
	return q.buf.Empty()
}

// IsFull reports whether the queue has no room for another Send.
func (q *Queue) IsFull() bool {
	cs := q.s.CS()
	tok := cs.Enter()
	defer cs.Leave(tok)
	return q.buf.Full()
}

// MessagesWaiting returns the number of items currently queued.
func (q *Queue) MessagesWaiting() int {
	cs := q.s.CS()
	tok := cs.Enter()
	defer cs.Leave(tok)
	return q.buf.Len()
}
