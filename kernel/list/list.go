// Package list implements an intrusive doubly linked list.
//
// Unlike container/list, a Node[T] is meant to be embedded directly inside
// the struct it links (a TCB, a wait entry, ...): the node never owns the
// value and never allocates one, it only links an existing value into at
// most one list at a time. This is what lets a single TCB sit on a ready
// queue, a delayed list, and a wait-list using three independent Node
// fields without any of the lists copying or boxing the TCB.
package list

// Node is one link in a List. The zero value is an unlinked node.
type Node[T any] struct {
	prev, next *Node[T]
	list       *List[T]
	Value      T
}

// Linked reports whether n is currently a member of some list.
func (n *Node[T]) Linked() bool {
	return n.list != nil
}

// Next returns the following node, or nil if n is the last node or unlinked.
func (n *Node[T]) Next() *Node[T] {
	if n.list == nil {
		return nil
	}
	return n.next
}

// Prev returns the preceding node, or nil if n is the first node or unlinked.
func (n *Node[T]) Prev() *Node[T] {
	if n.list == nil {
		return nil
	}
	return n.prev
}

// List is an intrusive doubly linked list of *Node[T]. The zero value is
// an empty list.
type List[T any] struct {
	first, last *Node[T]
	length      int
}

// Empty reports whether the list has no nodes.
func (l *List[T]) Empty() bool {
	return l.first == nil
}

// Len returns the number of nodes currently linked, in O(1).
func (l *List[T]) Len() int {
	return l.length
}

// First returns the head node, or nil if the list is empty.
func (l *List[T]) First() *Node[T] {
	return l.first
}

// Last returns the tail node, or nil if the list is empty.
func (l *List[T]) Last() *Node[T] {
	return l.last
}

// PushFront links n at the head of the list. n must not already be linked
// into any list.
func (l *List[T]) PushFront(n *Node[T]) {
	if n.list != nil {
		panic("list: PushFront of node already linked")
	}
	n.list = l
	n.prev = nil
	n.next = l.first
	if l.first != nil {
		l.first.prev = n
	} else {
		l.last = n
	}
	l.first = n
	l.length++
}

// PushBack links n at the tail of the list. n must not already be linked
// into any list.
func (l *List[T]) PushBack(n *Node[T]) {
	if n.list != nil {
		panic("list: PushBack of node already linked")
	}
	n.list = l
	n.next = nil
	n.prev = l.last
	if l.last != nil {
		l.last.next = n
	} else {
		l.first = n
	}
	l.last = n
	l.length++
}

// Remove unlinks n from its list. It is a no-op if n is not linked.
func (l *List[T]) Remove(n *Node[T]) {
	if n.list == nil {
		return
	}
	if n.list != l {
		panic("list: Remove of node belonging to a different list")
	}
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.first = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.last = n.prev
	}
	n.prev = nil
	n.next = nil
	n.list = nil
	l.length--
}

// PopFront removes and returns the head node, or nil if the list is empty.
func (l *List[T]) PopFront() *Node[T] {
	n := l.first
	if n == nil {
		return nil
	}
	l.Remove(n)
	return n
}

// MoveToBack unlinks n (if linked anywhere) and re-links it at the tail of
// l. This is the round-robin primitive: remove head, append tail, in one
// call.
func (l *List[T]) MoveToBack(n *Node[T]) {
	if n.list != nil {
		n.list.Remove(n)
	}
	l.PushBack(n)
}

// InsertBefore links n immediately before target. A nil target means
// PushBack.
func (l *List[T]) InsertBefore(target, n *Node[T]) {
	if n.list != nil {
		panic("list: InsertBefore of node already linked")
	}
	if target == nil {
		l.PushBack(n)
		return
	}
	if target.list != l {
		panic("list: InsertBefore target belongs to a different list")
	}
	n.list = l
	n.next = target
	n.prev = target.prev
	if target.prev != nil {
		target.prev.next = n
	} else {
		l.first = n
	}
	target.prev = n
	l.length++
}

// Do calls fn for every value in the list, head to tail. fn must not
// mutate the list.
func (l *List[T]) Do(fn func(*Node[T])) {
	for n := l.first; n != nil; n = n.next {
		fn(n)
	}
}
