/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

// Package mpsc provides an efficient implementation of a multi-producer,
// single-consumer lock-free queue.
package mpsc

import (
	"sync/atomic"
	"unsafe"
)

type node struct {
	next unsafe.Pointer
	val  interface{}
}

// Queue is a multiple-producer, single-consumer queue.
// Push may be invoked from any goroutine; Pop must always
// be invoked from a single consumer goroutine.
type Queue struct {
	head unsafe.Pointer
	tail *node
	stub node
}

// New returns an initialized queue.
func New() *Queue {
	q := &Queue{}
	q.head = unsafe.Pointer(&q.stub)
	q.tail = &q.stub
	return q
}

// Push adds a value to the queue.
func (q *Queue) Push(v interface{}) {
	n := &node{val: v}
	prev := (*node)(atomic.SwapPointer(&q.head, unsafe.Pointer(n)))
	atomic.StorePointer(&prev.next, unsafe.Pointer(n))
}

// Pop removes the next value from the queue, or nil if the queue is empty.
func (q *Queue) Pop() interface{} {
	tail := q.tail
	next := (*node)(atomic.LoadPointer(&tail.next))
	if next == nil {
		return nil
	}
	q.tail = next
	v := next.val
	next.val = nil
	return v
}

// Empty returns true whether queue has no pending values.
func (q *Queue) Empty() bool {
	return atomic.LoadPointer(&q.tail.next) == nil
}
