/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package runqueue

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/wren-im/wren/log"
	"github.com/wren-im/wren/runqueue/mpsc"
)

const (
	idle int32 = iota
	running
)

// RunQueue executes pushed functions one at a time, in push order.
// It is the single-writer funnel every connection state machine runs on.
type RunQueue struct {
	name         string
	queue        *mpsc.Queue
	messageCount int32
	state        int32
	stopped      int32

	// stopMu orders Run against Stop: a function accepted by Run is
	// enqueued ahead of the stop marker and is guaranteed to execute.
	stopMu sync.RWMutex
}

type funcMessage struct{ fn func() }
type stopMessage struct{ stopCb func() }

// New returns an initialized run queue.
func New(name string) *RunQueue {
	return &RunQueue{
		name:  name,
		queue: mpsc.New(),
	}
}

// Run pushes a new operation function into the queue, returning whether
// or not it was accepted. A false return means the queue had already been
// stopped and the function was discarded.
func (m *RunQueue) Run(fn func()) bool {
	m.stopMu.RLock()
	defer m.stopMu.RUnlock()

	if atomic.LoadInt32(&m.stopped) == 1 {
		return false
	}
	m.queue.Push(&funcMessage{fn: fn})
	atomic.AddInt32(&m.messageCount, 1)
	m.schedule()
	return true
}

// Stop signals the queue to stop running. Previously accepted functions
// are run to completion before the queue shuts down.
//
// The 'stopCb' callback is guaranteed to be immediately executed only if no
// job has been previously scheduled.
func (m *RunQueue) Stop(stopCb func()) {
	m.stopMu.Lock()
	if atomic.CompareAndSwapInt32(&m.stopped, 0, 1) {
		if atomic.LoadInt32(&m.messageCount) > 0 {
			m.queue.Push(&stopMessage{stopCb: stopCb})
			m.stopMu.Unlock()
			return
		}
	}
	m.stopMu.Unlock()

	if stopCb != nil {
		stopCb()
	}
}

func (m *RunQueue) schedule() {
	if atomic.CompareAndSwapInt32(&m.state, idle, running) {
		go m.process()
	}
}

func (m *RunQueue) process() {

process:
	m.run()

	if atomic.LoadInt32(&m.stopped) == 1 {
		return
	}

	atomic.StoreInt32(&m.state, idle)
	if atomic.LoadInt32(&m.messageCount) > 0 {
		// try setting the queue back to running
		if atomic.CompareAndSwapInt32(&m.state, idle, running) {
			goto process
		}
	}
}

func (m *RunQueue) run() {
	defer func() {
		if err := recover(); err != nil {
			m.logStackTrace(err)
		}
	}()

	for {
		switch msg := m.queue.Pop().(type) {
		case *funcMessage:
			msg.fn()
			atomic.AddInt32(&m.messageCount, -1)
		case *stopMessage:
			if cb := msg.stopCb; cb != nil {
				cb()
			}
			return
		default:
			return
		}
	}
}

func (m *RunQueue) logStackTrace(err interface{}) {
	stackSlice := make([]byte, 4096)
	s := runtime.Stack(stackSlice, false)

	log.Errorf("runqueue '%s' panicked with error: %v\n%s", m.name, err, stackSlice[0:s])
}
