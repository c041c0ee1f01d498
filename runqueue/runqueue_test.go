/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package runqueue

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunQueueSerialization(t *testing.T) {
	rq := New("test")

	var active, maxActive, cnt int32
	var wg sync.WaitGroup

	for i := 0; i < 200; i++ {
		wg.Add(1)
		rq.Run(func() {
			defer wg.Done()
			a := atomic.AddInt32(&active, 1)
			if a > atomic.LoadInt32(&maxActive) {
				atomic.StoreInt32(&maxActive, a)
			}
			atomic.AddInt32(&cnt, 1)
			atomic.AddInt32(&active, -1)
		})
	}
	wg.Wait()

	require.Equal(t, int32(200), atomic.LoadInt32(&cnt))
	require.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
}

func TestRunQueueStop(t *testing.T) {
	rq := New("test")

	stopCh := make(chan struct{})
	rq.Run(func() { time.Sleep(time.Millisecond * 10) })
	rq.Stop(func() { close(stopCh) })

	select {
	case <-stopCh:
		break
	case <-time.After(time.Second):
		require.Fail(t, "stop callback was never invoked")
	}

	// queue must not accept more jobs once stopped
	ran := int32(0)
	rq.Run(func() { atomic.StoreInt32(&ran, 1) })
	time.Sleep(time.Millisecond * 50)
	require.Equal(t, int32(0), atomic.LoadInt32(&ran))
}

func TestRunQueuePanicRecovery(t *testing.T) {
	rq := New("test")

	doneCh := make(chan struct{})
	rq.Run(func() { panic("boom") })
	rq.Run(func() { close(doneCh) })

	select {
	case <-doneCh:
		break
	case <-time.After(time.Second):
		require.Fail(t, "queue did not survive a panicking job")
	}
}

func TestRunQueueRunReportsAcceptance(t *testing.T) {
	rq := New("test")

	ranCh := make(chan struct{})
	require.True(t, rq.Run(func() { close(ranCh) }))

	stopCh := make(chan struct{})
	rq.Stop(func() { close(stopCh) })

	select {
	case <-stopCh:
		break
	case <-time.After(time.Second):
		require.Fail(t, "stop callback was never invoked")
	}
	// an accepted job always runs before the queue shuts down
	select {
	case <-ranCh:
		break
	default:
		require.Fail(t, "accepted job was dropped on stop")
	}
	require.False(t, rq.Run(func() {}))
}
