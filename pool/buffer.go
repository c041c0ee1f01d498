/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package pool

import (
	"bytes"
	"sync"
)

// BufferPool represents a sync.Pool of reusable byte buffers.
type BufferPool struct {
	p sync.Pool
}

// NewBufferPool returns a new buffer pool instance.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		p: sync.Pool{New: func() interface{} { return new(bytes.Buffer) }},
	}
}

// Get returns a buffer instance from the pool.
func (bp *BufferPool) Get() *bytes.Buffer {
	return bp.p.Get().(*bytes.Buffer)
}

// Put resets a buffer instance and returns it back to the pool.
func (bp *BufferPool) Put(buf *bytes.Buffer) {
	buf.Reset()
	bp.p.Put(buf)
}
