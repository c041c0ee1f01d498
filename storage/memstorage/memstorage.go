/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package memstorage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/wren-im/wren/model"
	"github.com/wren-im/wren/storage/repository"
)

// ErrMocked will be returned by any method when mocked error is activated.
var ErrMocked = errors.New("memstorage: mocked error")

// Storage represents an in-memory repository container.
type Storage struct {
	mockErr uint32
	mu      sync.RWMutex
	users   map[string]*model.User
}

// New returns a new in-memory repository container.
func New() *Storage {
	return &Storage{
		users: make(map[string]*model.User),
	}
}

// User returns user repository.
func (m *Storage) User() repository.User { return m }

// Close releases all underlying resources.
func (m *Storage) Close(_ context.Context) error { return nil }

// ActivateMockedError makes every repository operation fail with ErrMocked.
func (m *Storage) ActivateMockedError() {
	atomic.StoreUint32(&m.mockErr, 1)
}

// DeactivateMockedError restores normal repository behaviour.
func (m *Storage) DeactivateMockedError() {
	atomic.StoreUint32(&m.mockErr, 0)
}

func (m *Storage) inWriteLock(f func() error) error {
	if atomic.LoadUint32(&m.mockErr) == 1 {
		return ErrMocked
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return f()
}

func (m *Storage) inReadLock(f func() error) error {
	if atomic.LoadUint32(&m.mockErr) == 1 {
		return ErrMocked
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return f()
}
