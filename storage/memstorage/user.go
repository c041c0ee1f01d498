/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package memstorage

import (
	"context"

	"github.com/wren-im/wren/model"
)

// UpsertUser inserts a new user entity into storage, or updates it if previously inserted.
func (m *Storage) UpsertUser(_ context.Context, user *model.User) error {
	return m.inWriteLock(func() error {
		u := *user
		m.users[user.Username] = &u
		return nil
	})
}

// DeleteUser deletes a user entity from storage.
func (m *Storage) DeleteUser(_ context.Context, username string) error {
	return m.inWriteLock(func() error {
		delete(m.users, username)
		return nil
	})
}

// FetchUser retrieves a user entity from storage.
func (m *Storage) FetchUser(_ context.Context, username string) (*model.User, error) {
	var ret *model.User
	err := m.inReadLock(func() error {
		if u := m.users[username]; u != nil {
			cp := *u
			ret = &cp
		}
		return nil
	})
	return ret, err
}

// UserExists tells whether or not a user exists within storage.
func (m *Storage) UserExists(_ context.Context, username string) (bool, error) {
	var ret bool
	err := m.inReadLock(func() error {
		ret = m.users[username] != nil
		return nil
	})
	return ret, err
}
