/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package repository

import "context"

// Container defines a common interface for all repository types.
type Container interface {
	// User returns user repository.
	User() User

	// Close closes underlying storage resources, commonly shutting down the storage engine.
	Close(ctx context.Context) error
}
