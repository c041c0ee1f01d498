/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package model

// User represents a user storage entity.
type User struct {
	Username string
	Password string
}
