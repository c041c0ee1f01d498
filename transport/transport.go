/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package transport

import (
	"io"

	"github.com/wren-im/wren/xmpp"
)

// TransportType represents a stream transport type (socket).
type TransportType int

const (
	// Socket represents a socket transport type.
	Socket TransportType = iota + 1
)

// String returns TransportType string representation.
func (tt TransportType) String() string {
	switch tt {
	case Socket:
		return "socket"
	}
	return ""
}

// Transport represents a stream transport mechanism.
type Transport interface {
	io.ReadWriteCloser

	// Type returns transport type value.
	Type() TransportType

	// WriteString writes a raw string to the transport.
	WriteString(s string) error

	// WriteElement writes an XML element to the transport.
	WriteElement(elem xmpp.XElement, includeClosing bool) error
}
