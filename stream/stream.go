/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package stream

import (
	"github.com/wren-im/wren/xmpp"
	"github.com/wren-im/wren/xmpp/jid"
)

// InStream represents a generic incoming stream.
type InStream interface {
	ID() uint64
	Disconnect(err error)
}

// C2S represents a client-to-server XMPP stream.
// The numeric identifier is assigned when the stream becomes online and
// is never reused for the process lifetime.
type C2S interface {
	InStream

	Username() string
	Domain() string
	Resource() string

	JID() *jid.JID

	IsAuthenticated() bool

	Presence() *xmpp.Presence

	SendElement(elem xmpp.XElement)
}
