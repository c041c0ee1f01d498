/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package xep0065

import (
	"context"

	"github.com/wren-im/wren/stream"
	"github.com/wren-im/wren/xmpp"
)

const bytestreamsNamespace = "http://jabber.org/protocol/bytestreams"

// ByteStreams represents a byte streams IQ handler module. No stream
// hosts are offered, so discovery queries receive an empty result.
type ByteStreams struct{}

// New returns a byte streams IQ handler module.
func New() *ByteStreams {
	return &ByteStreams{}
}

// AssociatedNamespaces returns namespaces associated
// with byte streams module.
func (b *ByteStreams) AssociatedNamespaces() []string {
	return []string{bytestreamsNamespace}
}

// Done signals module termination.
func (b *ByteStreams) Done() {
}

// MatchesIQ returns whether or not an IQ should be
// processed by the byte streams module.
func (b *ByteStreams) MatchesIQ(iq *xmpp.IQ) bool {
	q := iq.Elements().Child("query")
	if q == nil {
		return false
	}
	return iq.IsGet() && q.Namespace() == bytestreamsNamespace
}

// ProcessIQ processes a byte streams IQ taking according actions
// over the associated stream.
func (b *ByteStreams) ProcessIQ(_ context.Context, iq *xmpp.IQ, stm stream.C2S) {
	result := iq.ResultIQ()
	result.AppendElement(xmpp.NewElementNamespace("query", bytestreamsNamespace))
	stm.SendElement(result)
}
