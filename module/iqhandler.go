/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package module

import (
	"context"

	"github.com/wren-im/wren/stream"
	"github.com/wren-im/wren/xmpp"
)

// Module represents a generic XMPP module.
type Module interface {
	// AssociatedNamespaces returns namespaces associated
	// with this module.
	AssociatedNamespaces() []string

	// Done signals module termination.
	Done()
}

// IQHandler represents an IQ handler module.
type IQHandler interface {
	Module

	// MatchesIQ returns whether or not an IQ should be
	// processed by this module.
	MatchesIQ(iq *xmpp.IQ) bool

	// ProcessIQ processes a module IQ taking according actions
	// over the associated stream.
	ProcessIQ(ctx context.Context, iq *xmpp.IQ, stm stream.C2S)
}
