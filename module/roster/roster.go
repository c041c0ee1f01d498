/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package roster

import (
	"context"

	"github.com/wren-im/wren/stream"
	"github.com/wren-im/wren/xmpp"
)

const rosterNamespace = "jabber:iq:roster"

// Roster represents a roster IQ handler module. Contact lists are not
// persisted, so every retrieval yields an empty roster.
type Roster struct{}

// New returns a roster IQ handler module.
func New() *Roster {
	return &Roster{}
}

// AssociatedNamespaces returns namespaces associated
// with roster module.
func (r *Roster) AssociatedNamespaces() []string {
	return []string{rosterNamespace}
}

// Done signals module termination.
func (r *Roster) Done() {
}

// MatchesIQ returns whether or not an IQ should be
// processed by the roster module.
func (r *Roster) MatchesIQ(iq *xmpp.IQ) bool {
	q := iq.Elements().Child("query")
	if q == nil {
		return false
	}
	return iq.IsGet() && q.Namespace() == rosterNamespace
}

// ProcessIQ processes a roster IQ taking according actions
// over the associated stream.
func (r *Roster) ProcessIQ(_ context.Context, iq *xmpp.IQ, stm stream.C2S) {
	result := iq.ResultIQ()
	result.AppendElement(xmpp.NewElementNamespace("query", rosterNamespace))
	stm.SendElement(result)
}
