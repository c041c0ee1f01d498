/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package xep0030

import (
	"context"
	"sort"
	"sync"

	"github.com/wren-im/wren/stream"
	"github.com/wren-im/wren/xmpp"
)

const (
	discoInfoNamespace  = "http://jabber.org/protocol/disco#info"
	discoItemsNamespace = "http://jabber.org/protocol/disco#items"
)

// Feature represents a disco info feature entity.
type Feature = string

// Item represents a disco items item entity.
type Item struct {
	Jid  string
	Name string
	Node string
}

// Identity represents a disco info identity entity.
type Identity struct {
	Category string
	Type     string
	Name     string
}

// DiscoInfo represents a service discovery IQ handler module.
type DiscoInfo struct {
	mu         sync.RWMutex
	identities []Identity
	features   []Feature
	items      []Item
}

// New returns a service discovery IQ handler module.
func New() *DiscoInfo {
	return &DiscoInfo{}
}

// Identities returns disco info module's identities.
func (x *DiscoInfo) Identities() []Identity {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.identities
}

// SetIdentities sets disco info module's identities.
func (x *DiscoInfo) SetIdentities(identities []Identity) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.identities = identities
}

// Features returns disco info module's features.
func (x *DiscoInfo) Features() []Feature {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.features
}

// SetFeatures sets disco info module's features.
func (x *DiscoInfo) SetFeatures(features []Feature) {
	x.mu.Lock()
	defer x.mu.Unlock()
	sort.Slice(features, func(i, j int) bool { return features[i] < features[j] })
	x.features = features
}

// Items returns disco items module's items.
func (x *DiscoInfo) Items() []Item {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.items
}

// SetItems sets disco items module's items.
func (x *DiscoInfo) SetItems(items []Item) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.items = items
}

// AssociatedNamespaces returns namespaces associated
// with service discovery module.
func (x *DiscoInfo) AssociatedNamespaces() []string {
	return []string{discoInfoNamespace, discoItemsNamespace}
}

// Done signals module termination.
func (x *DiscoInfo) Done() {
}

// MatchesIQ returns whether or not an IQ should be
// processed by the service discovery module.
func (x *DiscoInfo) MatchesIQ(iq *xmpp.IQ) bool {
	q := iq.Elements().Child("query")
	if q == nil {
		return false
	}
	return iq.IsGet() && (q.Namespace() == discoInfoNamespace || q.Namespace() == discoItemsNamespace)
}

// ProcessIQ processes a service discovery IQ taking according actions
// over the associated stream.
func (x *DiscoInfo) ProcessIQ(_ context.Context, iq *xmpp.IQ, stm stream.C2S) {
	q := iq.Elements().Child("query")
	switch q.Namespace() {
	case discoInfoNamespace:
		x.sendDiscoInfo(iq, stm)
	case discoItemsNamespace:
		x.sendDiscoItems(iq, stm)
	}
}

func (x *DiscoInfo) sendDiscoInfo(iq *xmpp.IQ, stm stream.C2S) {
	result := iq.ResultIQ()
	query := xmpp.NewElementNamespace("query", discoInfoNamespace)

	// identities and features describe the server entity
	if iq.ToJID().IsServer() {
		x.mu.RLock()
		for _, identity := range x.identities {
			identityEl := xmpp.NewElementName("identity")
			identityEl.SetAttribute("category", identity.Category)
			if len(identity.Type) > 0 {
				identityEl.SetAttribute("type", identity.Type)
			}
			if len(identity.Name) > 0 {
				identityEl.SetAttribute("name", identity.Name)
			}
			query.AppendElement(identityEl)
		}
		for _, feature := range x.features {
			featureEl := xmpp.NewElementName("feature")
			featureEl.SetAttribute("var", feature)
			query.AppendElement(featureEl)
		}
		x.mu.RUnlock()
	}
	result.AppendElement(query)
	stm.SendElement(result)
}

func (x *DiscoInfo) sendDiscoItems(iq *xmpp.IQ, stm stream.C2S) {
	result := iq.ResultIQ()
	query := xmpp.NewElementNamespace("query", discoItemsNamespace)

	if iq.ToJID().IsServer() {
		x.mu.RLock()
		for _, item := range x.items {
			itemEl := xmpp.NewElementName("item")
			itemEl.SetAttribute("jid", item.Jid)
			if len(item.Name) > 0 {
				itemEl.SetAttribute("name", item.Name)
			}
			if len(item.Node) > 0 {
				itemEl.SetAttribute("node", item.Node)
			}
			query.AppendElement(itemEl)
		}
		x.mu.RUnlock()
	}
	result.AppendElement(query)
	stm.SendElement(result)
}
