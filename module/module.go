/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package module

import (
	"context"

	"github.com/wren-im/wren/log"
	"github.com/wren-im/wren/module/roster"
	"github.com/wren-im/wren/module/xep0030"
	"github.com/wren-im/wren/module/xep0065"
	"github.com/wren-im/wren/router"
	"github.com/wren-im/wren/stream"
	"github.com/wren-im/wren/xmpp"
)

const streamsNamespace = "http://etherx.jabber.org/streams"

// Observer gets notified about every stanza entering the dispatcher,
// whether or not a handler ends up processing it.
type Observer interface {
	StanzaObserved(stanza xmpp.Stanza)
}

type dispatchKey struct {
	name      string
	iqType    string
	namespace string
}

// Modules dispatches inbound stanzas to their registered handlers.
// The dispatch table is built once at initialization time and never
// mutated afterwards.
type Modules struct {
	router     *router.Router
	observer   Observer
	discoInfo  *xep0030.DiscoInfo
	iqHandlers []IQHandler
	table      map[dispatchKey]IQHandler
	gateway    offlineGateway
}

type offlineGateway interface {
	Route(msg *xmpp.Message) error
}

// New returns a module dispatcher initialized from a configuration.
func New(config *Config, r *router.Router, observer Observer) *Modules {
	m := &Modules{
		router:    r,
		observer:  observer,
		discoInfo: xep0030.New(),
		table:     make(map[dispatchKey]IQHandler),
	}
	m.registerIQHandler(m.discoInfo)
	m.registerIQHandler(roster.New())
	m.registerIQHandler(xep0065.New())
	m.registerIQHandler(&streamsHandler{})

	if config != nil && config.Offline.Gateway != nil {
		m.gateway = config.Offline.Gateway
	}
	return m
}

// DiscoInfo returns the service discovery handler so identities,
// features and items can be announced.
func (m *Modules) DiscoInfo() *xep0030.DiscoInfo {
	return m.discoInfo
}

// ProcessIQ dispatches an inbound iq stanza. Every get or set receives
// exactly one response: either the resolved handler's or an
// unexpected-request error.
func (m *Modules) ProcessIQ(ctx context.Context, iq *xmpp.IQ, stm stream.C2S) {
	m.notifyObserver(iq)

	if handler := m.resolveIQHandler(iq); handler != nil {
		handler.ProcessIQ(ctx, iq, stm)
		return
	}
	if iq.IsGet() || iq.IsSet() {
		stm.SendElement(iq.UnexpectedRequestError())
	}
}

// ProcessMessage routes an inbound message stanza to the recipient's
// online streams, falling back to the offline gateway when nobody is
// available.
func (m *Modules) ProcessMessage(_ context.Context, msg *xmpp.Message, stm stream.C2S) {
	m.notifyObserver(msg)

	switch err := m.router.Route(msg); err {
	case nil:
		break
	case router.ErrNotOnline:
		if m.gateway != nil {
			if err := m.gateway.Route(msg); err != nil {
				log.Errorf("offline gateway: %v", err)
				stm.SendElement(msg.ServiceUnavailableError())
			}
			return
		}
		stm.SendElement(msg.ServiceUnavailableError())
	case router.ErrResourceNotFound, router.ErrUnknownDomain:
		stm.SendElement(msg.ItemNotFoundError())
	default:
		log.Error(err)
		stm.SendElement(msg.InternalServerError())
	}
}

// Done signals termination to every registered module.
func (m *Modules) Done() {
	for _, handler := range m.iqHandlers {
		handler.Done()
	}
}

func (m *Modules) registerIQHandler(handler IQHandler) {
	m.iqHandlers = append(m.iqHandlers, handler)
	for _, ns := range handler.AssociatedNamespaces() {
		m.table[dispatchKey{name: "iq", iqType: xmpp.GetType, namespace: ns}] = handler
	}
}

func (m *Modules) resolveIQHandler(iq *xmpp.IQ) IQHandler {
	q := iq.Elements().Child("query")
	if q == nil {
		return nil
	}
	handler := m.table[dispatchKey{name: iq.Name(), iqType: iq.Type(), namespace: q.Namespace()}]
	if handler == nil || !handler.MatchesIQ(iq) {
		return nil
	}
	return handler
}

func (m *Modules) notifyObserver(stanza xmpp.Stanza) {
	if m.observer != nil {
		m.observer.StanzaObserved(stanza)
	}
}

// streamsHandler answers stream namespace queries with an empty result.
type streamsHandler struct{}

func (h *streamsHandler) AssociatedNamespaces() []string { return []string{streamsNamespace} }

func (h *streamsHandler) Done() {}

func (h *streamsHandler) MatchesIQ(iq *xmpp.IQ) bool { return iq.IsGet() }

func (h *streamsHandler) ProcessIQ(_ context.Context, iq *xmpp.IQ, stm stream.C2S) {
	result := iq.ResultIQ()
	result.AppendElement(xmpp.NewElementNamespace("query", streamsNamespace))
	stm.SendElement(result)
}
