/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package router

import (
	"errors"
	"sort"
	"sync"

	"github.com/wren-im/wren/log"
	"github.com/wren-im/wren/stream"
	"github.com/wren-im/wren/xmpp"
	"github.com/wren-im/wren/xmpp/jid"
)

var (
	// ErrNotOnline will be returned by Route method
	// if destination user is not available at this moment.
	ErrNotOnline = errors.New("router: user not online")

	// ErrResourceNotFound will be returned by Route method
	// if destination resource does not match any of user's available resources.
	ErrResourceNotFound = errors.New("router: resource not found")

	// ErrUnknownDomain will be returned by Route method
	// if destination domain is not served locally.
	ErrUnknownDomain = errors.New("router: unknown domain")
)

// Router keeps track of every online c2s stream and routes
// stanzas to them applying local delivery rules.
type Router struct {
	localDomain string

	mu      sync.RWMutex
	streams map[string][]stream.C2S
	byID    map[uint64]stream.C2S
}

// New returns a new empty router instance serving a local domain.
func New(localDomain string) *Router {
	return &Router{
		localDomain: localDomain,
		streams:     make(map[string][]stream.C2S),
		byID:        make(map[uint64]stream.C2S),
	}
}

// IsLocalDomain returns true if domain is the local server domain.
func (r *Router) IsLocalDomain(domain string) bool {
	return domain == r.localDomain
}

// Bind marks a c2s stream as bound.
// Nothing is done in case no assigned resource is found.
func (r *Router) Bind(stm stream.C2S) {
	if len(stm.Resource()) == 0 {
		return
	}
	r.mu.Lock()
	bound := r.bind(stm)
	if bound {
		r.byID[stm.ID()] = stm
	}
	r.mu.Unlock()

	if !bound {
		return
	}
	log.Infof("bound c2s stream... (%d: %s/%s)", stm.ID(), stm.Username(), stm.Resource())
}

// Unbind unbinds a previously bound c2s stream.
// Nothing is done in case no assigned resource is found.
func (r *Router) Unbind(stmJID *jid.JID) {
	if len(stmJID.Resource()) == 0 {
		return
	}
	r.mu.Lock()
	stm, found := r.unbind(stmJID)
	if !found {
		r.mu.Unlock()
		return
	}
	delete(r.byID, stm.ID())
	r.mu.Unlock()

	log.Infof("unbound c2s stream... (%d: %s/%s)", stm.ID(), stmJID.Node(), stmJID.Resource())
}

// UserStreams returns all streams associated to a user.
func (r *Router) UserStreams(username string) []stream.C2S {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.streams[username]
}

// Streams returns a point-in-time snapshot of all bound
// streams sorted by their identifier.
func (r *Router) Streams() []stream.C2S {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ret := make([]stream.C2S, 0, len(r.byID))
	for _, stm := range r.byID {
		ret = append(ret, stm)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ID() < ret[j].ID() })
	return ret
}

// Route routes a stanza applying server rules for handling XML stanzas.
// (https://xmpp.org/rfcs/rfc3921.html#rules)
func (r *Router) Route(stanza xmpp.Stanza) error {
	toJID := stanza.ToJID()
	if !r.IsLocalDomain(toJID.Domain()) {
		return ErrUnknownDomain
	}
	rcps := r.UserStreams(toJID.Node())
	if len(rcps) == 0 {
		return ErrNotOnline
	}
	if toJID.IsFullWithUser() {
		for _, stm := range rcps {
			if stm.Resource() == toJID.Resource() {
				stm.SendElement(stanza)
				return nil
			}
		}
		return ErrResourceNotFound
	}
	// fan out to every user resource
	for _, stm := range rcps {
		stm.SendElement(stanza)
	}
	return nil
}

func (r *Router) bind(stm stream.C2S) bool {
	if usrStreams := r.streams[stm.Username()]; usrStreams != nil {
		res := stm.Resource()
		for _, usrStream := range usrStreams {
			if usrStream.Resource() == res {
				return false // already bound
			}
		}
		r.streams[stm.Username()] = append(usrStreams, stm)
	} else {
		r.streams[stm.Username()] = []stream.C2S{stm}
	}
	return true
}

func (r *Router) unbind(j *jid.JID) (stream.C2S, bool) {
	if usrStreams := r.streams[j.Node()]; usrStreams != nil {
		res := j.Resource()
		for i := 0; i < len(usrStreams); i++ {
			if res == usrStreams[i].Resource() {
				stm := usrStreams[i]
				usrStreams = append(usrStreams[:i], usrStreams[i+1:]...)
				if len(usrStreams) > 0 {
					r.streams[j.Node()] = usrStreams
				} else {
					delete(r.streams, j.Node())
				}
				return stm, true
			}
		}
	}
	return nil, false
}
