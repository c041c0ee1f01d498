/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package c2s

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pborman/uuid"

	"github.com/wren-im/wren/auth"
	"github.com/wren-im/wren/log"
	"github.com/wren-im/wren/module"
	"github.com/wren-im/wren/router"
	"github.com/wren-im/wren/runqueue"
	"github.com/wren-im/wren/session"
	"github.com/wren-im/wren/streamerror"
	"github.com/wren-im/wren/transport"
	"github.com/wren-im/wren/xmpp"
	"github.com/wren-im/wren/xmpp/jid"
)

const (
	connecting uint32 = iota
	authenticating
	binding
	online
	closing
	closed
)

const (
	streamNamespace   = "http://etherx.jabber.org/streams"
	saslNamespace     = "urn:ietf:params:xml:ns:xmpp-sasl"
	bindNamespace     = "urn:ietf:params:xml:ns:xmpp-bind"
	sessionNamespace  = "urn:ietf:params:xml:ns:xmpp-session"
	registerNamespace = "jabber:iq:register"
)

type streamConfig struct {
	transport      transport.Transport
	connectTimeout time.Duration
	maxStanzaSize  int
	domain         string

	// onOnline admits the stream into the connection registry,
	// assigning its identifier. A false return means the server is
	// shutting down and the stream must be dropped.
	onOnline func(stm *inStream) bool
}

type inStream struct {
	cfg       *streamConfig
	router    *router.Router
	mods      *module.Modules
	authr     *auth.Plain
	sess      *session.Session
	sessID    string
	connectTm *time.Timer
	state     uint32
	id        uint64
	runQueue  *runqueue.RunQueue

	mu            sync.RWMutex
	jid           *jid.JID
	authenticated bool
	sessStarted   bool
	presence      *xmpp.Presence
}

func newStream(config *streamConfig, mods *module.Modules, r *router.Router, verifier auth.Verifier) *inStream {
	sessID := uuid.New()
	s := &inStream{
		cfg:      config,
		router:   r,
		mods:     mods,
		sessID:   sessID,
		runQueue: runqueue.New("c2s:" + sessID),
	}
	j, _ := jid.New("", config.domain, "", true)
	s.setJID(j)

	s.authr = auth.NewPlain(s, verifier)

	s.sess = session.New(sessID, &session.Config{
		JID:           s.JID(),
		Transport:     config.transport,
		MaxStanzaSize: config.maxStanzaSize,
		LocalDomain:   config.domain,
	})
	if config.connectTimeout > 0 {
		s.connectTm = time.AfterFunc(config.connectTimeout, s.connectTimeout)
	}
	go s.doRead() // start reading...

	return s
}

// ID returns the stream identifier. The identifier is assigned at the
// moment the stream becomes online and is zero before that.
func (s *inStream) ID() uint64 {
	return atomic.LoadUint64(&s.id)
}

// Username returns current stream username.
func (s *inStream) Username() string {
	return s.JID().Node()
}

// Domain returns current stream domain.
func (s *inStream) Domain() string {
	return s.JID().Domain()
}

// Resource returns current stream resource.
func (s *inStream) Resource() string {
	return s.JID().Resource()
}

// JID returns current user JID.
func (s *inStream) JID() *jid.JID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jid
}

// IsAuthenticated returns whether or not the XMPP stream
// has successfully authenticated.
func (s *inStream) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// Presence returns last sent presence element.
func (s *inStream) Presence() *xmpp.Presence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.presence
}

// SendElement writes an XMPP element to the stream.
func (s *inStream) SendElement(elem xmpp.XElement) {
	if s.getState() == closed {
		return
	}
	s.runQueue.Run(func() { s.writeElement(elem) })
}

// Disconnect disconnects remote peer by closing
// the underlying TCP socket connection.
func (s *inStream) Disconnect(err error) {
	if s.getState() == closed {
		return
	}
	waitCh := make(chan struct{})
	accepted := s.runQueue.Run(func() {
		s.disconnect(err)
		close(waitCh)
	})
	if !accepted {
		// a concurrent close already released the stream
		return
	}
	<-waitCh
}

func (s *inStream) connectTimeout() {
	s.runQueue.Run(func() { s.disconnect(streamerror.ErrConnectionTimeout) })
}

func (s *inStream) handleElement(elem xmpp.XElement) {
	switch s.getState() {
	case connecting:
		s.handleConnecting(elem)
	case authenticating:
		s.handleAuthenticating(elem)
	case binding:
		s.handleBinding(elem)
	case online:
		s.handleOnline(elem)
	}
}

func (s *inStream) handleConnecting(_ xmpp.XElement) {
	// cancel connection timeout timer
	if s.connectTm != nil {
		s.connectTm.Stop()
		s.connectTm = nil
	}
	s.sess.SetJID(s.JID())
	_ = s.sess.Open()

	features := xmpp.NewElementName("stream:features")
	features.SetAttribute("xmlns:stream", streamNamespace)
	features.SetAttribute("version", "1.0")

	if !s.IsAuthenticated() {
		mechanisms := xmpp.NewElementNamespace("mechanisms", saslNamespace)
		mechanism := xmpp.NewElementName("mechanism")
		mechanism.SetText(s.authr.Mechanism())
		mechanisms.AppendElement(mechanism)
		features.AppendElement(mechanisms)
		s.setState(authenticating)
	} else {
		bind := xmpp.NewElementNamespace("bind", bindNamespace)
		bind.AppendElement(xmpp.NewElementName("required"))
		features.AppendElement(bind)

		sessElem := xmpp.NewElementNamespace("session", sessionNamespace)
		features.AppendElement(sessElem)
		s.setState(binding)
	}
	s.writeElement(features)
}

func (s *inStream) handleAuthenticating(elem xmpp.XElement) {
	switch elem.Name() {
	case "auth":
		s.startAuthentication(elem)

	case "iq":
		iq := elem.(*xmpp.IQ)
		if iq.Elements().ChildNamespace("query", registerNamespace) != nil {
			// in-band registration is disabled
			s.writeElement(iq.NotAllowedError())
			return
		}
		s.writeElement(iq.ServiceUnavailableError())

	case "message", "presence":
		s.disconnectWithStreamError(streamerror.ErrNotAuthorized)

	default:
		s.disconnectWithStreamError(streamerror.ErrUnsupportedStanzaType)
	}
}

func (s *inStream) startAuthentication(elem xmpp.XElement) {
	if elem.Namespace() != saslNamespace {
		s.disconnectWithStreamError(streamerror.ErrInvalidNamespace)
		return
	}
	if elem.Attributes().Get("mechanism") != s.authr.Mechanism() {
		failure := xmpp.NewElementNamespace("failure", saslNamespace)
		failure.AppendElement(xmpp.NewElementName("invalid-mechanism"))
		s.writeElement(failure)
		return
	}
	err := s.authr.ProcessElement(context.Background(), elem)
	if saslErr, ok := err.(*auth.SASLError); ok {
		s.failAuthentication(saslErr.Element())
		return
	} else if err != nil {
		log.Error(err)
		s.failAuthentication(auth.ErrSASLTemporaryAuthFailure.(*auth.SASLError).Element())
		return
	}
	if s.authr.Authenticated() {
		s.finishAuthentication(s.authr.Username())
	}
}

func (s *inStream) finishAuthentication(username string) {
	j, _ := jid.New(username, s.Domain(), "", true)
	s.setJID(j)
	s.setAuthenticated(true)
	s.authr.Reset()

	// expect a new stream header
	s.sess.Restart()
	s.setState(connecting)
}

func (s *inStream) failAuthentication(elem xmpp.XElement) {
	failure := xmpp.NewElementNamespace("failure", saslNamespace)
	failure.AppendElement(elem)
	s.writeElement(failure)

	s.authr.Reset()
}

func (s *inStream) handleBinding(elem xmpp.XElement) {
	iq, ok := elem.(*xmpp.IQ)
	if !ok || !iq.IsSet() {
		s.disconnectWithStreamError(streamerror.ErrUnsupportedStanzaType)
		return
	}
	bind := iq.Elements().ChildNamespace("bind", bindNamespace)
	if bind == nil {
		s.writeElement(iq.NotAllowedError())
		return
	}
	var resource string
	if resourceElem := bind.Elements().Child("resource"); resourceElem != nil {
		resource = resourceElem.Text()
	} else {
		resource = uuid.New()
	}
	// override conflicting resources with a server-generated resourcepart
	for _, stm := range s.router.UserStreams(s.Username()) {
		if stm.Resource() == resource {
			resource = uuid.New()
			break
		}
	}
	userJID, err := jid.New(s.Username(), s.Domain(), resource, false)
	if err != nil {
		s.writeElement(iq.BadRequestError())
		return
	}
	s.setJID(userJID)
	s.sess.SetJID(userJID)

	s.mu.Lock()
	s.presence = xmpp.NewPresence(userJID, userJID, xmpp.UnavailableType)
	s.mu.Unlock()

	if !s.cfg.onOnline(s) {
		// server is shutting down
		s.disconnectClosingSession(true, false)
		return
	}
	s.setState(online)

	//...notify successful binding
	result := xmpp.NewIQType(iq.ID(), xmpp.ResultType)
	result.SetNamespace(iq.Namespace())

	boundElem := xmpp.NewElementNamespace("bind", bindNamespace)
	j := xmpp.NewElementName("jid")
	j.SetText(s.Username() + "@" + s.Domain() + "/" + s.Resource())
	boundElem.AppendElement(j)
	result.AppendElement(boundElem)

	s.writeElement(result)
}

func (s *inStream) handleOnline(elem xmpp.XElement) {
	stanza, ok := elem.(xmpp.Stanza)
	if !ok {
		s.disconnectWithStreamError(streamerror.ErrUnsupportedStanzaType)
		return
	}
	switch stanza := stanza.(type) {
	case *xmpp.IQ:
		s.processIQ(stanza)
	case *xmpp.Presence:
		s.processPresence(stanza)
	case *xmpp.Message:
		s.mods.ProcessMessage(context.Background(), stanza, s)
	}
}

func (s *inStream) processIQ(iq *xmpp.IQ) {
	// handle session establishment
	if iq.IsSet() && iq.Elements().ChildNamespace("session", sessionNamespace) != nil {
		if !s.isSessionStarted() {
			s.setSessionStarted(true)
			s.writeElement(iq.ResultIQ())
		} else {
			s.writeElement(iq.NotAllowedError())
		}
		return
	}
	toJID := iq.ToJID()
	if toJID.IsFullWithUser() && !s.JID().Matches(toJID, jid.MatchesFull) {
		if err := s.router.Route(iq); err != nil {
			s.writeElement(iq.ServiceUnavailableError())
		}
		return
	}
	s.mods.ProcessIQ(context.Background(), iq, s)
}

func (s *inStream) processPresence(presence *xmpp.Presence) {
	if presence.ToJID().IsFullWithUser() {
		_ = s.router.Route(presence)
		return
	}
	// update presence when addressed to ourselves
	if s.JID().Matches(presence.ToJID(), jid.MatchesBare) && (presence.IsAvailable() || presence.IsUnavailable()) {
		s.mu.Lock()
		s.presence = presence
		s.mu.Unlock()
	}
}

// Runs on its own goroutine
func (s *inStream) doRead() {
	elem, sErr := s.sess.Receive()
	if sErr == nil {
		s.runQueue.Run(func() { s.readElement(elem) })
	} else {
		s.runQueue.Run(func() {
			if s.getState() == closed {
				return
			}
			s.handleSessionError(sErr)
		})
	}
}

func (s *inStream) handleSessionError(sErr *session.Error) {
	switch err := sErr.UnderlyingErr.(type) {
	case nil:
		s.disconnect(nil)
	case *streamerror.Error:
		s.disconnectWithStreamError(err)
	case *xmpp.StanzaError:
		s.writeStanzaErrorResponse(sErr.Element, err)
	default:
		log.Error(err)
		s.disconnectWithStreamError(streamerror.ErrUndefinedCondition)
	}
}

func (s *inStream) writeStanzaErrorResponse(elem xmpp.XElement, stanzaErr *xmpp.StanzaError) {
	resp := xmpp.NewElementFromElement(elem)
	resp.SetType(xmpp.ErrorType)
	resp.SetFrom(resp.To())
	resp.SetTo(s.JID().String())
	resp.AppendElement(stanzaErr.Element())
	s.writeElement(resp)
}

func (s *inStream) writeElement(elem xmpp.XElement) {
	s.sess.Send(elem)
}

func (s *inStream) readElement(elem xmpp.XElement) {
	if elem != nil {
		s.handleElement(elem)
	}
	if s.getState() != closed {
		go s.doRead() // keep reading...
	}
}

func (s *inStream) disconnect(err error) {
	if s.getState() == closed {
		return
	}
	switch err {
	case nil:
		s.disconnectClosingSession(false, true)
	default:
		if stmErr, ok := err.(*streamerror.Error); ok {
			s.disconnectWithStreamError(stmErr)
		} else {
			log.Error(err)
			s.disconnectClosingSession(false, true)
		}
	}
}

func (s *inStream) disconnectWithStreamError(err *streamerror.Error) {
	if s.getState() == connecting {
		_ = s.sess.Open()
	}
	s.writeElement(err.Element())

	unregister := err != streamerror.ErrSystemShutdown
	s.disconnectClosingSession(true, unregister)
}

func (s *inStream) disconnectClosingSession(closeSession, unbind bool) {
	// concurrent close requests collapse into a single release
	if !s.transitionClosing() {
		return
	}
	if closeSession {
		_ = s.sess.Close()
	}
	if unbind {
		s.router.Unbind(s.JID())
	}
	s.setState(closed)
	_ = s.cfg.transport.Close()

	s.runQueue.Stop(nil) // stop processing messages
}

func (s *inStream) transitionClosing() bool {
	for {
		state := s.getState()
		if state == closing || state == closed {
			return false
		}
		if atomic.CompareAndSwapUint32(&s.state, state, closing) {
			return true
		}
	}
}

func (s *inStream) isSessionStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessStarted
}

func (s *inStream) setSessionStarted(sessStarted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessStarted = sessStarted
}

func (s *inStream) setJID(j *jid.JID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jid = j
}

func (s *inStream) setAuthenticated(authenticated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = authenticated
}

func (s *inStream) setState(state uint32) {
	atomic.StoreUint32(&s.state, state)
}

func (s *inStream) getState() uint32 {
	return atomic.LoadUint32(&s.state)
}
