/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package client

import (
	"encoding/base64"
	"sync"
	"sync/atomic"

	"github.com/pborman/uuid"
	"github.com/pkg/errors"

	"github.com/wren-im/wren/log"
	"github.com/wren-im/wren/runqueue"
	"github.com/wren-im/wren/session"
	"github.com/wren-im/wren/streamerror"
	"github.com/wren-im/wren/transport"
	"github.com/wren-im/wren/xmpp"
	"github.com/wren-im/wren/xmpp/jid"
)

const (
	outConnecting uint32 = iota
	outConnected
	outAuthenticating
	outBinding
	outOnline
	outClosing
	outClosed
)

const (
	saslNamespace = "urn:ietf:params:xml:ns:xmpp-sasl"
	bindNamespace = "urn:ietf:params:xml:ns:xmpp-bind"
)

type outConfig struct {
	transport     transport.Transport
	maxStanzaSize int
	username      string
	domain        string
	password      string
	resource      string

	// onOnline and onError complete the connect attempt. At-most-once
	// delivery is enforced by the owning client.
	onOnline func()
	onError  func(err error)

	// onClosed fires on every transition to closed, whatever the trigger.
	onClosed func()
}

type outStream struct {
	cfg           *outConfig
	sess          *session.Session
	sessID        string
	state         uint32
	authenticated uint32
	runQueue      *runqueue.RunQueue

	mu  sync.RWMutex
	jid *jid.JID
}

func newOutStream(config *outConfig) *outStream {
	sessID := uuid.New()
	s := &outStream{
		cfg:      config,
		sessID:   sessID,
		runQueue: runqueue.New("client:" + sessID),
	}
	j, _ := jid.New(config.username, config.domain, "", true)
	s.setJID(j)

	s.sess = session.New(sessID, &session.Config{
		JID:           s.JID(),
		Transport:     config.transport,
		MaxStanzaSize: config.maxStanzaSize,
		RemoteDomain:  config.domain,
		IsInitiating:  true,
	})
	return s
}

func (s *outStream) start() {
	go s.doRead() // start reading...
	s.runQueue.Run(func() { _ = s.sess.Open() })
}

// JID returns the current stream JID. The resource is attached once
// binding completes.
func (s *outStream) JID() *jid.JID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jid
}

func (s *outStream) isOnline() bool {
	return s.getState() == outOnline
}

// SendElement writes an XMPP element to the stream.
func (s *outStream) SendElement(elem xmpp.XElement) {
	if s.getState() == outClosed {
		return
	}
	s.runQueue.Run(func() { s.writeElement(elem) })
}

// close gracefully tears the stream down. It reports true exactly once
// per active-to-closed transition.
func (s *outStream) close() bool {
	state := s.getState()
	if state == outClosing || state == outClosed {
		return false
	}
	var ok bool
	waitCh := make(chan struct{})
	accepted := s.runQueue.Run(func() {
		ok = s.disconnectClosingSession(true)
		close(waitCh)
	})
	if !accepted {
		// a concurrent close already released the stream
		return false
	}
	<-waitCh
	return ok
}

// Runs on its own goroutine
func (s *outStream) doRead() {
	elem, sErr := s.sess.Receive()
	if sErr == nil {
		s.runQueue.Run(func() { s.readElement(elem) })
	} else {
		s.runQueue.Run(func() {
			if s.getState() == outClosed {
				return
			}
			s.handleSessionError(sErr)
		})
	}
}

func (s *outStream) readElement(elem xmpp.XElement) {
	if elem != nil {
		s.handleElement(elem)
	}
	if s.getState() != outClosed {
		go s.doRead() // keep reading...
	}
}

func (s *outStream) handleElement(elem xmpp.XElement) {
	switch s.getState() {
	case outConnecting:
		s.handleConnecting()
	case outConnected:
		s.handleConnected(elem)
	case outAuthenticating:
		s.handleAuthenticating(elem)
	case outBinding:
		s.handleBinding(elem)
	case outOnline:
		s.handleOnline(elem)
	}
}

func (s *outStream) handleConnecting() {
	// stream header received, features expected next
	s.setState(outConnected)
}

func (s *outStream) handleConnected(elem xmpp.XElement) {
	if elem.Name() != "stream:features" {
		s.terminate(streamerror.ErrUnsupportedStanzaType, errors.New("expected stream features"))
		return
	}
	if !s.isAuthenticated() {
		if !offersPlain(elem) {
			s.terminate(streamerror.ErrPolicyViolation, errors.New("PLAIN mechanism not offered"))
			return
		}
		s.setState(outAuthenticating)

		auth := xmpp.NewElementNamespace("auth", saslNamespace)
		auth.SetAttribute("mechanism", "PLAIN")
		auth.SetText(base64.StdEncoding.EncodeToString([]byte("\x00" + s.cfg.username + "\x00" + s.cfg.password)))
		s.writeElement(auth)
		return
	}
	// authenticated stream restarted, bind a resource
	s.setState(outBinding)

	resource := s.cfg.resource
	if len(resource) == 0 {
		resource = uuid.New()
	}
	iq := xmpp.NewIQType(uuid.New(), xmpp.SetType)
	bind := xmpp.NewElementNamespace("bind", bindNamespace)
	resourceElem := xmpp.NewElementName("resource")
	resourceElem.SetText(resource)
	bind.AppendElement(resourceElem)
	iq.AppendElement(bind)
	s.writeElement(iq)
}

func (s *outStream) handleAuthenticating(elem xmpp.XElement) {
	if elem.Namespace() != saslNamespace {
		s.terminate(streamerror.ErrInvalidNamespace, errors.New("invalid SASL namespace"))
		return
	}
	switch elem.Name() {
	case "success":
		atomic.StoreUint32(&s.authenticated, 1)
		s.sess.Restart()
		s.setState(outConnecting)
		_ = s.sess.Open()

	case "failure":
		reason := "not-authorized"
		if children := elem.Elements().All(); len(children) > 0 {
			reason = children[0].Name()
		}
		s.notifyError(errors.Errorf("authentication failed: %s", reason))
		s.disconnectClosingSession(true)

	default:
		s.terminate(streamerror.ErrUnsupportedStanzaType, errors.New("unexpected SASL element"))
	}
}

func (s *outStream) handleBinding(elem xmpp.XElement) {
	iq, ok := elem.(*xmpp.IQ)
	if !ok {
		s.terminate(streamerror.ErrUnsupportedStanzaType, errors.New("expected bind result"))
		return
	}
	if !iq.IsResult() {
		s.notifyError(errors.New("resource binding failed"))
		s.disconnectClosingSession(true)
		return
	}
	bound := iq.Elements().ChildNamespace("bind", bindNamespace)
	if bound == nil || bound.Elements().Child("jid") == nil {
		s.terminate(streamerror.ErrUnsupportedStanzaType, errors.New("malformed bind result"))
		return
	}
	boundJID, err := jid.NewWithString(bound.Elements().Child("jid").Text(), false)
	if err != nil {
		s.terminate(streamerror.ErrUndefinedCondition, err)
		return
	}
	s.setJID(boundJID)
	s.sess.SetJID(boundJID)
	s.setState(outOnline)

	if s.cfg.onOnline != nil {
		s.cfg.onOnline()
	}
}

func (s *outStream) handleOnline(elem xmpp.XElement) {
	// inbound stanzas are surfaced through logging only
	log.Debugf("RECV(%s): %v", s.sessID, elem)
}

func (s *outStream) handleSessionError(sErr *session.Error) {
	switch err := sErr.UnderlyingErr.(type) {
	case nil:
		s.notifyError(errors.New("connection closed by peer"))
		s.disconnectClosingSession(false)
	case *streamerror.Error:
		s.terminate(err, err)
	default:
		log.Error(err)
		s.notifyError(err)
		s.disconnectClosingSession(false)
	}
}

// terminate sends a stream level error and closes the stream.
func (s *outStream) terminate(streamErr *streamerror.Error, err error) {
	s.writeElement(streamErr.Element())
	s.notifyError(err)
	s.disconnectClosingSession(true)
}

func (s *outStream) notifyError(err error) {
	if s.cfg.onError != nil {
		s.cfg.onError(err)
	}
}

func (s *outStream) writeElement(elem xmpp.XElement) {
	s.sess.Send(elem)
}

func (s *outStream) disconnectClosingSession(closeSession bool) bool {
	// concurrent close requests collapse into a single release
	if !s.transitionClosing() {
		return false
	}
	if closeSession {
		_ = s.sess.Close()
	}
	s.setState(outClosed)
	_ = s.cfg.transport.Close()

	s.runQueue.Stop(nil) // stop processing messages

	if s.cfg.onClosed != nil {
		s.cfg.onClosed()
	}
	return true
}

func (s *outStream) transitionClosing() bool {
	for {
		state := s.getState()
		if state == outClosing || state == outClosed {
			return false
		}
		if atomic.CompareAndSwapUint32(&s.state, state, outClosing) {
			return true
		}
	}
}

func offersPlain(features xmpp.XElement) bool {
	mechanisms := features.Elements().ChildNamespace("mechanisms", saslNamespace)
	if mechanisms == nil {
		return false
	}
	for _, m := range mechanisms.Elements().All() {
		if m.Name() == "mechanism" && m.Text() == "PLAIN" {
			return true
		}
	}
	return false
}

func (s *outStream) isAuthenticated() bool {
	return atomic.LoadUint32(&s.authenticated) == 1
}

func (s *outStream) setJID(j *jid.JID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jid = j
}

func (s *outStream) setState(state uint32) {
	atomic.StoreUint32(&s.state, state)
}

func (s *outStream) getState() uint32 {
	return atomic.LoadUint32(&s.state)
}
