/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package session

import (
	stdxml "encoding/xml"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pborman/uuid"
	"github.com/pkg/errors"

	"github.com/wren-im/wren/log"
	"github.com/wren-im/wren/streamerror"
	"github.com/wren-im/wren/transport"
	"github.com/wren-im/wren/xmpp"
	"github.com/wren-im/wren/xmpp/jid"
)

const (
	jabberClientNamespace = "jabber:client"
	streamNamespace       = "http://etherx.jabber.org/streams"
)

type namespaceSettable interface {
	SetNamespace(string) *xmpp.Element
}

// Error represents a session error.
type Error struct {
	// Element returns the original incoming element that generated
	// the session error.
	Element xmpp.XElement

	// UnderlyingErr is the underlying session error.
	UnderlyingErr error
}

// A Config structure is used to configure an XMPP session.
type Config struct {
	// JID defines an initial session JID.
	JID *jid.JID

	// Transport provides the underlying session transport
	// that will be used to send and received elements.
	Transport transport.Transport

	// MaxStanzaSize defines the maximum stanza size that
	// can be read from the session transport.
	MaxStanzaSize int

	// LocalDomain represents the serving entity domain name.
	LocalDomain string

	// RemoteDomain represents the remote receiving entity domain name.
	RemoteDomain string

	// IsInitiating defines whether or not this is an initiating
	// entity session.
	IsInitiating bool
}

// Session represents an XMPP session between two peers.
type Session struct {
	id            string
	tr            transport.Transport
	pr            *xmpp.Parser
	maxStanzaSize int
	localDomain   string
	remoteDomain  string
	isInitiating  bool
	opened        uint32
	started       uint32

	mu       sync.RWMutex
	streamID string
	sJID     *jid.JID
}

// New creates a new session instance.
func New(id string, config *Config) *Session {
	s := &Session{
		id:            id,
		tr:            config.Transport,
		pr:            xmpp.NewParser(config.Transport, xmpp.SocketStream, config.MaxStanzaSize),
		maxStanzaSize: config.MaxStanzaSize,
		localDomain:   config.LocalDomain,
		remoteDomain:  config.RemoteDomain,
		isInitiating:  config.IsInitiating,
		sJID:          config.JID,
	}
	if !s.isInitiating {
		s.streamID = uuid.New()
	}
	return s
}

// StreamID returns session stream identifier.
func (s *Session) StreamID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streamID
}

// SetJID updates current session JID.
func (s *Session) SetJID(sessionJID *jid.JID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sJID = sessionJID
}

// Open initializes the session sending the proper XMPP payload.
func (s *Session) Open() error {
	if !atomic.CompareAndSwapUint32(&s.opened, 0, 1) {
		return errors.New("session already opened")
	}
	ops := xmpp.NewElementName("stream:stream")
	ops.SetAttribute("xmlns", jabberClientNamespace)
	ops.SetAttribute("xmlns:stream", streamNamespace)

	buf := &strings.Builder{}
	buf.WriteString(`<?xml version="1.0"?>`)

	if !s.isInitiating {
		s.mu.RLock()
		ops.SetAttribute("id", s.streamID)
		s.mu.RUnlock()
		ops.SetAttribute("from", s.localDomain)
	} else {
		ops.SetAttribute("to", s.remoteDomain)
	}
	ops.SetAttribute("version", "1.0")
	ops.ToXML(buf, false)

	openStr := buf.String()
	log.Debugf("SEND(%s): %s", s.id, openStr)

	_, err := io.Copy(s.tr, strings.NewReader(openStr))
	return err
}

// Close closes session sending the proper XMPP payload.
// Is responsibility of the caller to close underlying transport.
func (s *Session) Close() error {
	if atomic.LoadUint32(&s.opened) == 0 {
		return errors.New("session already closed")
	}
	io.WriteString(s.tr, "</stream:stream>")
	return nil
}

// Send writes an XML element to the underlying session transport.
func (s *Session) Send(elem xmpp.XElement) {
	// clear namespace if sending a stanza
	if e, ok := elem.(namespaceSettable); elem.IsStanza() && ok {
		e.SetNamespace("")
	}
	log.Debugf("SEND(%s): %v", s.id, elem)
	elem.ToXML(s.tr, true)
}

// Receive returns next incoming session element.
func (s *Session) Receive() (xmpp.XElement, *Error) {
	elem, err := s.pr.ParseElement()
	if err != nil {
		return nil, s.mapErrorToSessionError(err)
	} else if elem != nil {
		log.Debugf("RECV(%s): %v", s.id, elem)

		if atomic.LoadUint32(&s.started) == 0 {
			if err := s.validateStreamElement(elem); err != nil {
				return nil, err
			}
			if s.isInitiating {
				s.mu.Lock()
				s.streamID = elem.ID()
				s.mu.Unlock()
			}
			atomic.StoreUint32(&s.started, 1)

		} else if elem.IsStanza() {
			stanza, err := s.buildStanza(elem)
			if err != nil {
				return nil, err
			}
			return stanza, nil
		}
	}
	return elem, nil
}

// Restart prepares the session to expect a new stream header.
// It is invoked once authentication completes.
func (s *Session) Restart() {
	atomic.StoreUint32(&s.opened, 0)
	atomic.StoreUint32(&s.started, 0)
	s.pr = xmpp.NewParser(s.tr, xmpp.SocketStream, s.maxStanzaSize)
}

func (s *Session) buildStanza(elem xmpp.XElement) (xmpp.Stanza, *Error) {
	if err := s.validateNamespace(elem); err != nil {
		return nil, err
	}
	fromJID, toJID, err := s.extractAddresses(elem)
	if err != nil {
		return nil, err
	}
	switch elem.Name() {
	case xmpp.IQName:
		iq, err := xmpp.NewIQFromElement(elem, fromJID, toJID)
		if err != nil {
			log.Error(err)
			return nil, &Error{Element: elem, UnderlyingErr: xmpp.ErrBadRequest}
		}
		return iq, nil

	case xmpp.PresenceName:
		presence, err := xmpp.NewPresenceFromElement(elem, fromJID, toJID)
		if err != nil {
			log.Error(err)
			return nil, &Error{Element: elem, UnderlyingErr: xmpp.ErrBadRequest}
		}
		return presence, nil

	case xmpp.MessageName:
		message, err := xmpp.NewMessageFromElement(elem, fromJID, toJID)
		if err != nil {
			log.Error(err)
			return nil, &Error{Element: elem, UnderlyingErr: xmpp.ErrBadRequest}
		}
		return message, nil
	}
	return nil, &Error{UnderlyingErr: streamerror.ErrUnsupportedStanzaType}
}

func (s *Session) extractAddresses(elem xmpp.XElement) (*jid.JID, *jid.JID, *Error) {
	var fromJID, toJID *jid.JID
	var err error

	from := elem.From()
	if !s.isInitiating {
		// do not validate 'from' address until full user JID has been set
		if s.jid().IsFullWithUser() {
			if len(from) > 0 && !s.isValidFrom(from) {
				return nil, nil, &Error{UnderlyingErr: streamerror.ErrInvalidFrom}
			}
		}
		fromJID = s.jid()
	} else {
		fromJID, err = jid.NewWithString(from, false)
		if err != nil {
			return nil, nil, &Error{Element: elem, UnderlyingErr: xmpp.ErrJidMalformed}
		}
	}

	// validate 'to' address
	to := elem.To()
	if len(to) > 0 {
		toJID, err = jid.NewWithString(elem.To(), false)
		if err != nil {
			return nil, nil, &Error{Element: elem, UnderlyingErr: xmpp.ErrJidMalformed}
		}
	} else {
		toJID = s.jid().ToBareJID() // account's bare JID as default 'to'
	}
	return fromJID, toJID, nil
}

func (s *Session) isValidFrom(from string) bool {
	validFrom := false
	j, err := jid.NewWithString(from, false)
	if err == nil && j != nil {
		node := j.Node()
		domain := j.Domain()
		resource := j.Resource()

		validFrom = node == s.jid().Node() && domain == s.jid().Domain()
		if len(resource) > 0 {
			validFrom = validFrom && resource == s.jid().Resource()
		}
	}
	return validFrom
}

func (s *Session) validateStreamElement(elem xmpp.XElement) *Error {
	if elem.Name() != "stream:stream" {
		return &Error{UnderlyingErr: streamerror.ErrUnsupportedStanzaType}
	}
	if elem.Namespace() != jabberClientNamespace || elem.Attributes().Get("xmlns:stream") != streamNamespace {
		return &Error{UnderlyingErr: streamerror.ErrInvalidNamespace}
	}
	if !s.isInitiating {
		to := elem.To()
		if len(to) > 0 && to != s.localDomain {
			return &Error{UnderlyingErr: streamerror.ErrHostUnknown}
		}
	}
	if elem.Version() != "1.0" {
		return &Error{UnderlyingErr: streamerror.ErrUnsupportedVersion}
	}
	return nil
}

func (s *Session) validateNamespace(elem xmpp.XElement) *Error {
	ns := elem.Namespace()
	if len(ns) == 0 || ns == jabberClientNamespace {
		return nil
	}
	return &Error{UnderlyingErr: streamerror.ErrInvalidNamespace}
}

func (s *Session) jid() *jid.JID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sJID
}

func (s *Session) mapErrorToSessionError(err error) *Error {
	switch err {
	case nil, io.EOF, io.ErrUnexpectedEOF:
		break

	case xmpp.ErrStreamClosedByPeer:
		s.Close()

	case xmpp.ErrTooLargeStanza:
		return &Error{UnderlyingErr: streamerror.ErrPolicyViolation}

	default:
		switch e := err.(type) {
		case net.Error:
			if e.Timeout() {
				return &Error{UnderlyingErr: streamerror.ErrConnectionTimeout}
			}
			return &Error{UnderlyingErr: err}
		case *stdxml.SyntaxError:
			return &Error{UnderlyingErr: streamerror.ErrInvalidXML}
		default:
			return &Error{UnderlyingErr: err}
		}
	}
	return &Error{}
}
