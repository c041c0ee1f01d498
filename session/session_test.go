/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package session

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wren-im/wren/streamerror"
	"github.com/wren-im/wren/transport"
	"github.com/wren-im/wren/xmpp"
	"github.com/wren-im/wren/xmpp/jid"
)

func newTestSession(t *testing.T, isInitiating bool) (*Session, net.Conn) {
	c1, c2 := net.Pipe()
	j, _ := jid.New("", "example.org", "", true)
	s := New("sess-1", &Config{
		JID:           j,
		Transport:     transport.NewSocketTransport(c1, time.Minute),
		MaxStanzaSize: 32768,
		LocalDomain:   "example.org",
		RemoteDomain:  "example.org",
		IsInitiating:  isInitiating,
	})
	return s, c2
}

func readAll(conn net.Conn) string {
	buf := make([]byte, 4096)
	n, _ := conn.Read(buf)
	return string(buf[:n])
}

func TestSessionOpenReceiving(t *testing.T) {
	s, peer := newTestSession(t, false)

	readCh := make(chan string, 1)
	go func() { readCh <- readAll(peer) }()

	require.Nil(t, s.Open())
	hdr := <-readCh
	require.True(t, strings.HasPrefix(hdr, `<?xml version="1.0"?><stream:stream`))
	require.Contains(t, hdr, `from="example.org"`)
	require.Contains(t, hdr, `version="1.0"`)
	require.Contains(t, hdr, `id="`+s.StreamID()+`"`)

	// second open must fail
	require.NotNil(t, s.Open())
}

func TestSessionOpenInitiating(t *testing.T) {
	s, peer := newTestSession(t, true)

	readCh := make(chan string, 1)
	go func() { readCh <- readAll(peer) }()

	require.Nil(t, s.Open())
	hdr := <-readCh
	require.Contains(t, hdr, `to="example.org"`)
	require.NotContains(t, hdr, `id="`)
}

func TestSessionReceiveStreamHeader(t *testing.T) {
	s, peer := newTestSession(t, false)

	go func() {
		peer.Write([]byte(`<?xml version="1.0"?><stream:stream xmlns="jabber:client" xmlns:stream="http://etherx.jabber.org/streams" to="example.org" version="1.0">`))
	}()

	// proc inst
	elem, sErr := s.Receive()
	require.Nil(t, sErr)
	require.Nil(t, elem)

	elem, sErr = s.Receive()
	require.Nil(t, sErr)
	require.NotNil(t, elem)
	require.Equal(t, "stream:stream", elem.Name())
}

func TestSessionReceiveInvalidNamespace(t *testing.T) {
	s, peer := newTestSession(t, false)

	go func() {
		peer.Write([]byte(`<stream:stream xmlns="jabber:wrong" xmlns:stream="http://etherx.jabber.org/streams" version="1.0">`))
	}()

	_, sErr := s.Receive()
	require.NotNil(t, sErr)
	require.Equal(t, streamerror.ErrInvalidNamespace, sErr.UnderlyingErr)
}

func TestSessionReceiveUnknownHost(t *testing.T) {
	s, peer := newTestSession(t, false)

	go func() {
		peer.Write([]byte(`<stream:stream xmlns="jabber:client" xmlns:stream="http://etherx.jabber.org/streams" to="unknown.org" version="1.0">`))
	}()

	_, sErr := s.Receive()
	require.NotNil(t, sErr)
	require.Equal(t, streamerror.ErrHostUnknown, sErr.UnderlyingErr)
}

func TestSessionBuildStanza(t *testing.T) {
	s, peer := newTestSession(t, false)

	go func() {
		peer.Write([]byte(`<stream:stream xmlns="jabber:client" xmlns:stream="http://etherx.jabber.org/streams" to="example.org" version="1.0">`))
		peer.Write([]byte(`<iq type="get" id="iq1"><query xmlns="http://jabber.org/protocol/disco#info"/></iq>`))
		peer.Write([]byte(`<iq type="get"><query xmlns="jabber:iq:roster"/></iq>`))
	}()

	_, sErr := s.Receive() // stream header
	require.Nil(t, sErr)

	elem, sErr := s.Receive()
	require.Nil(t, sErr)
	iq, ok := elem.(*xmpp.IQ)
	require.True(t, ok)
	require.Equal(t, "iq1", iq.ID())

	// malformed iq (missing id) maps to bad request
	_, sErr = s.Receive()
	require.NotNil(t, sErr)
	require.Equal(t, xmpp.ErrBadRequest, sErr.UnderlyingErr)
}
