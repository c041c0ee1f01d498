/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package router

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wren-im/wren/xmpp"
	"github.com/wren-im/wren/xmpp/jid"
)

type fakeC2S struct {
	id      uint64
	jd      *jid.JID
	elems   []xmpp.XElement
	discErr error
}

func newFakeC2S(id uint64, jidStr string) *fakeC2S {
	j, _ := jid.NewWithString(jidStr, true)
	return &fakeC2S{id: id, jd: j}
}

func (s *fakeC2S) ID() uint64                     { return s.id }
func (s *fakeC2S) Username() string               { return s.jd.Node() }
func (s *fakeC2S) Domain() string                 { return s.jd.Domain() }
func (s *fakeC2S) Resource() string               { return s.jd.Resource() }
func (s *fakeC2S) JID() *jid.JID                  { return s.jd }
func (s *fakeC2S) IsAuthenticated() bool          { return true }
func (s *fakeC2S) Presence() *xmpp.Presence       { return nil }
func (s *fakeC2S) SendElement(elem xmpp.XElement) { s.elems = append(s.elems, elem) }
func (s *fakeC2S) Disconnect(err error)           { s.discErr = err }

func TestRouterBindAndUnbind(t *testing.T) {
	r := New("example.org")

	stm1 := newFakeC2S(1, "ortuman@example.org/balcony")
	stm2 := newFakeC2S(2, "ortuman@example.org/yard")
	r.Bind(stm1)
	r.Bind(stm2)

	require.Equal(t, 2, len(r.UserStreams("ortuman")))

	r.Unbind(stm1.JID())
	require.Equal(t, 1, len(r.UserStreams("ortuman")))

	r.Unbind(stm2.JID())
	require.Equal(t, 0, len(r.UserStreams("ortuman")))
}

func TestRouterStreamsSnapshot(t *testing.T) {
	r := New("example.org")

	// bind out of identifier order
	r.Bind(newFakeC2S(3, "a@example.org/r3"))
	r.Bind(newFakeC2S(1, "b@example.org/r1"))
	r.Bind(newFakeC2S(2, "c@example.org/r2"))

	snapshot := r.Streams()
	require.Equal(t, 3, len(snapshot))
	require.Equal(t, uint64(1), snapshot[0].ID())
	require.Equal(t, uint64(2), snapshot[1].ID())
	require.Equal(t, uint64(3), snapshot[2].ID())

	// mutating the registry must not mutate a taken snapshot
	r.Unbind(snapshot[0].JID())
	require.Equal(t, 3, len(snapshot))
	require.Equal(t, 2, len(r.Streams()))
}

func newTestMessage(from, to string) *xmpp.Message {
	fromJID, _ := jid.NewWithString(from, true)
	toJID, _ := jid.NewWithString(to, true)
	elem := xmpp.NewElementName("message").SetType(xmpp.ChatType)
	msg, _ := xmpp.NewMessageFromElement(elem, fromJID, toJID)
	return msg
}

func TestRouterRoute(t *testing.T) {
	r := New("example.org")

	stm1 := newFakeC2S(1, "noelia@example.org/balcony")
	stm2 := newFakeC2S(2, "noelia@example.org/yard")
	r.Bind(stm1)
	r.Bind(stm2)

	// full jid routing
	msg := newTestMessage("ortuman@example.org/garden", "noelia@example.org/yard")
	require.Nil(t, r.Route(msg))
	require.Equal(t, 0, len(stm1.elems))
	require.Equal(t, 1, len(stm2.elems))

	msg = newTestMessage("ortuman@example.org/garden", "noelia@example.org/basement")
	require.Equal(t, ErrResourceNotFound, r.Route(msg))

	// bare jid fan out
	msg = newTestMessage("ortuman@example.org/garden", "noelia@example.org")
	require.Nil(t, r.Route(msg))
	require.Equal(t, 1, len(stm1.elems))
	require.Equal(t, 2, len(stm2.elems))

	// offline user
	msg = newTestMessage("ortuman@example.org/garden", "ghost@example.org")
	require.Equal(t, ErrNotOnline, r.Route(msg))

	// remote domain
	msg = newTestMessage("ortuman@example.org/garden", "noelia@jabber.org")
	require.Equal(t, ErrUnknownDomain, r.Route(msg))
}

func TestRouterBindDuplicateResource(t *testing.T) {
	r := New("example.org")

	stm1 := newFakeC2S(1, "ortuman@example.org/balcony")
	stm2 := newFakeC2S(2, "ortuman@example.org/balcony")
	r.Bind(stm1)
	r.Bind(stm2)

	// the duplicate resource is skipped entirely
	require.Equal(t, 1, len(r.UserStreams("ortuman")))
	require.Equal(t, 1, len(r.Streams()))

	// unbinding the survivor leaves no dangling identifier entry
	r.Unbind(stm1.JID())
	require.Equal(t, 0, len(r.UserStreams("ortuman")))
	require.Equal(t, 0, len(r.Streams()))
}
