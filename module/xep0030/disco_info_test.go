/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package xep0030

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wren-im/wren/xmpp"
	"github.com/wren-im/wren/xmpp/jid"
)

type fakeC2S struct {
	elems []xmpp.XElement
}

func (s *fakeC2S) ID() uint64            { return 1 }
func (s *fakeC2S) Username() string      { return "romeo" }
func (s *fakeC2S) Domain() string        { return "example.org" }
func (s *fakeC2S) Resource() string      { return "balcony" }
func (s *fakeC2S) IsAuthenticated() bool { return true }

func (s *fakeC2S) JID() *jid.JID {
	j, _ := jid.New("romeo", "example.org", "balcony", true)
	return j
}

func (s *fakeC2S) Presence() *xmpp.Presence       { return nil }
func (s *fakeC2S) SendElement(elem xmpp.XElement) { s.elems = append(s.elems, elem) }
func (s *fakeC2S) Disconnect(err error)           {}

func newDiscoIQ(t *testing.T, namespace, to string) *xmpp.IQ {
	t.Helper()
	iq := xmpp.NewIQType("disco1", xmpp.GetType)
	iq.AppendElement(xmpp.NewElementNamespace("query", namespace))
	fromJID, err := jid.NewWithString("romeo@example.org/balcony", true)
	require.Nil(t, err)
	toJID, err := jid.NewWithString(to, true)
	require.Nil(t, err)
	iq.SetFromJID(fromJID)
	iq.SetToJID(toJID)
	return iq
}

func TestDiscoInfoMatching(t *testing.T) {
	x := New()

	iq := newDiscoIQ(t, discoInfoNamespace, "example.org")
	require.True(t, x.MatchesIQ(iq))

	iq = newDiscoIQ(t, "jabber:iq:version", "example.org")
	require.False(t, x.MatchesIQ(iq))
}

func TestDiscoInfoServerEntity(t *testing.T) {
	x := New()
	x.SetIdentities([]Identity{{Category: "server", Type: "im", Name: "wren"}})
	x.SetFeatures([]Feature{discoItemsNamespace, discoInfoNamespace})

	stm := &fakeC2S{}
	iq := newDiscoIQ(t, discoInfoNamespace, "example.org")
	x.ProcessIQ(context.Background(), iq, stm)

	require.Equal(t, 1, len(stm.elems))
	res := stm.elems[0]
	require.Equal(t, xmpp.ResultType, res.Type())

	q := res.Elements().Child("query")
	require.NotNil(t, q)

	identities := q.Elements().Children("identity")
	require.Equal(t, 1, len(identities))
	require.Equal(t, "server", identities[0].Attributes().Get("category"))
	require.Equal(t, "im", identities[0].Attributes().Get("type"))
	require.Equal(t, "wren", identities[0].Attributes().Get("name"))

	// features come out sorted
	features := q.Elements().Children("feature")
	require.Equal(t, 2, len(features))
	require.Equal(t, discoInfoNamespace, features[0].Attributes().Get("var"))
	require.Equal(t, discoItemsNamespace, features[1].Attributes().Get("var"))
}

func TestDiscoInfoAccountEntity(t *testing.T) {
	x := New()
	x.SetIdentities([]Identity{{Category: "server", Type: "im", Name: "wren"}})

	stm := &fakeC2S{}
	iq := newDiscoIQ(t, discoInfoNamespace, "juliet@example.org")
	x.ProcessIQ(context.Background(), iq, stm)

	require.Equal(t, 1, len(stm.elems))
	q := stm.elems[0].Elements().Child("query")
	require.NotNil(t, q)
	require.Equal(t, 0, q.Elements().Count())
}

func TestDiscoItems(t *testing.T) {
	x := New()
	x.SetItems([]Item{{Jid: "conference.example.org", Name: "Chatrooms"}})

	stm := &fakeC2S{}
	iq := newDiscoIQ(t, discoItemsNamespace, "example.org")
	x.ProcessIQ(context.Background(), iq, stm)

	require.Equal(t, 1, len(stm.elems))
	q := stm.elems[0].Elements().Child("query")
	require.NotNil(t, q)

	items := q.Elements().Children("item")
	require.Equal(t, 1, len(items))
	require.Equal(t, "conference.example.org", items[0].Attributes().Get("jid"))
	require.Equal(t, "Chatrooms", items[0].Attributes().Get("name"))
}
