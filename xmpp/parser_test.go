/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package xmpp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSimpleElement(t *testing.T) {
	p := NewParser(strings.NewReader(`<presence from="a@example.org" to="b@example.org"/>`), DefaultMode, 0)
	el, err := p.ParseElement()
	require.Nil(t, err)
	require.Equal(t, "presence", el.Name())
	require.Equal(t, "a@example.org", el.From())
}

func TestParseNestedElements(t *testing.T) {
	docSrc := `<iq type="get" id="iq1"><query xmlns="http://jabber.org/protocol/disco#info"/></iq>`
	p := NewParser(strings.NewReader(docSrc), DefaultMode, 0)
	el, err := p.ParseElement()
	require.Nil(t, err)
	require.Equal(t, "iq", el.Name())
	q := el.Elements().Child("query")
	require.NotNil(t, q)
	require.Equal(t, "http://jabber.org/protocol/disco#info", q.Namespace())
}

func TestParseStreamHeader(t *testing.T) {
	docSrc := `<?xml version="1.0"?><stream:stream xmlns:stream="http://etherx.jabber.org/streams" version="1.0" xmlns="jabber:client" to="example.org" xml:lang="en" xmlns:xml="http://www.w3.org/XML/1998/namespace">`
	p := NewParser(strings.NewReader(docSrc), SocketStream, 0)

	el, err := p.ParseElement()
	require.Nil(t, err)
	require.Nil(t, el) // proc inst

	el, err = p.ParseElement()
	require.Nil(t, err)
	require.NotNil(t, el)
	require.Equal(t, "stream:stream", el.Name())
	require.Equal(t, "example.org", el.To())
}

func TestParseStreamClosedByPeer(t *testing.T) {
	docSrc := `</stream:stream>`
	p := NewParser(strings.NewReader(docSrc), SocketStream, 0)
	_, err := p.ParseElement()
	require.Equal(t, ErrStreamClosedByPeer, err)
}

func TestParseTooLargeStanza(t *testing.T) {
	docSrc := `<message><body>` + strings.Repeat("A", 4096) + `</body></message>`
	p := NewParser(strings.NewReader(docSrc), DefaultMode, 256)
	_, err := p.ParseElement()
	require.Equal(t, ErrTooLargeStanza, err)
}
