/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wren-im/wren/xmpp"
)

func TestSocketTransport(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c2.Close()

	tr := NewSocketTransport(c1, time.Minute)
	require.Equal(t, Socket, tr.Type())
	require.Equal(t, "socket", tr.Type().String())

	readCh := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 512)
		n, _ := c2.Read(buf)
		readCh <- buf[:n]
	}()

	el := xmpp.NewElementName("presence")
	el.SetID("p1")
	require.Nil(t, tr.WriteElement(el, true))
	require.Equal(t, `<presence id="p1"/>`, string(<-readCh))

	go func() {
		buf := make([]byte, 512)
		n, _ := c2.Read(buf)
		readCh <- buf[:n]
	}()
	require.Nil(t, tr.WriteString("</stream:stream>"))
	require.Equal(t, "</stream:stream>", string(<-readCh))

	require.Nil(t, tr.Close())
}
