/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package c2s

import (
	"encoding/base64"
	"io"
	"io/ioutil"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wren-im/wren/auth"
	"github.com/wren-im/wren/module"
	"github.com/wren-im/wren/router"
	"github.com/wren-im/wren/streamerror"
	"github.com/wren-im/wren/transport"
	"github.com/wren-im/wren/xmpp"
)

type testClient struct {
	conn net.Conn
	pr   *xmpp.Parser
}

func (c *testClient) send(t *testing.T, payload string) {
	t.Helper()
	_, err := c.conn.Write([]byte(payload))
	require.Nil(t, err)
}

func (c *testClient) recv(t *testing.T) xmpp.XElement {
	t.Helper()
	for {
		elem, err := c.pr.ParseElement()
		require.Nil(t, err)
		if elem != nil {
			return elem
		}
	}
}

// restart discards the current parser after a stream restart.
func (c *testClient) restart() {
	c.pr = xmpp.NewParser(c.conn, xmpp.SocketStream, defaultMaxStanzaSize)
}

func (c *testClient) openStream(t *testing.T, domain string) {
	t.Helper()
	c.send(t, `<?xml version="1.0"?><stream:stream xmlns="jabber:client" xmlns:stream="http://etherx.jabber.org/streams" to="`+domain+`" version="1.0">`)

	hdr := c.recv(t)
	require.Equal(t, "stream:stream", hdr.Name())
}

type streamHarness struct {
	stm    *inStream
	rtr    *router.Router
	onined uint64
}

func newStreamHarness(t *testing.T, secret string, admit bool) (*streamHarness, *testClient) {
	t.Helper()
	srvConn, cliConn := net.Pipe()

	h := &streamHarness{rtr: router.New("example.org")}
	cfg := &streamConfig{
		transport:      transport.NewSocketTransport(srvConn, 0),
		connectTimeout: time.Minute,
		maxStanzaSize:  defaultMaxStanzaSize,
		domain:         "example.org",
		onOnline: func(stm *inStream) bool {
			if !admit {
				return false
			}
			atomic.StoreUint64(&stm.id, atomic.AddUint64(&h.onined, 1))
			h.rtr.Bind(stm)
			return true
		},
	}
	mods := module.New(&module.Config{}, h.rtr, nil)
	h.stm = newStream(cfg, mods, h.rtr, auth.NewSharedSecretVerifier(secret))

	cli := &testClient{conn: cliConn}
	cli.restart()
	return h, cli
}

func authPayload(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte("\x00" + username + "\x00" + password))
}

func authenticate(t *testing.T, cli *testClient, username, password string) xmpp.XElement {
	t.Helper()
	cli.openStream(t, "example.org")

	features := cli.recv(t)
	require.Equal(t, "stream:features", features.Name())
	require.NotNil(t, features.Elements().Child("mechanisms"))

	cli.send(t, `<auth xmlns="urn:ietf:params:xml:ns:xmpp-sasl" mechanism="PLAIN">`+authPayload(username, password)+`</auth>`)
	return cli.recv(t)
}

func bindResource(t *testing.T, cli *testClient, resource string) xmpp.XElement {
	t.Helper()
	cli.restart()
	cli.openStream(t, "example.org")

	features := cli.recv(t)
	require.Equal(t, "stream:features", features.Name())
	require.NotNil(t, features.Elements().Child("bind"))

	cli.send(t, `<iq type="set" id="bind1"><bind xmlns="urn:ietf:params:xml:ns:xmpp-bind"><resource>`+resource+`</resource></bind></iq>`)
	return cli.recv(t)
}

func TestInStreamHandshake(t *testing.T) {
	h, cli := newStreamHarness(t, "s3cr3t", true)

	success := authenticate(t, cli, "ortuman", "s3cr3t")
	require.Equal(t, "success", success.Name())

	result := bindResource(t, cli, "balcony")
	require.Equal(t, "iq", result.Name())
	require.Equal(t, xmpp.ResultType, result.Type())
	require.Equal(t, "bind1", result.ID())

	boundJID := result.Elements().Child("bind").Elements().Child("jid")
	require.NotNil(t, boundJID)
	require.Equal(t, "ortuman@example.org/balcony", boundJID.Text())

	require.True(t, h.stm.IsAuthenticated())
	require.Equal(t, "ortuman", h.stm.Username())
	require.Equal(t, uint64(1), h.stm.ID())
	require.Equal(t, 1, len(h.rtr.Streams()))
}

func TestInStreamBadCredentials(t *testing.T) {
	h, cli := newStreamHarness(t, "s3cr3t", true)

	failure := authenticate(t, cli, "ortuman", "wrong")
	require.Equal(t, "failure", failure.Name())
	require.NotNil(t, failure.Elements().Child("not-authorized"))

	require.False(t, h.stm.IsAuthenticated())
	require.Equal(t, 0, len(h.rtr.Streams()))

	// the stream accepts a retry with the right credential
	cli.send(t, `<auth xmlns="urn:ietf:params:xml:ns:xmpp-sasl" mechanism="PLAIN">`+authPayload("ortuman", "s3cr3t")+`</auth>`)
	success := cli.recv(t)
	require.Equal(t, "success", success.Name())
}

func TestInStreamRegistrationRejected(t *testing.T) {
	_, cli := newStreamHarness(t, "s3cr3t", true)

	cli.openStream(t, "example.org")
	_ = cli.recv(t) // features

	cli.send(t, `<iq type="set" id="reg1"><query xmlns="jabber:iq:register"><username>romeo</username></query></iq>`)
	resp := cli.recv(t)
	require.Equal(t, xmpp.ErrorType, resp.Type())
	require.NotNil(t, resp.Elements().Child("error"))
}

func TestInStreamAdmissionRejectedWhileStopping(t *testing.T) {
	h, cli := newStreamHarness(t, "s3cr3t", false)

	success := authenticate(t, cli, "ortuman", "s3cr3t")
	require.Equal(t, "success", success.Name())

	cli.restart()
	cli.openStream(t, "example.org")
	_ = cli.recv(t) // features

	// drain whatever the server writes while tearing down
	go func() { _, _ = io.Copy(ioutil.Discard, cli.conn) }()

	cli.send(t, `<iq type="set" id="bind1"><bind xmlns="urn:ietf:params:xml:ns:xmpp-bind"><resource>balcony</resource></bind></iq>`)

	// the stream is dropped without ever being registered
	require.Eventually(t, func() bool {
		return h.stm.getState() == closed
	}, time.Second, time.Millisecond*10)
	require.Equal(t, 0, len(h.rtr.Streams()))
	require.Equal(t, uint64(0), h.stm.ID())
}

func TestInStreamDispatch(t *testing.T) {
	h, cli := newStreamHarness(t, "s3cr3t", true)

	require.Equal(t, "success", authenticate(t, cli, "ortuman", "s3cr3t").Name())
	require.Equal(t, xmpp.ResultType, bindResource(t, cli, "balcony").Type())

	// disco#info towards the server entity
	cli.send(t, `<iq type="get" id="1" to="example.org"><query xmlns="http://jabber.org/protocol/disco#info"/></iq>`)
	res := cli.recv(t)
	require.Equal(t, xmpp.ResultType, res.Type())
	require.Equal(t, "1", res.ID())
	require.Equal(t, "example.org", res.From())

	q := res.Elements().Child("query")
	require.NotNil(t, q)
	require.Equal(t, "http://jabber.org/protocol/disco#info", q.Namespace())

	// unknown query namespace yields unexpected-request
	cli.send(t, `<iq type="get" id="2" to="example.org"><query xmlns="jabber:iq:private"/></iq>`)
	res = cli.recv(t)
	require.Equal(t, xmpp.ErrorType, res.Type())

	errEl := res.Elements().Child("error")
	require.NotNil(t, errEl)
	require.NotNil(t, errEl.Elements().Child("unexpected-request"))

	require.Equal(t, uint64(1), h.stm.ID())
}

func TestInStreamDisconnectAfterPeerClose(t *testing.T) {
	h, cli := newStreamHarness(t, "s3cr3t", true)
	defer func() { _ = cli.conn.Close() }()

	// the peer went away and the stream's run queue already wound down
	h.stm.runQueue.Stop(nil)

	// a late force-close must return instead of waiting on a queue
	// that will never run its closure
	doneCh := make(chan struct{})
	go func() {
		h.stm.Disconnect(streamerror.ErrSystemShutdown)
		close(doneCh)
	}()
	select {
	case <-doneCh:
		break
	case <-time.After(time.Second):
		require.Fail(t, "Disconnect blocked on a wound-down stream")
	}
}
