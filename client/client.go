/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package client

import (
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	guuid "github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/wren-im/wren/log"
	"github.com/wren-im/wren/transport"
	"github.com/wren-im/wren/xmpp"
	"github.com/wren-im/wren/xmpp/jid"
)

const (
	defaultHost          = "localhost"
	defaultPort          = 5222
	defaultDialTimeout   = time.Second * 5
	defaultMaxStanzaSize = 32768
)

// ErrNotConnected will be returned when attempting to send over a
// client with no established connection.
var ErrNotConnected = errors.New("client: not connected")

var dialProvider = func(address string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", address, timeout)
}

// Observer gets notified whenever the client connection transitions
// to closed, whatever the trigger.
type Observer interface {
	Closed()
}

// Options configure an outgoing client connection.
// Zero values fall back to: localhost, port 5222, the local machine
// name as user, the host as domain and an empty password.
type Options struct {
	Host     string
	Port     int
	Username string
	Domain   string
	Password string
	Resource string
}

func (o Options) withDefaults() Options {
	if len(o.Host) == 0 {
		o.Host = defaultHost
	}
	if o.Port == 0 {
		o.Port = defaultPort
	}
	if len(o.Username) == 0 {
		o.Username, _ = os.Hostname()
	}
	if len(o.Domain) == 0 {
		o.Domain = o.Host
	}
	return o
}

// Client maintains at most one outgoing XMPP connection.
type Client struct {
	observer Observer

	mu     sync.Mutex
	active bool
	stm    *outStream
}

// attempt carries the completion token of a single connect request so
// late transport errors can never leak into a later attempt's callback.
type attempt struct {
	once sync.Once
	done func(err error)
}

// New returns a new disconnected client instance.
func New(observer Observer) *Client {
	return &Client{observer: observer}
}

// Connect establishes a connection applying opts defaults. The done
// callback receives the single completion outcome: nil on success or
// the first error of the attempt; later errors are only logged.
// It returns false immediately, without touching any transport, when
// a connection is already established or in progress.
func (c *Client) Connect(opts Options, done func(err error)) bool {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return false
	}
	c.active = true
	c.mu.Unlock()

	go c.dial(opts.withDefaults(), &attempt{done: done})
	return true
}

// Close tears down the active connection. It returns true exactly once
// per active-to-closed transition and false when nothing was open.
func (c *Client) Close() bool {
	c.mu.Lock()
	stm := c.stm
	c.mu.Unlock()

	if stm == nil {
		return false
	}
	return stm.close()
}

// IsConnected returns whether or not the client is online.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stm != nil && c.stm.isOnline()
}

// JID returns the bound connection JID, or nil when offline.
func (c *Client) JID() *jid.JID {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stm == nil || !c.stm.isOnline() {
		return nil
	}
	return c.stm.JID()
}

// SendMessage sends a text message addressed to the connected domain.
func (c *Client) SendMessage(text string) error {
	c.mu.Lock()
	stm := c.stm
	c.mu.Unlock()

	if stm == nil || !stm.isOnline() {
		return ErrNotConnected
	}
	toJID, err := jid.New("", stm.cfg.domain, "", true)
	if err != nil {
		return err
	}
	msg := xmpp.NewMessageType(guuid.New().String(), xmpp.NormalType)
	msg.SetFromJID(stm.JID())
	msg.SetToJID(toJID)

	body := xmpp.NewElementName("body")
	body.SetText(text)
	msg.AppendElement(body)

	stm.SendElement(msg)
	return nil
}

func (c *Client) dial(opts Options, att *attempt) {
	address := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))

	conn, err := dialProvider(address, defaultDialTimeout)
	if err != nil {
		// deliver the outcome before releasing the attempt slot
		att.complete(err)

		c.mu.Lock()
		c.active = false
		c.mu.Unlock()
		return
	}
	stm := newOutStream(&outConfig{
		transport:     transport.NewSocketTransport(conn, 0),
		maxStanzaSize: defaultMaxStanzaSize,
		username:      opts.Username,
		domain:        opts.Domain,
		password:      opts.Password,
		resource:      opts.Resource,
		onOnline:      func() { att.complete(nil) },
		onError:       att.complete,
		onClosed:      c.handleClosed,
	})
	c.mu.Lock()
	c.stm = stm
	c.mu.Unlock()

	stm.start()
}

// complete delivers the connect outcome at most once per attempt.
func (a *attempt) complete(err error) {
	delivered := false
	a.once.Do(func() {
		delivered = true
		if a.done != nil {
			a.done(err)
		}
	})
	if !delivered && err != nil {
		log.Debugf("client: %v", err)
	}
}

func (c *Client) handleClosed() {
	c.mu.Lock()
	c.stm = nil
	c.active = false
	c.mu.Unlock()

	if c.observer != nil {
		c.observer.Closed()
	}
}
