/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package c2s

import (
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/wren-im/wren/auth"
	"github.com/wren-im/wren/log"
	"github.com/wren-im/wren/module"
	"github.com/wren-im/wren/module/xep0030"
	"github.com/wren-im/wren/router"
	"github.com/wren-im/wren/stream"
	"github.com/wren-im/wren/streamerror"
	"github.com/wren-im/wren/transport"
)

// ErrStopInProgress will be returned by Stop when a previous
// stop request has not completed yet.
var ErrStopInProgress = errors.New("c2s: stop already in progress")

var listenerProvider = net.Listen

// Observer gets notified about server lifecycle changes.
type Observer interface {
	Started()
	Stopped()
}

// C2S represents a client-to-server connection server.
type C2S struct {
	cfg      *Config
	modsCfg  *module.Config
	verifier auth.Verifier
	observer Observer

	stopping    uint32
	listening   uint32
	connCounter uint64

	mu      sync.Mutex
	running bool
	ln      net.Listener
	rtr     *router.Router
	mods    *module.Modules
}

// New returns a new c2s server instance.
func New(config *Config, modsConfig *module.Config, verifier auth.Verifier, observer Observer) *C2S {
	return &C2S{
		cfg:      config,
		modsCfg:  modsConfig,
		verifier: verifier,
		observer: observer,
	}
}

// Start binds the server listener and starts accepting connections.
// It returns false with no side effects when the server is already
// running. A bind failure is surfaced to the caller and no connection
// registry is created.
func (s *C2S) Start() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return false, nil
	}
	address := s.cfg.BindAddress + ":" + strconv.Itoa(s.cfg.Port)
	ln, err := listenerProvider("tcp", address)
	if err != nil {
		return false, err
	}
	s.ln = ln
	s.rtr = router.New(s.cfg.Domain)

	stanzaObserver, _ := s.observer.(module.Observer)
	s.mods = module.New(s.modsCfg, s.rtr, stanzaObserver)
	s.mods.DiscoInfo().SetIdentities([]xep0030.Identity{
		{Category: "server", Type: "im", Name: "wren"},
	})
	s.mods.DiscoInfo().SetFeatures([]xep0030.Feature{
		"http://jabber.org/protocol/disco#info",
		"http://jabber.org/protocol/disco#items",
	})
	s.running = true

	log.Infof("c2s: listening at %s [domain: %s]", address, s.cfg.Domain)

	atomic.StoreUint32(&s.listening, 1)
	go s.acceptLoop(ln)

	if s.observer != nil {
		s.observer.Started()
	}
	return true, nil
}

// Stop closes the server listener and force-closes every registered
// connection. Concurrent stops collapse: an in-flight stop makes any
// other call return ErrStopInProgress, and a stopped server yields
// false.
func (s *C2S) Stop() (bool, error) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return false, nil
	}
	if !atomic.CompareAndSwapUint32(&s.stopping, 0, 1) {
		s.mu.Unlock()
		return false, ErrStopInProgress
	}
	ln := s.ln
	rtr := s.rtr
	mods := s.mods
	s.mu.Unlock()

	atomic.StoreUint32(&s.listening, 0)
	if err := ln.Close(); err != nil {
		log.Error(err)
	}
	// best-effort: failing to close one stream never aborts the stop
	for _, stm := range rtr.Streams() {
		stm.Disconnect(streamerror.ErrSystemShutdown)
	}
	mods.Done()

	s.mu.Lock()
	s.running = false
	s.ln = nil
	s.rtr = nil
	s.mods = nil
	atomic.StoreUint32(&s.stopping, 0)
	s.mu.Unlock()

	log.Infof("c2s: stopped")

	if s.observer != nil {
		s.observer.Stopped()
	}
	return true, nil
}

// Streams returns a point-in-time snapshot of every registered
// connection, sorted by identifier.
func (s *C2S) Streams() []stream.C2S {
	s.mu.Lock()
	rtr := s.rtr
	s.mu.Unlock()

	if rtr == nil {
		return nil
	}
	return rtr.Streams()
}

func (s *C2S) acceptLoop(ln net.Listener) {
	for atomic.LoadUint32(&s.listening) == 1 {
		conn, err := ln.Accept()
		if err != nil {
			continue
		}
		s.startStream(transport.NewSocketTransport(conn, s.cfg.KeepAlive))
	}
}

func (s *C2S) startStream(tr transport.Transport) {
	s.mu.Lock()
	rtr := s.rtr
	mods := s.mods
	s.mu.Unlock()

	if rtr == nil {
		_ = tr.Close()
		return
	}
	cfg := &streamConfig{
		transport:      tr,
		connectTimeout: s.cfg.ConnectTimeout,
		maxStanzaSize:  s.cfg.MaxStanzaSize,
		domain:         s.cfg.Domain,
		onOnline:       s.registerStream,
	}
	newStream(cfg, mods, rtr, s.verifier)
}

// registerStream admits a stream that just completed its handshake.
// Identifiers are strictly increasing and never reused within the
// process lifetime.
func (s *C2S) registerStream(stm *inStream) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || atomic.LoadUint32(&s.stopping) == 1 {
		return false
	}
	atomic.StoreUint64(&stm.id, atomic.AddUint64(&s.connCounter, 1))
	s.rtr.Bind(stm)
	return true
}
