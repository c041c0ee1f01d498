/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package auth

import (
	"bytes"
	"context"
	"encoding/base64"

	"github.com/wren-im/wren/stream"
	"github.com/wren-im/wren/xmpp"
)

// Plain represents a PLAIN authenticator.
type Plain struct {
	stm           stream.C2S
	verifier      Verifier
	username      string
	authenticated bool
}

// NewPlain returns a new plain authenticator instance.
func NewPlain(stm stream.C2S, verifier Verifier) *Plain {
	return &Plain{stm: stm, verifier: verifier}
}

// Mechanism returns authenticator mechanism name.
func (p *Plain) Mechanism() string {
	return "PLAIN"
}

// Username returns authenticated username in case
// authentication process has been completed.
func (p *Plain) Username() string {
	return p.username
}

// Authenticated returns whether or not user has been authenticated.
func (p *Plain) Authenticated() bool {
	return p.authenticated
}

// ProcessElement process an incoming authenticator element.
func (p *Plain) ProcessElement(ctx context.Context, elem xmpp.XElement) error {
	if p.authenticated {
		return nil
	}
	if len(elem.Text()) == 0 {
		return ErrSASLMalformedRequest
	}
	b, err := base64.StdEncoding.DecodeString(elem.Text())
	if err != nil {
		return ErrSASLIncorrectEncoding
	}
	s := bytes.Split(b, []byte{0})
	if len(s) != 3 {
		return ErrSASLIncorrectEncoding
	}
	username := string(s[1])
	password := string(s[2])

	// validate user and password
	normalized, ok, err := p.verifier.Verify(ctx, username, password)
	if err != nil {
		return ErrSASLTemporaryAuthFailure
	}
	if !ok {
		return ErrSASLNotAuthorized
	}
	p.username = normalized
	p.authenticated = true

	p.stm.SendElement(xmpp.NewElementNamespace("success", saslNamespace))
	return nil
}

// Reset resets authenticator internal state.
func (p *Plain) Reset() {
	p.username = ""
	p.authenticated = false
}
