/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package auth

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/wren-im/wren/model"
	"github.com/wren-im/wren/storage/memstorage"
	"github.com/wren-im/wren/xmpp"
	"github.com/wren-im/wren/xmpp/jid"
)

type fakeC2S struct {
	elems []xmpp.XElement
}

func (s *fakeC2S) ID() uint64                     { return 1 }
func (s *fakeC2S) Username() string               { return "" }
func (s *fakeC2S) Domain() string                 { return "example.org" }
func (s *fakeC2S) Resource() string               { return "" }
func (s *fakeC2S) JID() *jid.JID                  { j, _ := jid.New("", "example.org", "", true); return j }
func (s *fakeC2S) IsAuthenticated() bool          { return false }
func (s *fakeC2S) Presence() *xmpp.Presence       { return nil }
func (s *fakeC2S) SendElement(elem xmpp.XElement) { s.elems = append(s.elems, elem) }
func (s *fakeC2S) Disconnect(err error)           {}

func authPayload(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte("\x00" + username + "\x00" + password))
}

func authElement(text string) *xmpp.Element {
	el := xmpp.NewElementNamespace("auth", saslNamespace)
	el.SetAttribute("mechanism", "PLAIN")
	el.SetText(text)
	return el
}

func TestPlainAuthentication(t *testing.T) {
	stm := &fakeC2S{}
	authr := NewPlain(stm, NewSharedSecretVerifier("s3cr3t"))

	require.Equal(t, "PLAIN", authr.Mechanism())
	require.False(t, authr.Authenticated())

	err := authr.ProcessElement(context.Background(), authElement(authPayload("ortuman", "s3cr3t")))
	require.Nil(t, err)
	require.True(t, authr.Authenticated())
	require.Equal(t, "ortuman", authr.Username())

	require.Equal(t, 1, len(stm.elems))
	require.Equal(t, "success", stm.elems[0].Name())

	authr.Reset()
	require.False(t, authr.Authenticated())
	require.Equal(t, "", authr.Username())
}

func TestPlainRejection(t *testing.T) {
	stm := &fakeC2S{}
	authr := NewPlain(stm, NewSharedSecretVerifier("s3cr3t"))

	err := authr.ProcessElement(context.Background(), authElement(""))
	require.Equal(t, ErrSASLMalformedRequest, err)

	err = authr.ProcessElement(context.Background(), authElement("not-base64!!"))
	require.Equal(t, ErrSASLIncorrectEncoding, err)

	err = authr.ProcessElement(context.Background(), authElement(base64.StdEncoding.EncodeToString([]byte("missing-separators"))))
	require.Equal(t, ErrSASLIncorrectEncoding, err)

	err = authr.ProcessElement(context.Background(), authElement(authPayload("ortuman", "wrong")))
	require.Equal(t, ErrSASLNotAuthorized, err)
	require.False(t, authr.Authenticated())
	require.Equal(t, 0, len(stm.elems))
}

func TestRepositoryVerifier(t *testing.T) {
	s := memstorage.New()
	_ = s.UpsertUser(context.Background(), &model.User{Username: "ortuman", Password: "1234"})

	v := NewRepositoryVerifier(s)

	normalized, ok, err := v.Verify(context.Background(), "Ortuman", "1234")
	require.Nil(t, err)
	require.True(t, ok)
	require.Equal(t, "ortuman", normalized)

	_, ok, err = v.Verify(context.Background(), "ortuman", "wrong")
	require.Nil(t, err)
	require.False(t, ok)

	_, ok, err = v.Verify(context.Background(), "romeo", "1234")
	require.Nil(t, err)
	require.False(t, ok)

	s.ActivateMockedError()
	_, _, err = v.Verify(context.Background(), "ortuman", "1234")
	require.NotNil(t, err)
}

func TestSharedSecretBcrypt(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cr3t"), bcrypt.MinCost)
	require.Nil(t, err)

	v := NewSharedSecretVerifier(string(hash))
	_, ok, err2 := v.Verify(context.Background(), "ortuman", "s3cr3t")
	require.Nil(t, err2)
	require.True(t, ok)

	_, ok, _ = v.Verify(context.Background(), "ortuman", "wrong")
	require.False(t, ok)
}
