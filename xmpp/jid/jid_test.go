/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package jid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWithString(t *testing.T) {
	j, err := NewWithString("ortuman@example.org/balcony", false)
	require.Nil(t, err)
	require.Equal(t, "ortuman", j.Node())
	require.Equal(t, "example.org", j.Domain())
	require.Equal(t, "balcony", j.Resource())
	require.Equal(t, "ortuman@example.org/balcony", j.String())

	j, err = NewWithString("example.org", false)
	require.Nil(t, err)
	require.True(t, j.IsServer())

	j, err = NewWithString("", false)
	require.Nil(t, err)
	require.Equal(t, "", j.String())

	_, err = NewWithString("ortuman@", false)
	require.NotNil(t, err)

	_, err = NewWithString("ortuman@example.org/", false)
	require.NotNil(t, err)
}

func TestStringPrep(t *testing.T) {
	j, err := NewWithString("Ortuman@Example.ORG", false)
	require.Nil(t, err)
	require.Equal(t, "ortuman", j.Node())

	_, err = New(`forbidden@char`, "example.org", "", false)
	require.NotNil(t, err)
}

func TestBareAndFull(t *testing.T) {
	j, _ := NewWithString("ortuman@example.org/balcony", true)
	require.True(t, j.IsFull())
	require.True(t, j.IsFullWithUser())
	require.False(t, j.IsBare())

	bare := j.ToBareJID()
	require.True(t, bare.IsBare())
	require.Equal(t, "ortuman@example.org", bare.String())
}

func TestMatches(t *testing.T) {
	j1, _ := NewWithString("ortuman@example.org/balcony", true)
	j2, _ := NewWithString("ortuman@example.org/yard", true)

	require.True(t, j1.Matches(j2, MatchesBare))
	require.False(t, j1.Matches(j2, MatchesFull))
	require.True(t, j1.Matches(j2, MatchesDomain))
}
