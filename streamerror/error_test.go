/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package streamerror

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamErrorElement(t *testing.T) {
	el := ErrNotAuthorized.Element()
	require.Equal(t, "stream:error", el.Name())
	require.NotNil(t, el.Elements().ChildNamespace("not-authorized", "urn:ietf:params:xml:ns:xmpp-streams"))
	require.Equal(t, "not-authorized", ErrNotAuthorized.Error())
}
