/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package streamerror

import (
	"github.com/wren-im/wren/xmpp"
)

// Error represents a "stream:error" element.
type Error struct {
	reason string
}

var (
	// ErrInvalidXML represents 'invalid-xml' stream error.
	ErrInvalidXML = newStreamError("invalid-xml")

	// ErrInvalidNamespace represents 'invalid-namespace' stream error.
	ErrInvalidNamespace = newStreamError("invalid-namespace")

	// ErrHostUnknown represents 'host-unknown' stream error.
	ErrHostUnknown = newStreamError("host-unknown")

	// ErrInvalidFrom represents 'invalid-from' stream error.
	ErrInvalidFrom = newStreamError("invalid-from")

	// ErrPolicyViolation represents 'policy-violation' stream error.
	ErrPolicyViolation = newStreamError("policy-violation")

	// ErrRemoteConnectionFailed represents 'remote-connection-failed' stream error.
	ErrRemoteConnectionFailed = newStreamError("remote-connection-failed")

	// ErrConnectionTimeout represents 'connection-timeout' stream error.
	ErrConnectionTimeout = newStreamError("connection-timeout")

	// ErrUnsupportedStanzaType represents 'unsupported-stanza-type' stream error.
	ErrUnsupportedStanzaType = newStreamError("unsupported-stanza-type")

	// ErrUnsupportedVersion represents 'unsupported-version' stream error.
	ErrUnsupportedVersion = newStreamError("unsupported-version")

	// ErrNotAuthorized represents 'not-authorized' stream error.
	ErrNotAuthorized = newStreamError("not-authorized")

	// ErrInternalServerError represents 'internal-server-error' stream error.
	ErrInternalServerError = newStreamError("internal-server-error")

	// ErrSystemShutdown represents 'system-shutdown' stream error.
	ErrSystemShutdown = newStreamError("system-shutdown")

	// ErrUndefinedCondition represents 'undefined-condition' stream error.
	ErrUndefinedCondition = newStreamError("undefined-condition")
)

func newStreamError(reason string) *Error {
	return &Error{reason: reason}
}

// Element returns the stream error XML node.
func (se *Error) Element() *xmpp.Element {
	err := xmpp.NewElementName("stream:error")
	err.AppendElement(xmpp.NewElementNamespace(se.reason, "urn:ietf:params:xml:ns:xmpp-streams"))
	return err
}

// Error satisfies error interface.
func (se *Error) Error() string {
	return se.reason
}
