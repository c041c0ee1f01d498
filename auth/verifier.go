/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package auth

import (
	"context"
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/secure/precis"

	"github.com/wren-im/wren/storage/repository"
)

// Verifier validates a claimed identity against a credential.
// On acceptance the normalized identity is returned.
type Verifier interface {
	Verify(ctx context.Context, identity, credential string) (normalized string, ok bool, err error)
}

// Config represents an authentication configuration.
type Config struct {
	// Secret is the shared secret accepted for every identity.
	// A bcrypt hash is accepted as well as a plain value.
	// When empty, credentials are validated against the user repository.
	Secret string `yaml:"secret"`
}

// SharedSecretVerifier accepts any identity presenting a configured
// shared secret.
type SharedSecretVerifier struct {
	secret string
}

// NewSharedSecretVerifier returns a shared secret backed verifier.
func NewSharedSecretVerifier(secret string) *SharedSecretVerifier {
	return &SharedSecretVerifier{secret: secret}
}

// Verify implements the Verifier interface.
func (v *SharedSecretVerifier) Verify(_ context.Context, identity, credential string) (string, bool, error) {
	normalized, err := normalizeIdentity(identity)
	if err != nil {
		return "", false, nil
	}
	return normalized, credentialMatches(v.secret, credential), nil
}

// RepositoryVerifier validates identities against the user repository.
type RepositoryVerifier struct {
	userRep repository.User
}

// NewRepositoryVerifier returns a user repository backed verifier.
func NewRepositoryVerifier(userRep repository.User) *RepositoryVerifier {
	return &RepositoryVerifier{userRep: userRep}
}

// Verify implements the Verifier interface.
func (v *RepositoryVerifier) Verify(ctx context.Context, identity, credential string) (string, bool, error) {
	normalized, err := normalizeIdentity(identity)
	if err != nil {
		return "", false, nil
	}
	usr, err := v.userRep.FetchUser(ctx, normalized)
	if err != nil {
		return "", false, err
	}
	if usr == nil {
		return "", false, nil
	}
	return normalized, credentialMatches(usr.Password, credential), nil
}

func normalizeIdentity(identity string) (string, error) {
	return precis.UsernameCaseMapped.String(identity)
}

func credentialMatches(stored, presented string) bool {
	if isBcryptHash(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(presented)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}
