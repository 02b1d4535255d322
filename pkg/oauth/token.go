// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// PKCE code verifier length bounds per RFC 7636 Section 4.1.
const (
	MinCodeVerifierLength = 43
	MaxCodeVerifierLength = 128
)

// RandomToken returns n bytes of cryptographic randomness, base64url encoded
// without padding. Used for client IDs, secrets, authorization codes, flow
// state, and token IDs.
func RandomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// S256Challenge computes the PKCE S256 code challenge for a verifier:
// base64url(SHA-256(verifier)) without padding (RFC 7636 Section 4.2).
func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyPKCE checks a code verifier against the stored S256 challenge. The
// comparison is constant time. Verifiers outside the RFC 7636 length bounds
// are rejected before hashing.
func VerifyPKCE(verifier, challenge string) bool {
	if len(verifier) < MinCodeVerifierLength || len(verifier) > MaxCodeVerifierLength {
		return false
	}
	computed := S256Challenge(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}
