// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

// KeyPrefix namespaces every key written by this server. It carries the
// schema version: bump the suffix if a value layout changes incompatibly so
// old records are simply not found rather than misparsed.
const KeyPrefix = "oauth:"

// Key type segments within the schema.
const (
	keyTypeClient       = "client"
	keyTypeState        = "state"
	keyTypeCode         = "code"
	keyTypeToken        = "token"
	keyTypeRefresh      = "refresh"
	keyTypeUserTokens   = "user_tokens"
	keyTypeClientTokens = "client_tokens"
)

// ClientKey is the key for a client registration record.
func ClientKey(clientID string) string {
	return KeyPrefix + keyTypeClient + ":" + clientID
}

// StateKey is the key for an in-flight authorization request awaiting the
// upstream IdP callback.
func StateKey(state string) string {
	return KeyPrefix + keyTypeState + ":" + state
}

// CodeKey is the key for a one-time authorization code.
func CodeKey(code string) string {
	return KeyPrefix + keyTypeCode + ":" + code
}

// TokenKey is the key for an access-token record, addressed by jti.
// Presence means the token is valid; absence means revoked or expired.
func TokenKey(jti string) string {
	return KeyPrefix + keyTypeToken + ":" + jti
}

// RefreshKey is the key for a refresh-token record, addressed by the HMAC
// of the token. Plaintext refresh tokens are never stored.
func RefreshKey(tokenHash string) string {
	return KeyPrefix + keyTypeRefresh + ":" + tokenHash
}

// UserTokensKey is the set of jtis issued to a user, maintained for
// administrative revoke-all operations.
func UserTokensKey(userID string) string {
	return KeyPrefix + keyTypeUserTokens + ":" + userID
}

// ClientTokensKey is the set of jtis issued to a client, maintained so
// deleting a registration can eagerly revoke its tokens.
func ClientTokensKey(clientID string) string {
	return KeyPrefix + keyTypeClientTokens + ":" + clientID
}
