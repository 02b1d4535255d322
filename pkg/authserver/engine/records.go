// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package engine

// flowState is the pending authorization request parked while the user
// authenticates at the upstream provider. Keyed by the random flow state,
// which doubles as the upstream OAuth state parameter.
type flowState struct {
	ClientID      string `json:"client_id"`
	RedirectURI   string `json:"redirect_uri"`
	CodeChallenge string `json:"code_challenge"`
	Scope         string `json:"scope,omitempty"`

	// ClientState is the client's own state parameter, echoed back on the
	// final redirect.
	ClientState string `json:"state"`

	CreatedAt int64 `json:"created_at"`
}

// codeRecord is a one-time authorization code awaiting redemption at the
// token endpoint.
type codeRecord struct {
	ClientID      string `json:"client_id"`
	RedirectURI   string `json:"redirect_uri"`
	CodeChallenge string `json:"code_challenge"`
	Scope         string `json:"scope,omitempty"`

	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email,omitempty"`

	CreatedAt int64 `json:"created_at"`
}

// tokenRecord marks an access token as live. Its absence under
// oauth:token:{jti} means the token is revoked or expired.
type tokenRecord struct {
	ClientID  string `json:"client_id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	Scope     string `json:"scope,omitempty"`
	IssuedAt  int64  `json:"issued_at"`
	ExpiresAt int64  `json:"expires_at"`
}

// refreshRecord is stored under the keyed hash of the refresh token, never
// under its plaintext value.
type refreshRecord struct {
	ClientID  string `json:"client_id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email,omitempty"`
	Scope     string `json:"scope,omitempty"`
	IssuedAt  int64  `json:"issued_at"`

	// ParentJTI is the access token issued alongside this refresh token;
	// rotation invalidates it.
	ParentJTI string `json:"parent_jti"`
}
