// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package registry implements the dynamic client registry: CRUD over OAuth
// client registrations per RFC 7591 and RFC 7592, credential generation,
// and the client lifetime policy.
package registry

import (
	"encoding/json"
	"fmt"

	"github.com/stackmesh/authgate/pkg/oauth"
)

// Metadata is the RFC 7591 client metadata set. Unknown members are kept in
// Extra and echoed back on registration responses per RFC 7591 Section
// 3.2.1; they carry no server-side semantics.
type Metadata struct {
	RedirectURIs            []string `json:"redirect_uris"`
	ClientName              string   `json:"client_name,omitempty"`
	ClientURI               string   `json:"client_uri,omitempty"`
	LogoURI                 string   `json:"logo_uri,omitempty"`
	Contacts                []string `json:"contacts,omitempty"`
	TOSURI                  string   `json:"tos_uri,omitempty"`
	PolicyURI               string   `json:"policy_uri,omitempty"`
	SoftwareID              string   `json:"software_id,omitempty"`
	SoftwareVersion         string   `json:"software_version,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`

	// Extra holds unrecognized metadata members, keyed by member name.
	Extra map[string]json.RawMessage `json:"-"`
}

// knownMetadataFields are the members parsed into struct fields; everything
// else lands in Extra.
var knownMetadataFields = map[string]bool{
	"redirect_uris": true, "client_name": true, "client_uri": true,
	"logo_uri": true, "contacts": true, "tos_uri": true, "policy_uri": true,
	"software_id": true, "software_version": true, "scope": true,
	"grant_types": true, "response_types": true,
	"token_endpoint_auth_method": true,
	// Credential members are server-assigned; strip them from requests so
	// a client cannot smuggle them through the Extra bag.
	"client_id": true, "client_secret": true, "client_id_issued_at": true,
	"client_secret_expires_at": true, "registration_access_token": true,
	"registration_client_uri": true,
}

// UnmarshalJSON splits the body into known members and the Extra bag.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	type alias Metadata
	var known alias
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*m = Metadata(known)
	for name, value := range raw {
		if knownMetadataFields[name] {
			continue
		}
		if m.Extra == nil {
			m.Extra = make(map[string]json.RawMessage)
		}
		m.Extra[name] = value
	}
	return nil
}

// MarshalJSON renders known members plus the Extra bag as one flat object.
func (m *Metadata) MarshalJSON() ([]byte, error) {
	fields, err := m.asMap()
	if err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// asMap flattens the metadata into a JSON object map, used both for
// marshaling and for composing registration responses.
func (m *Metadata) asMap() (map[string]any, error) {
	type alias Metadata
	known, err := json.Marshal((*alias)(m))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	fields := make(map[string]any)
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, fmt.Errorf("failed to flatten metadata: %w", err)
	}
	for name, value := range m.Extra {
		fields[name] = value
	}
	return fields, nil
}

// Client is the stored registration record. Secrets are stored only as
// hashes; the plaintext values exist solely in the registration response.
type Client struct {
	ClientID string `json:"client_id"`

	// SecretHash is the bcrypt hash of the client secret. Empty for public
	// clients (token_endpoint_auth_method "none").
	SecretHash []byte `json:"client_secret_hash,omitempty"`

	// RegistrationTokenHash is the keyed hash of the RFC 7592 management
	// token. Management tokens are entirely distinct from OAuth access
	// tokens and authorize operations on exactly this registration.
	RegistrationTokenHash string `json:"registration_access_token_hash"`

	Metadata Metadata `json:"metadata"`

	CreatedAt int64 `json:"created_at"`

	// ExpiresAt is the registration expiry (Unix seconds); 0 means the
	// registration never expires.
	ExpiresAt int64 `json:"expires_at"`

	// SecretExpiresAt mirrors client_secret_expires_at; 0 means eternal.
	SecretExpiresAt int64 `json:"client_secret_expires_at"`
}

// IsPublic reports whether the client authenticates with "none".
func (c *Client) IsPublic() bool {
	return c.Metadata.TokenEndpointAuthMethod == oauth.TokenEndpointAuthNone
}

// AllowsGrantType reports whether the client registered the grant type.
func (c *Client) AllowsGrantType(grantType string) bool {
	for _, gt := range c.Metadata.GrantTypes {
		if gt == grantType {
			return true
		}
	}
	return false
}

// AllowsRedirectURI reports whether uri matches one of the registered
// redirect URIs exactly, byte for byte. No partial matching, no
// trailing-slash forgiveness.
func (c *Client) AllowsRedirectURI(uri string) bool {
	for _, registered := range c.Metadata.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// Registration is the outcome of a successful POST /register: the stored
// client plus the plaintext credentials, which are returned once and never
// persisted.
type Registration struct {
	Client                  *Client
	ClientSecret            string
	RegistrationAccessToken string
}

// Response renders the RFC 7591 registration response for the client:
// all metadata (including Extra members) plus the credential fields.
// Plaintext credentials are included only when present on r.
func (r *Registration) Response(registrationClientURI string) (map[string]any, error) {
	fields, err := r.Client.Metadata.asMap()
	if err != nil {
		return nil, err
	}

	fields["client_id"] = r.Client.ClientID
	fields["client_id_issued_at"] = r.Client.CreatedAt
	if r.ClientSecret != "" {
		fields["client_secret"] = r.ClientSecret
		fields["client_secret_expires_at"] = r.Client.SecretExpiresAt
	}
	if r.RegistrationAccessToken != "" {
		fields["registration_access_token"] = r.RegistrationAccessToken
	}
	if registrationClientURI != "" {
		fields["registration_client_uri"] = registrationClientURI
	}
	return fields, nil
}
