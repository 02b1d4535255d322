// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

// Shared protocol constants.
const (
	// GrantTypeAuthorizationCode is the authorization_code grant (RFC 6749 Section 4.1).
	GrantTypeAuthorizationCode = "authorization_code"

	// GrantTypeRefreshToken is the refresh_token grant (RFC 6749 Section 6).
	GrantTypeRefreshToken = "refresh_token"

	// ResponseTypeCode is the only supported response type.
	ResponseTypeCode = "code"

	// PKCEChallengeMethodS256 is the PKCE challenge method using SHA-256 (RFC 7636).
	PKCEChallengeMethodS256 = "S256"

	// Token endpoint authentication methods (RFC 7591 Section 2).
	TokenEndpointAuthSecretPost  = "client_secret_post"  //nolint:gosec // method name, not a credential
	TokenEndpointAuthSecretBasic = "client_secret_basic" //nolint:gosec // method name, not a credential
	TokenEndpointAuthNone        = "none"
)

// AuthorizationServerMetadata is the OAuth 2.0 Authorization Server Metadata
// document per RFC 8414.
type AuthorizationServerMetadata struct {
	// Issuer is the authorization server's issuer identifier. REQUIRED.
	Issuer string `json:"issuer"`

	// AuthorizationEndpoint is the URL of the authorization endpoint.
	AuthorizationEndpoint string `json:"authorization_endpoint,omitempty"`

	// TokenEndpoint is the URL of the token endpoint.
	TokenEndpoint string `json:"token_endpoint,omitempty"`

	// RegistrationEndpoint is the URL of the RFC 7591 registration endpoint.
	RegistrationEndpoint string `json:"registration_endpoint,omitempty"`

	// RevocationEndpoint is the URL of the RFC 7009 revocation endpoint.
	RevocationEndpoint string `json:"revocation_endpoint,omitempty"`

	// IntrospectionEndpoint is the URL of the RFC 7662 introspection endpoint.
	IntrospectionEndpoint string `json:"introspection_endpoint,omitempty"`

	// JWKSURI is the URL of the server's JSON Web Key Set document.
	JWKSURI string `json:"jwks_uri,omitempty"`

	// ResponseTypesSupported lists the supported response_type values.
	ResponseTypesSupported []string `json:"response_types_supported,omitempty"`

	// GrantTypesSupported lists the supported grant_type values.
	GrantTypesSupported []string `json:"grant_types_supported,omitempty"`

	// CodeChallengeMethodsSupported lists the supported PKCE methods.
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`

	// TokenEndpointAuthMethodsSupported lists the supported client
	// authentication methods at the token endpoint.
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`

	// ScopesSupported lists the supported scope values.
	ScopesSupported []string `json:"scopes_supported,omitempty"`
}

// ProtectedResourceMetadata is the OAuth 2.0 Protected Resource Metadata
// document per RFC 9728. MCP clients discover the authorization server from
// the resource they attempted to access, so every downstream subdomain serves
// this document.
type ProtectedResourceMetadata struct {
	// Resource is the protected resource's identifier.
	Resource string `json:"resource"`

	// AuthorizationServers lists issuer identifiers of authorization
	// servers that can be used with this resource.
	AuthorizationServers []string `json:"authorization_servers,omitempty"`

	// BearerMethodsSupported lists the supported bearer token presentation
	// methods.
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`

	// ScopesSupported lists the scope values used at this resource.
	ScopesSupported []string `json:"scopes_supported,omitempty"`
}
