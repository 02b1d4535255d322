// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"fmt"
	"net/http"

	"github.com/stackmesh/authgate/pkg/oauth"
)

// Registration error codes per RFC 7591 Section 3.2.2.
const (
	ErrorCodeInvalidRedirectURI    = "invalid_redirect_uri"
	ErrorCodeInvalidClientMetadata = "invalid_client_metadata"
)

var supportedGrantTypes = map[string]bool{
	oauth.GrantTypeAuthorizationCode: true,
	oauth.GrantTypeRefreshToken:      true,
}

var supportedAuthMethods = map[string]bool{
	oauth.TokenEndpointAuthSecretBasic: true,
	oauth.TokenEndpointAuthSecretPost:  true,
	oauth.TokenEndpointAuthNone:        true,
}

func invalidMetadata(format string, args ...any) *oauth.Error {
	return oauth.NewError(ErrorCodeInvalidClientMetadata, fmt.Sprintf(format, args...), http.StatusBadRequest)
}

// ValidateMetadata checks client metadata for registration and applies the
// RFC 7591 defaults for absent members. It mutates m in place and returns a
// protocol error describing the first violation found.
func ValidateMetadata(m *Metadata) *oauth.Error {
	if len(m.RedirectURIs) == 0 {
		return oauth.NewError(ErrorCodeInvalidRedirectURI,
			"redirect_uris is required and must not be empty", http.StatusBadRequest)
	}
	for _, uri := range m.RedirectURIs {
		if err := oauth.ValidateRedirectURI(uri); err != nil {
			return oauth.NewError(ErrorCodeInvalidRedirectURI,
				fmt.Sprintf("invalid redirect URI %q: %v", uri, err), http.StatusBadRequest)
		}
	}

	if len(m.GrantTypes) == 0 {
		m.GrantTypes = []string{oauth.GrantTypeAuthorizationCode, oauth.GrantTypeRefreshToken}
	}
	for _, gt := range m.GrantTypes {
		if !supportedGrantTypes[gt] {
			return invalidMetadata("unsupported grant type %q", gt)
		}
	}

	if len(m.ResponseTypes) == 0 {
		m.ResponseTypes = []string{oauth.ResponseTypeCode}
	}
	if len(m.ResponseTypes) != 1 || m.ResponseTypes[0] != oauth.ResponseTypeCode {
		return invalidMetadata("response_types must be exactly [%q]", oauth.ResponseTypeCode)
	}

	if m.TokenEndpointAuthMethod == "" {
		m.TokenEndpointAuthMethod = oauth.TokenEndpointAuthSecretBasic
	}
	if !supportedAuthMethods[m.TokenEndpointAuthMethod] {
		return invalidMetadata("unsupported token_endpoint_auth_method %q", m.TokenEndpointAuthMethod)
	}

	return nil
}
