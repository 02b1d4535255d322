// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/stackmesh/authgate/pkg/oauth"
)

// authorizationServerMetadata serves RFC 8414. The document reflects the
// issuer regardless of the inbound Host header: the reverse proxy serves it
// under every downstream subdomain.
func (h *Handler) authorizationServerMetadata(w http.ResponseWriter, _ *http.Request) {
	base := h.cfg.Issuer
	doc := oauth.AuthorizationServerMetadata{
		Issuer:                        base,
		AuthorizationEndpoint:         base + "/authorize",
		TokenEndpoint:                 base + "/token",
		RegistrationEndpoint:          base + "/register",
		RevocationEndpoint:            base + "/revoke",
		IntrospectionEndpoint:         base + "/introspect",
		JWKSURI:                       base + "/jwks",
		ResponseTypesSupported:        []string{oauth.ResponseTypeCode},
		GrantTypesSupported:           []string{oauth.GrantTypeAuthorizationCode, oauth.GrantTypeRefreshToken},
		CodeChallengeMethodsSupported: []string{oauth.PKCEChallengeMethodS256},
		TokenEndpointAuthMethodsSupported: []string{
			oauth.TokenEndpointAuthSecretBasic,
			oauth.TokenEndpointAuthSecretPost,
			oauth.TokenEndpointAuthNone,
		},
		ScopesSupported: []string{"mcp:*"},
	}
	cacheable(w)
	writeJSON(w, http.StatusOK, doc)
}

// protectedResourceMetadata serves RFC 9728 so clients can discover this
// authorization server from any gated resource.
func (h *Handler) protectedResourceMetadata(w http.ResponseWriter, _ *http.Request) {
	resource := h.cfg.Issuer
	if h.cfg.BaseDomain != "" {
		resource = "https://" + h.cfg.BaseDomain
	}
	doc := oauth.ProtectedResourceMetadata{
		Resource:               resource,
		AuthorizationServers:   []string{h.cfg.Issuer},
		BearerMethodsSupported: []string{"header"},
		ScopesSupported:        []string{"mcp:*"},
	}
	cacheable(w)
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) jwks(w http.ResponseWriter, _ *http.Request) {
	cacheable(w)
	writeJSON(w, http.StatusOK, h.keys.JWKS())
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
