// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/stackmesh/authgate/pkg/authserver/engine"
	"github.com/stackmesh/authgate/pkg/oauth"
)

// parseTokenRequest reads the form body and resolves client credentials
// from HTTP Basic or the body, whichever the client used.
func parseTokenRequest(r *http.Request) (*engine.TokenRequest, error) {
	if err := r.ParseForm(); err != nil {
		return nil, oauth.ErrInvalidRequest.WithDescription("malformed form body")
	}

	req := &engine.TokenRequest{
		GrantType:    r.PostForm.Get("grant_type"),
		ClientID:     r.PostForm.Get("client_id"),
		ClientSecret: r.PostForm.Get("client_secret"),
		Code:         r.PostForm.Get("code"),
		RedirectURI:  r.PostForm.Get("redirect_uri"),
		CodeVerifier: r.PostForm.Get("code_verifier"),
		RefreshToken: r.PostForm.Get("refresh_token"),
	}

	if id, secret, ok := r.BasicAuth(); ok {
		req.ClientID = id
		req.ClientSecret = secret
	}
	return req, nil
}

func (h *Handler) token(w http.ResponseWriter, r *http.Request) {
	req, err := parseTokenRequest(r)
	if err != nil {
		writeOAuthError(w, err)
		return
	}

	resp, err := h.engine.Token(r.Context(), req)
	if err != nil {
		writeOAuthError(w, err)
		return
	}

	// Token responses must never be cached (RFC 6749 Section 5.1).
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	req, err := parseTokenRequest(r)
	if err != nil {
		writeOAuthError(w, err)
		return
	}

	if err := h.engine.Revoke(r.Context(), req, r.PostForm.Get("token")); err != nil {
		writeOAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) introspect(w http.ResponseWriter, r *http.Request) {
	req, err := parseTokenRequest(r)
	if err != nil {
		writeOAuthError(w, err)
		return
	}

	resp, err := h.engine.Introspect(r.Context(), req, r.PostForm.Get("token"))
	if err != nil {
		writeOAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
