// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"errors"
	"net/http"

	"github.com/stackmesh/authgate/pkg/authserver/engine"
)

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := &engine.AuthorizeRequest{
		ResponseType:        q.Get("response_type"),
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		State:               q.Get("state"),
		Scope:               q.Get("scope"),
	}

	redirect, err := h.engine.Authorize(r.Context(), req)
	if err != nil {
		var fe *engine.FlowError
		if errors.As(err, &fe) && fe.Redirectable {
			http.Redirect(w, r, fe.RedirectURL(), http.StatusFound)
			return
		}
		// The client or redirect URI could not be authenticated; the only
		// safe output is a page for the human at the browser.
		writeErrorPage(w, err)
		return
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}

func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirect, err := h.engine.Callback(r.Context(), q.Get("code"), q.Get("state"))
	if err != nil {
		writeErrorPage(w, err)
		return
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}
