// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stackmesh/authgate/pkg/authserver/registry"
	"github.com/stackmesh/authgate/pkg/authserver/storage"
	"github.com/stackmesh/authgate/pkg/oauth"
	"github.com/stackmesh/authgate/pkg/telemetry"
)

// maxRegistrationBody bounds registration request bodies.
const maxRegistrationBody = 64 * 1024

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	md, err := readMetadata(r)
	if err != nil {
		writeOAuthError(w, err)
		return
	}

	reg, err := h.registry.Register(r.Context(), md)
	if err != nil {
		writeOAuthError(w, err)
		return
	}
	telemetry.ClientsRegistered.Inc()

	resp, err := reg.Response(h.registrationClientURI(reg.Client.ClientID))
	if err != nil {
		writeOAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// authenticateManagement loads the client addressed by the path and checks
// the RFC 7592 bearer. The registration access token works only for its
// own client; it is not an OAuth access token.
func (h *Handler) authenticateManagement(w http.ResponseWriter, r *http.Request) *registry.Client {
	clientID := chi.URLParam(r, "clientID")
	client, err := h.registry.Get(r.Context(), clientID)
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, oauth.NewError(oauth.ErrorCodeInvalidRequest, "unknown client", http.StatusNotFound))
		return nil
	}
	if err != nil {
		writeOAuthError(w, err)
		return nil
	}

	if !h.registry.VerifyManagementToken(client, bearerToken(r)) {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeJSON(w, http.StatusUnauthorized,
			oauth.NewError(oauth.ErrorCodeInvalidToken, "invalid registration access token", http.StatusUnauthorized))
		return nil
	}
	return client
}

func (h *Handler) getClient(w http.ResponseWriter, r *http.Request) {
	client := h.authenticateManagement(w, r)
	if client == nil {
		return
	}

	resp, err := (&registry.Registration{Client: client}).Response(h.registrationClientURI(client.ClientID))
	if err != nil {
		writeOAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) updateClient(w http.ResponseWriter, r *http.Request) {
	client := h.authenticateManagement(w, r)
	if client == nil {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRegistrationBody))
	if err != nil {
		writeOAuthError(w, oauth.ErrInvalidRequest.WithDescription("failed to read request body"))
		return
	}

	// RFC 7592: a client_id in the body must match the registration being
	// managed.
	var idCheck struct {
		ClientID string `json:"client_id"`
	}
	if err := json.Unmarshal(body, &idCheck); err != nil {
		writeOAuthError(w, oauth.ErrInvalidRequest.WithDescription("request body is not a JSON object"))
		return
	}
	if idCheck.ClientID != "" && idCheck.ClientID != client.ClientID {
		writeOAuthError(w, oauth.ErrInvalidRequest.WithDescription("client_id in body does not match the registration"))
		return
	}

	var md registry.Metadata
	if err := json.Unmarshal(body, &md); err != nil {
		writeOAuthError(w, oauth.ErrInvalidRequest.WithDescription("request body is not valid client metadata"))
		return
	}

	updated, err := h.registry.Update(r.Context(), client.ClientID, &md)
	if err != nil {
		writeOAuthError(w, err)
		return
	}

	resp, err := (&registry.Registration{Client: updated}).Response(h.registrationClientURI(updated.ClientID))
	if err != nil {
		writeOAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) deleteClient(w http.ResponseWriter, r *http.Request) {
	client := h.authenticateManagement(w, r)
	if client == nil {
		return
	}

	if err := h.registry.Delete(r.Context(), client.ClientID); err != nil {
		writeOAuthError(w, err)
		return
	}
	// Deleting the registration takes its tokens with it.
	if err := h.engine.RevokeClientTokens(r.Context(), client.ClientID); err != nil {
		writeOAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func readMetadata(r *http.Request) (*registry.Metadata, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRegistrationBody))
	if err != nil {
		return nil, oauth.ErrInvalidRequest.WithDescription("failed to read request body")
	}

	var md registry.Metadata
	if err := json.Unmarshal(body, &md); err != nil {
		return nil, oauth.NewError(registry.ErrorCodeInvalidClientMetadata,
			"request body is not a JSON client metadata object", http.StatusBadRequest)
	}
	return &md, nil
}

func (h *Handler) registrationClientURI(clientID string) string {
	return h.cfg.Issuer + "/register/" + clientID
}
