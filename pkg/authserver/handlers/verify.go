// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/stackmesh/authgate/pkg/telemetry"
)

// bearerToken extracts the bearer token from the Authorization header, or
// returns "" when absent or malformed.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// verify is the ForwardAuth endpoint called by the reverse proxy on every
// gated request. It is latency-budgeted; the histogram keeps it honest.
func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { telemetry.VerifyDuration.Observe(time.Since(start).Seconds()) }()

	verified, err := h.engine.Verify(r.Context(), bearerToken(r))
	if err != nil {
		oerr := asOAuthError(err)
		if oerr.Status == http.StatusServiceUnavailable {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusServiceUnavailable, oerr)
			return
		}
		w.Header().Set("WWW-Authenticate", `Bearer realm="mcp", error="invalid_token"`)
		writeJSON(w, http.StatusUnauthorized, oerr)
		return
	}

	w.Header().Set("X-User-Id", verified.UserID)
	w.Header().Set("X-User-Name", verified.UserName)
	w.Header().Set("X-Auth-Token", verified.Token)
	w.WriteHeader(http.StatusOK)
}
