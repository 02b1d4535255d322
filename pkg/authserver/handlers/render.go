// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"github.com/stackmesh/authgate/pkg/logger"
	"github.com/stackmesh/authgate/pkg/oauth"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorw("failed to encode response", "error", err)
	}
}

// writeOAuthError renders an error as the RFC 6749 JSON envelope. Store
// unavailability gets Retry-After; invalid_client gets the Basic challenge
// required at the token endpoint.
func writeOAuthError(w http.ResponseWriter, err error) {
	oerr := asOAuthError(err)
	switch {
	case oerr.Status == http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
	case oerr.Code == oauth.ErrorCodeInvalidClient:
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth", error="invalid_client"`)
	}
	status := oerr.Status
	if status == 0 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, oerr)
}

func asOAuthError(err error) *oauth.Error {
	var oerr *oauth.Error
	if errors.As(err, &oerr) {
		return oerr
	}
	logger.Errorw("unexpected internal error", "error", err)
	return oauth.ErrServerError.WithDescription("internal error")
}

var errorPage = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html>
<head><title>Authorization Error</title></head>
<body>
<h1>Authorization Error</h1>
<p>{{.Description}}</p>
<p>Your client sent an authorization request this server cannot safely
complete. Please reconnect the client and try again.</p>
</body>
</html>
`))

// writeErrorPage renders the HTML error shown when the redirect target
// itself is untrusted and redirecting the error would be unsafe.
func writeErrorPage(w http.ResponseWriter, err error) {
	oerr := asOAuthError(err)
	status := oerr.Status
	if status == 0 {
		status = http.StatusBadRequest
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	w.WriteHeader(status)
	if terr := errorPage.Execute(w, oerr); terr != nil {
		logger.Errorw("failed to render error page", "error", terr)
	}
}

// cacheable marks public discovery documents as cacheable for an hour.
func cacheable(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
