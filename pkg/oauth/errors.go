// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import "net/http"

// OAuth 2.0 error codes per RFC 6749 Section 5.2 and RFC 6750 Section 3.1.
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeInvalidClient           = "invalid_client"
	ErrorCodeInvalidGrant            = "invalid_grant"
	ErrorCodeInvalidScope            = "invalid_scope"
	ErrorCodeUnauthorizedClient      = "unauthorized_client"
	ErrorCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrorCodeUnsupportedResponseType = "unsupported_response_type"
	ErrorCodeAccessDenied            = "access_denied"
	ErrorCodeInvalidToken            = "invalid_token"
	ErrorCodeServerError             = "server_error"
	ErrorCodeUnavailable             = "temporarily_unavailable"
)

// Error is an OAuth protocol error carried as a result value. The HTTP
// adapter maps it to the RFC 6749 JSON envelope (or a redirect, for
// authorization endpoint errors); no other error type crosses the HTTP
// boundary.
type Error struct {
	// Code is the RFC 6749 error code.
	Code string `json:"error"`

	// Description is a human-readable explanation safe to show to clients.
	Description string `json:"error_description,omitempty"`

	// Status is the HTTP status the adapter should render. Not serialized.
	Status int `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

// WithDescription returns a copy of the error with the given description.
func (e *Error) WithDescription(desc string) *Error {
	return &Error{Code: e.Code, Description: desc, Status: e.Status}
}

// NewError creates an OAuth error with an explicit HTTP status.
func NewError(code, description string, status int) *Error {
	return &Error{Code: code, Description: description, Status: status}
}

// Predefined protocol errors. Callers refine them with WithDescription.
var (
	// ErrInvalidRequest is returned for malformed or incomplete requests.
	ErrInvalidRequest = &Error{Code: ErrorCodeInvalidRequest, Status: http.StatusBadRequest}

	// ErrInvalidClient is returned when client authentication fails.
	ErrInvalidClient = &Error{Code: ErrorCodeInvalidClient, Status: http.StatusUnauthorized}

	// ErrInvalidGrant is returned for expired, revoked, or already-redeemed
	// codes and refresh tokens. It deliberately does not reveal whether the
	// presented value ever existed.
	ErrInvalidGrant = &Error{Code: ErrorCodeInvalidGrant, Status: http.StatusBadRequest}

	// ErrUnsupportedGrantType is returned for grant types outside the
	// supported set.
	ErrUnsupportedGrantType = &Error{Code: ErrorCodeUnsupportedGrantType, Status: http.StatusBadRequest}

	// ErrAccessDenied is returned when the resource owner or the
	// authorization server denies the request.
	ErrAccessDenied = &Error{Code: ErrorCodeAccessDenied, Status: http.StatusForbidden}

	// ErrInvalidToken is returned by the verification endpoint for missing,
	// malformed, expired, or revoked bearer tokens.
	ErrInvalidToken = &Error{Code: ErrorCodeInvalidToken, Status: http.StatusUnauthorized}

	// ErrServerError is returned for unexpected internal failures.
	ErrServerError = &Error{Code: ErrorCodeServerError, Status: http.StatusInternalServerError}

	// ErrStoreUnavailable is returned when the state store cannot be
	// reached. The adapter renders it as 503 with Retry-After.
	ErrStoreUnavailable = &Error{
		Code:        ErrorCodeUnavailable,
		Description: "service temporarily unavailable",
		Status:      http.StatusServiceUnavailable,
	}
)
