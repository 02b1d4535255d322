// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"net/url"

	"github.com/stackmesh/authgate/pkg/authserver/storage"
	"github.com/stackmesh/authgate/pkg/logger"
	"github.com/stackmesh/authgate/pkg/oauth"
)

// PKCE code challenge length bounds (base64url of SHA-256 is 43 chars, but
// RFC 7636 allows the verifier grammar for the challenge field).
const (
	minCodeChallengeLength = 43
	maxCodeChallengeLength = 128
)

// AuthorizeRequest is the parsed query of GET /authorize.
type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	CodeChallenge       string
	CodeChallengeMethod string
	State               string
	Scope               string
}

// Authorize validates an authorization request, parks it under a random
// flow state, and returns the upstream provider redirect URL. Failures come
// back as *FlowError; the client and redirect URI are authenticated before
// any error is allowed to redirect.
func (e *Engine) Authorize(ctx context.Context, req *AuthorizeRequest) (string, error) {
	client, err := e.registry.Get(ctx, req.ClientID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", pageError(oauth.ErrInvalidRequest.WithDescription("unknown client_id"))
	}
	if err != nil {
		return "", pageError(mapStoreErr(err))
	}

	if req.RedirectURI == "" || !client.AllowsRedirectURI(req.RedirectURI) {
		logger.Warnw("authorize request with unregistered redirect_uri",
			"client_id", req.ClientID,
			"redirect_uri", req.RedirectURI,
		)
		return "", pageError(oauth.ErrInvalidRequest.WithDescription("redirect_uri is not registered for this client"))
	}

	// From here on the redirect target is trusted; protocol errors go back
	// to the client by redirect.
	if req.ResponseType != oauth.ResponseTypeCode {
		return "", redirectError(
			oauth.NewError(oauth.ErrorCodeUnsupportedResponseType, "only response_type=code is supported", 0),
			req.RedirectURI, req.State)
	}
	if req.CodeChallengeMethod != oauth.PKCEChallengeMethodS256 {
		return "", redirectError(
			oauth.ErrInvalidRequest.WithDescription("code_challenge_method must be S256"),
			req.RedirectURI, req.State)
	}
	if n := len(req.CodeChallenge); n < minCodeChallengeLength || n > maxCodeChallengeLength {
		return "", redirectError(
			oauth.ErrInvalidRequest.WithDescription("code_challenge must be 43-128 characters"),
			req.RedirectURI, req.State)
	}
	if req.State == "" {
		return "", redirectError(
			oauth.ErrInvalidRequest.WithDescription("state is required"),
			req.RedirectURI, "")
	}

	state, err := oauth.RandomToken(flowStateBytes)
	if err != nil {
		return "", redirectError(oauth.ErrServerError, req.RedirectURI, req.State)
	}

	record := &flowState{
		ClientID:      req.ClientID,
		RedirectURI:   req.RedirectURI,
		CodeChallenge: req.CodeChallenge,
		Scope:         req.Scope,
		ClientState:   req.State,
		CreatedAt:     e.now().Unix(),
	}
	if err := e.putJSONIfAbsent(ctx, storage.StateKey(state), record, e.cfg.FlowStateLifetime); err != nil {
		return "", redirectError(mapStoreErr(err), req.RedirectURI, req.State)
	}

	logger.Debugw("parked authorization request", "client_id", req.ClientID)
	return e.federator.Begin(state), nil
}

// Callback handles the upstream provider's return leg. The flow state is
// consumed atomically so a replayed callback finds nothing. On upstream
// failure or a disallowed user the client gets an access_denied redirect.
func (e *Engine) Callback(ctx context.Context, code, state string) (string, error) {
	if code == "" || state == "" {
		return "", pageError(oauth.ErrInvalidRequest.WithDescription("missing code or state"))
	}

	var flow flowState
	found, err := e.takeJSON(ctx, storage.StateKey(state), &flow)
	if err != nil {
		return "", pageError(mapStoreErr(err))
	}
	if !found {
		return "", pageError(oauth.ErrInvalidRequest.WithDescription("unknown or expired authorization state"))
	}

	profile, err := e.federator.Complete(ctx, code)
	if err != nil {
		logger.Warnw("upstream authentication failed", "client_id", flow.ClientID, "error", err)
		return redirectWith(flow.RedirectURI, url.Values{
			"error":             {oauth.ErrorCodeAccessDenied},
			"error_description": {"upstream authentication failed"},
			"state":             {flow.ClientState},
		}), nil
	}

	authzCode, err := oauth.RandomToken(authzCodeBytes)
	if err != nil {
		return "", pageError(oauth.ErrServerError)
	}

	record := &codeRecord{
		ClientID:      flow.ClientID,
		RedirectURI:   flow.RedirectURI,
		CodeChallenge: flow.CodeChallenge,
		Scope:         flow.Scope,
		UserID:        profile.UserID,
		UserName:      profile.UserName,
		UserEmail:     profile.UserEmail,
		CreatedAt:     e.now().Unix(),
	}
	if err := e.putJSONIfAbsent(ctx, storage.CodeKey(authzCode), record, e.cfg.CodeLifetime); err != nil {
		return "", pageError(mapStoreErr(err))
	}

	logger.Infow("issued authorization code",
		"client_id", flow.ClientID,
		"user_name", profile.UserName,
	)
	return redirectWith(flow.RedirectURI, url.Values{
		"code":  {authzCode},
		"state": {flow.ClientState},
	}), nil
}
