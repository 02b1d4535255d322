// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stackmesh/authgate/pkg/authserver/registry"
	"github.com/stackmesh/authgate/pkg/authserver/storage"
	"github.com/stackmesh/authgate/pkg/logger"
	"github.com/stackmesh/authgate/pkg/oauth"
	"github.com/stackmesh/authgate/pkg/telemetry"
)

// TokenRequest is the parsed form body of POST /token, plus the client
// credentials resolved from either HTTP Basic or the body.
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string

	// authorization_code grant.
	Code         string
	RedirectURI  string
	CodeVerifier string

	// refresh_token grant.
	RefreshToken string
}

// TokenResponse is the RFC 6749 Section 5.1 success body.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Token authenticates the client and dispatches on grant_type. All
// failures are *oauth.Error values.
func (e *Engine) Token(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	client, oerr := e.authenticateClient(ctx, req.ClientID, req.ClientSecret)
	if oerr != nil {
		return nil, oerr
	}

	// Grant types this server does not implement at all are rejected before
	// consulting the client's registration.
	switch req.GrantType {
	case oauth.GrantTypeAuthorizationCode, oauth.GrantTypeRefreshToken:
	default:
		return nil, oauth.ErrUnsupportedGrantType.WithDescription("supported grant types: authorization_code, refresh_token")
	}
	if !client.AllowsGrantType(req.GrantType) {
		return nil, oauth.NewError(oauth.ErrorCodeUnauthorizedClient,
			"client is not registered for this grant type", http.StatusBadRequest)
	}

	if req.GrantType == oauth.GrantTypeAuthorizationCode {
		return e.redeemCode(ctx, client, req)
	}
	return e.rotateRefresh(ctx, client, req)
}

// authenticateClient verifies client credentials per the registered
// token_endpoint_auth_method. Unknown clients and bad secrets produce the
// same invalid_client error.
func (e *Engine) authenticateClient(ctx context.Context, clientID, clientSecret string) (*registry.Client, *oauth.Error) {
	if clientID == "" {
		return nil, oauth.ErrInvalidClient.WithDescription("client authentication required")
	}

	client, err := e.registry.Get(ctx, clientID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, oauth.ErrInvalidClient.WithDescription("client authentication failed")
	}
	if err != nil {
		return nil, mapStoreErr(err)
	}

	if client.IsPublic() {
		// Public clients carry no secret; PKCE is their proof.
		return client, nil
	}
	if !e.registry.VerifySecret(client, clientSecret) {
		return nil, oauth.ErrInvalidClient.WithDescription("client authentication failed")
	}
	return client, nil
}

func (e *Engine) redeemCode(ctx context.Context, client *registry.Client, req *TokenRequest) (*TokenResponse, error) {
	if req.Code == "" {
		return nil, oauth.ErrInvalidRequest.WithDescription("code is required")
	}

	var code codeRecord
	found, err := e.takeJSON(ctx, storage.CodeKey(req.Code), &code)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if !found {
		return nil, oauth.ErrInvalidGrant.WithDescription("authorization code is invalid or expired")
	}

	// The code is consumed at this point. Any mismatch below burns it; a
	// second attempt with corrected parameters must restart the flow.
	if code.ClientID != client.ClientID {
		return nil, oauth.ErrInvalidGrant.WithDescription("authorization code was issued to another client")
	}
	if req.RedirectURI != code.RedirectURI {
		return nil, oauth.ErrInvalidGrant.WithDescription("redirect_uri does not match the authorization request")
	}
	if !oauth.VerifyPKCE(req.CodeVerifier, code.CodeChallenge) {
		return nil, oauth.ErrInvalidGrant.WithDescription("PKCE verification failed")
	}

	resp, err := e.issueTokens(ctx, client.ClientID, &identity{
		UserID:    code.UserID,
		UserName:  code.UserName,
		UserEmail: code.UserEmail,
	}, code.Scope)
	if err != nil {
		return nil, err
	}
	telemetry.TokensIssued.WithLabelValues(oauth.GrantTypeAuthorizationCode).Inc()
	return resp, nil
}

func (e *Engine) rotateRefresh(ctx context.Context, client *registry.Client, req *TokenRequest) (*TokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, oauth.ErrInvalidRequest.WithDescription("refresh_token is required")
	}

	var refresh refreshRecord
	found, err := e.takeJSON(ctx, storage.RefreshKey(e.keys.HashToken(req.RefreshToken)), &refresh)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if !found {
		return nil, oauth.ErrInvalidGrant.WithDescription("refresh token is invalid or expired")
	}
	if refresh.ClientID != client.ClientID {
		return nil, oauth.ErrInvalidGrant.WithDescription("refresh token was issued to another client")
	}

	// Rotation: the old refresh token is already consumed; retire the
	// access token it traveled with.
	if refresh.ParentJTI != "" {
		if err := e.dropToken(ctx, refresh.ParentJTI, refresh.UserID, refresh.ClientID); err != nil {
			return nil, mapStoreErr(err)
		}
	}

	resp, err := e.issueTokens(ctx, client.ClientID, &identity{
		UserID:    refresh.UserID,
		UserName:  refresh.UserName,
		UserEmail: refresh.UserEmail,
	}, refresh.Scope)
	if err != nil {
		return nil, err
	}
	telemetry.TokensIssued.WithLabelValues(oauth.GrantTypeRefreshToken).Inc()
	return resp, nil
}

type identity struct {
	UserID    string
	UserName  string
	UserEmail string
}

// issueTokens mints the access token JWT and its paired refresh token, and
// records both in the state store.
func (e *Engine) issueTokens(ctx context.Context, clientID string, user *identity, scope string) (*TokenResponse, error) {
	now := e.now()
	expiresAt := now.Add(e.cfg.AccessTokenLifetime)

	jti, err := oauth.RandomToken(jtiBytes)
	if err != nil {
		return nil, oauth.ErrServerError
	}
	refreshToken, err := oauth.RandomToken(refreshBytes)
	if err != nil {
		return nil, oauth.ErrServerError
	}

	claims := jwt.MapClaims{
		"iss":       e.cfg.Issuer,
		"sub":       user.UserID,
		"aud":       Audience,
		"exp":       expiresAt.Unix(),
		"iat":       now.Unix(),
		"jti":       jti,
		"client_id": clientID,
		"username":  user.UserName,
		"email":     user.UserEmail,
	}
	if scope != "" {
		claims["scope"] = scope
	}

	accessToken, err := e.keys.Sign(claims)
	if err != nil {
		logger.Errorw("failed to sign access token", "error", err)
		return nil, oauth.ErrServerError
	}

	token := &tokenRecord{
		ClientID:  clientID,
		UserID:    user.UserID,
		UserName:  user.UserName,
		Scope:     scope,
		IssuedAt:  now.Unix(),
		ExpiresAt: expiresAt.Unix(),
	}
	if err := e.putJSON(ctx, storage.TokenKey(jti), token, e.cfg.AccessTokenLifetime); err != nil {
		return nil, mapStoreErr(err)
	}

	refresh := &refreshRecord{
		ClientID:  clientID,
		UserID:    user.UserID,
		UserName:  user.UserName,
		UserEmail: user.UserEmail,
		Scope:     scope,
		IssuedAt:  now.Unix(),
		ParentJTI: jti,
	}
	refreshKey := storage.RefreshKey(e.keys.HashToken(refreshToken))
	if err := e.putJSON(ctx, refreshKey, refresh, e.cfg.RefreshTokenLifetime); err != nil {
		return nil, mapStoreErr(err)
	}

	if err := e.store.SAdd(ctx, storage.UserTokensKey(user.UserID), jti); err != nil {
		return nil, mapStoreErr(err)
	}
	if err := e.store.SAdd(ctx, storage.ClientTokensKey(clientID), jti); err != nil {
		return nil, mapStoreErr(err)
	}

	logger.Infow("issued tokens",
		"client_id", clientID,
		"user_id", user.UserID,
		"jti", jti,
		"expires_in", int64(e.cfg.AccessTokenLifetime.Seconds()),
	)
	return &TokenResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(e.cfg.AccessTokenLifetime.Seconds()),
		RefreshToken: refreshToken,
		Scope:        scope,
	}, nil
}

// dropToken removes a live access token and its set memberships.
func (e *Engine) dropToken(ctx context.Context, jti, userID, clientID string) error {
	if err := e.store.Delete(ctx, storage.TokenKey(jti)); err != nil {
		return err
	}
	if userID != "" {
		if err := e.store.SRem(ctx, storage.UserTokensKey(userID), jti); err != nil {
			return err
		}
	}
	if clientID != "" {
		if err := e.store.SRem(ctx, storage.ClientTokensKey(clientID), jti); err != nil {
			return err
		}
	}
	return nil
}
