// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/stackmesh/authgate/pkg/authserver/storage"
	"github.com/stackmesh/authgate/pkg/logger"
	"github.com/stackmesh/authgate/pkg/telemetry"
)

// Revoke implements RFC 7009: a token that parses as one of our JWTs is
// revoked by jti; anything else is treated as a refresh token and revoked
// by its keyed hash. Revoking a token that does not exist is a success.
func (e *Engine) Revoke(ctx context.Context, req *TokenRequest, token string) error {
	if _, oerr := e.authenticateClient(ctx, req.ClientID, req.ClientSecret); oerr != nil {
		return oerr
	}
	if token == "" {
		return nil
	}

	if claims, err := e.keys.Verify(token); err == nil {
		jti, _ := claims["jti"].(string)
		sub, _ := claims["sub"].(string)
		clientID, _ := claims["client_id"].(string)
		if jti == "" {
			return nil
		}
		if err := e.dropToken(ctx, jti, sub, clientID); err != nil {
			return mapStoreErr(err)
		}
		telemetry.TokensRevoked.Inc()
		logger.Infow("revoked access token", "jti", jti, "client_id", clientID)
		return nil
	}

	key := storage.RefreshKey(e.keys.HashToken(token))
	var refresh refreshRecord
	found, err := e.takeJSON(ctx, key, &refresh)
	if err != nil {
		return mapStoreErr(err)
	}
	if found {
		// Revoking a refresh token retires the access token paired with it.
		if refresh.ParentJTI != "" {
			if err := e.dropToken(ctx, refresh.ParentJTI, refresh.UserID, refresh.ClientID); err != nil {
				return mapStoreErr(err)
			}
		}
		telemetry.TokensRevoked.Inc()
		logger.Infow("revoked refresh token", "client_id", refresh.ClientID)
	}
	return nil
}

// IntrospectionResponse is the RFC 7662 Section 2.2 body.
type IntrospectionResponse struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Username  string `json:"username,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
	Sub       string `json:"sub,omitempty"`
	Aud       string `json:"aud,omitempty"`
	Iss       string `json:"iss,omitempty"`
	JTI       string `json:"jti,omitempty"`
}

// Introspect implements RFC 7662. Tokens that fail verification or whose
// jti is no longer live report active=false rather than an error.
func (e *Engine) Introspect(ctx context.Context, req *TokenRequest, token string) (*IntrospectionResponse, error) {
	if _, oerr := e.authenticateClient(ctx, req.ClientID, req.ClientSecret); oerr != nil {
		return nil, oerr
	}

	inactive := &IntrospectionResponse{Active: false}
	claims, err := e.keys.Verify(token)
	if err != nil {
		return inactive, nil
	}

	jti, _ := claims["jti"].(string)
	if jti == "" {
		return inactive, nil
	}
	if _, err := e.store.Get(ctx, storage.TokenKey(jti)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return inactive, nil
		}
		return nil, mapStoreErr(err)
	}

	exp, _ := claims["exp"].(float64)
	iat, _ := claims["iat"].(float64)
	resp := &IntrospectionResponse{
		Active:    true,
		TokenType: "Bearer",
		Exp:       int64(exp),
		Iat:       int64(iat),
		JTI:       jti,
	}
	resp.Scope, _ = claims["scope"].(string)
	resp.ClientID, _ = claims["client_id"].(string)
	resp.Username, _ = claims["username"].(string)
	resp.Sub, _ = claims["sub"].(string)
	resp.Aud, _ = claims["aud"].(string)
	resp.Iss, _ = claims["iss"].(string)
	return resp, nil
}

// RevokeClientTokens drops every live access token issued to a client.
// Used when a registration is deleted. Refresh tokens die on their next use
// because the client no longer authenticates.
func (e *Engine) RevokeClientTokens(ctx context.Context, clientID string) error {
	jtis, err := e.store.SMembers(ctx, storage.ClientTokensKey(clientID))
	if err != nil {
		return mapStoreErr(err)
	}

	for _, jti := range jtis {
		var token tokenRecord
		data, err := e.store.Get(ctx, storage.TokenKey(jti))
		switch {
		case errors.Is(err, storage.ErrNotFound):
			// Already expired; just clear the membership.
		case err != nil:
			return mapStoreErr(err)
		default:
			if uerr := json.Unmarshal(data, &token); uerr == nil {
				if err := e.dropToken(ctx, jti, token.UserID, clientID); err != nil {
					return mapStoreErr(err)
				}
				telemetry.TokensRevoked.Inc()
				continue
			}
		}
		if err := e.store.SRem(ctx, storage.ClientTokensKey(clientID), jti); err != nil {
			return mapStoreErr(err)
		}
	}

	if len(jtis) > 0 {
		logger.Infow("revoked tokens for deleted client", "client_id", clientID, "count", len(jtis))
	}
	return nil
}
