// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"

	"github.com/stackmesh/authgate/pkg/authserver/storage"
	"github.com/stackmesh/authgate/pkg/oauth"
)

// VerifiedToken is the identity the reverse proxy forwards downstream.
type VerifiedToken struct {
	UserID   string
	UserName string

	// Token is the presented bearer, verbatim, for the X-Auth-Token header.
	Token string
}

// Verify checks a bearer token for the ForwardAuth endpoint: signature,
// expiry, audience, and jti liveness. One store lookup, no outbound calls;
// this sits on the hot path of every proxied request.
func (e *Engine) Verify(ctx context.Context, bearer string) (*VerifiedToken, error) {
	if bearer == "" {
		return nil, oauth.ErrInvalidToken.WithDescription("missing bearer token")
	}

	claims, err := e.keys.Verify(bearer)
	if err != nil {
		return nil, oauth.ErrInvalidToken.WithDescription("token signature or expiry check failed")
	}

	if aud, _ := claims["aud"].(string); aud != Audience {
		return nil, oauth.ErrInvalidToken.WithDescription("token audience mismatch")
	}

	jti, _ := claims["jti"].(string)
	if jti == "" {
		return nil, oauth.ErrInvalidToken.WithDescription("token has no jti")
	}
	if _, err := e.store.Get(ctx, storage.TokenKey(jti)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, oauth.ErrInvalidToken.WithDescription("token has been revoked")
		}
		return nil, mapStoreErr(err)
	}

	sub, _ := claims["sub"].(string)
	username, _ := claims["username"].(string)
	return &VerifiedToken{
		UserID:   sub,
		UserName: username,
		Token:    bearer,
	}, nil
}
