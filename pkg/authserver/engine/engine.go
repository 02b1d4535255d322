// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package engine implements the OAuth authorization server core: the
// authorization code flow with PKCE, token issuance and rotation,
// revocation, introspection, and bearer token verification. Operations
// return protocol errors as values; the HTTP adapter renders them.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/stackmesh/authgate/pkg/authserver/keys"
	"github.com/stackmesh/authgate/pkg/authserver/registry"
	"github.com/stackmesh/authgate/pkg/authserver/storage"
	"github.com/stackmesh/authgate/pkg/authserver/upstream"
	"github.com/stackmesh/authgate/pkg/oauth"
)

// Audience is the aud claim on every issued access token. All downstream
// services gated by the proxy share it.
const Audience = "mcp-gateway"

// Token and state sizes in bytes of randomness.
const (
	flowStateBytes = 16
	authzCodeBytes = 32
	refreshBytes   = 32
	jtiBytes       = 16
)

// Default lifetimes, overridable via Config.
const (
	DefaultAccessTokenLifetime  = 30 * 24 * time.Hour
	DefaultRefreshTokenLifetime = 365 * 24 * time.Hour
	DefaultCodeLifetime         = 60 * time.Second
	DefaultFlowStateLifetime    = 5 * time.Minute
)

// Config carries the issuance parameters.
type Config struct {
	// Issuer is the iss claim and the base of all advertised endpoints.
	Issuer string

	AccessTokenLifetime  time.Duration
	RefreshTokenLifetime time.Duration
	CodeLifetime         time.Duration
	FlowStateLifetime    time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.AccessTokenLifetime <= 0 {
		out.AccessTokenLifetime = DefaultAccessTokenLifetime
	}
	if out.RefreshTokenLifetime <= 0 {
		out.RefreshTokenLifetime = DefaultRefreshTokenLifetime
	}
	if out.CodeLifetime <= 0 {
		out.CodeLifetime = DefaultCodeLifetime
	}
	if out.FlowStateLifetime <= 0 {
		out.FlowStateLifetime = DefaultFlowStateLifetime
	}
	return out
}

// Engine wires the registry, key manager, state store, and upstream
// federator into the OAuth operations.
type Engine struct {
	cfg       Config
	store     storage.Store
	keys      *keys.Manager
	registry  *registry.Registry
	federator *upstream.Federator

	// now is swapped in tests.
	now func() time.Time
}

// New creates an Engine. Zero lifetimes in cfg take the defaults.
func New(cfg Config, store storage.Store, km *keys.Manager, reg *registry.Registry, fed *upstream.Federator) *Engine {
	return &Engine{
		cfg:       cfg.withDefaults(),
		store:     store,
		keys:      km,
		registry:  reg,
		federator: fed,
		now:       time.Now,
	}
}

// FlowError is an authorization endpoint failure. When Redirectable is set
// the adapter sends the error to the client's redirect URI per RFC 6749
// Section 4.1.2.1; otherwise the redirect target is untrusted and the
// adapter renders an HTML error page instead.
type FlowError struct {
	Err          *oauth.Error
	Redirectable bool
	RedirectURI  string
	State        string
}

// Error implements the error interface.
func (e *FlowError) Error() string { return e.Err.Error() }

// Unwrap exposes the protocol error for errors.As.
func (e *FlowError) Unwrap() error { return e.Err }

// RedirectURL builds the error redirect for a redirectable failure.
func (e *FlowError) RedirectURL() string {
	return redirectWith(e.RedirectURI, url.Values{
		"error":             {e.Err.Code},
		"error_description": {e.Err.Description},
		"state":             {e.State},
	})
}

func pageError(oerr *oauth.Error) *FlowError {
	return &FlowError{Err: oerr}
}

func redirectError(oerr *oauth.Error, redirectURI, state string) *FlowError {
	return &FlowError{Err: oerr, Redirectable: true, RedirectURI: redirectURI, State: state}
}

// redirectWith appends params to the redirect URI's existing query string.
func redirectWith(redirectURI string, params url.Values) string {
	u, err := url.Parse(redirectURI)
	if err != nil {
		// Registered redirect URIs were validated at registration time.
		return redirectURI
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			if v != "" {
				q.Set(k, v)
			}
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// mapStoreErr converts state store failures into protocol errors. Missing
// keys are context-dependent and handled by each caller; everything else is
// an availability or server problem.
func mapStoreErr(err error) *oauth.Error {
	switch {
	case errors.Is(err, storage.ErrUnavailable):
		return oauth.ErrStoreUnavailable
	default:
		return oauth.ErrServerError
	}
}

func (e *Engine) putJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode record for %s: %w", key, err)
	}
	return e.store.Put(ctx, key, data, ttl)
}

// putJSONIfAbsent creates the record at key. Nonce-style entries (flow
// state, authorization codes) must never overwrite an existing key, so a
// collision on the random value is an error here.
func (e *Engine) putJSONIfAbsent(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode record for %s: %w", key, err)
	}
	created, err := e.store.PutIfAbsent(ctx, key, data, ttl)
	if err != nil {
		return err
	}
	if !created {
		return fmt.Errorf("key %s already exists", key)
	}
	return nil
}

// takeJSON atomically consumes the record at key. The bool result is false
// when the key was absent.
func (e *Engine) takeJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := e.store.Take(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode record at %s: %w", key, err)
	}
	return true, nil
}
