// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package handlers is the HTTP adapter for the authorization server: route
// dispatch, request parsing, and error rendering over the engine and
// registry. Protocol behavior lives below this package.
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/stackmesh/authgate/pkg/authserver/engine"
	"github.com/stackmesh/authgate/pkg/authserver/keys"
	"github.com/stackmesh/authgate/pkg/authserver/registry"
	"github.com/stackmesh/authgate/pkg/authserver/storage"
	"github.com/stackmesh/authgate/pkg/telemetry"
)

// Config carries the adapter's deployment parameters.
type Config struct {
	// Issuer is the externally visible base URL of this server.
	Issuer string

	// BaseDomain is the apex domain the gateway fronts; the protected
	// resource document advertises it. Falls back to Issuer when empty.
	BaseDomain string

	// RateLimitPerMinute caps per-IP requests to /register and /token.
	// Zero disables limiting.
	RateLimitPerMinute int
}

// Handler owns the HTTP surface.
type Handler struct {
	cfg      Config
	engine   *engine.Engine
	registry *registry.Registry
	keys     *keys.Manager
	store    storage.Store
}

// New wires the adapter.
func New(cfg Config, eng *engine.Engine, reg *registry.Registry, km *keys.Manager, store storage.Store) *Handler {
	return &Handler{cfg: cfg, engine: eng, registry: reg, keys: km, store: store}
}

// Router builds the chi router with the full endpoint surface.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Browser-based MCP clients hit discovery, registration, and token
	// endpoints cross-origin.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/.well-known/oauth-authorization-server", h.authorizationServerMetadata)
	r.Get("/.well-known/oauth-protected-resource", h.protectedResourceMetadata)
	r.Get("/jwks", h.jwks)
	r.Get("/health", h.health)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Get("/authorize", h.authorize)
	r.Get("/callback", h.callback)

	r.Group(func(g chi.Router) {
		if h.cfg.RateLimitPerMinute > 0 {
			g.Use(httprate.LimitByIP(h.cfg.RateLimitPerMinute, time.Minute))
		}
		g.Post("/register", h.register)
		g.Post("/token", h.token)
	})

	r.Route("/register/{clientID}", func(g chi.Router) {
		g.Get("/", h.getClient)
		g.Put("/", h.updateClient)
		g.Delete("/", h.deleteClient)
	})

	r.Post("/revoke", h.revoke)
	r.Post("/introspect", h.introspect)

	r.Get("/verify", h.verify)
	r.Post("/verify", h.verify)

	return r
}
