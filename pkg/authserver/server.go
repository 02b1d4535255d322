// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stackmesh/authgate/pkg/authserver/engine"
	"github.com/stackmesh/authgate/pkg/authserver/handlers"
	"github.com/stackmesh/authgate/pkg/authserver/keys"
	"github.com/stackmesh/authgate/pkg/authserver/registry"
	"github.com/stackmesh/authgate/pkg/authserver/storage"
	"github.com/stackmesh/authgate/pkg/authserver/upstream"
	"github.com/stackmesh/authgate/pkg/logger"
)

// shutdownGrace is how long in-flight requests get after SIGTERM.
const shutdownGrace = 30 * time.Second

// Server is the assembled authorization server.
type Server struct {
	cfg   *Config
	store storage.Store
	http  *http.Server
}

// NewServer wires every component from cfg.
func NewServer(ctx context.Context, cfg *Config) (*Server, error) {
	store, err := storage.New(ctx, cfg.StoreURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create state store: %w", err)
	}

	km, err := keys.LoadOrGenerate(cfg.SigningKeyPath, []byte(cfg.HMACSecret))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to load signing keys: %w", err)
	}

	reg := registry.New(store, km, cfg.ClientLifetime)
	fed := upstream.New(upstream.Config{
		ClientID:     cfg.IDPClientID,
		ClientSecret: cfg.IDPClientSecret,
		AuthorizeURL: cfg.IDPAuthorizeURL,
		TokenURL:     cfg.IDPTokenURL,
		UserInfoURL:  cfg.IDPUserInfoURL,
		RedirectURL:  cfg.CallbackURL(),
		AllowedUsers: cfg.AllowedUsers,
	})
	eng := engine.New(engine.Config{
		Issuer:               cfg.IssuerURL,
		AccessTokenLifetime:  cfg.AccessTokenLifetime,
		RefreshTokenLifetime: cfg.RefreshTokenLifetime,
		CodeLifetime:         cfg.CodeLifetime,
	}, store, km, reg, fed)

	h := handlers.New(handlers.Config{
		Issuer:             cfg.IssuerURL,
		BaseDomain:         cfg.BaseDomain,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}, eng, reg, km, store)

	return &Server{
		cfg:   cfg,
		store: store,
		http: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           h.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Run serves HTTP until ctx is canceled, then drains in-flight requests for
// up to the grace period.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Infow("authorization server listening",
			"addr", s.cfg.ListenAddr,
			"issuer", s.cfg.IssuerURL,
		)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down, draining in-flight requests")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown did not complete cleanly: %w", err)
		}
		return nil
	})

	err := g.Wait()
	if cerr := s.store.Close(); cerr != nil {
		logger.Errorw("failed to close state store", "error", cerr)
	}
	return err
}
