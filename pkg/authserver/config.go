// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package authserver assembles the OAuth authorization server from its
// parts: configuration, state store, key manager, client registry, upstream
// federator, engine, and the HTTP surface.
package authserver

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/stackmesh/authgate/pkg/authserver/keys"
	"github.com/stackmesh/authgate/pkg/authserver/storage"
)

// Configuration defaults.
const (
	DefaultListenAddr           = ":8080"
	DefaultClientLifetime       = 90 * 24 * time.Hour
	DefaultAccessTokenLifetime  = 30 * 24 * time.Hour
	DefaultRefreshTokenLifetime = 365 * 24 * time.Hour
	DefaultCodeLifetime         = 60 * time.Second

	// GitHub endpoints, the default upstream provider.
	defaultIDPAuthorizeURL = "https://github.com/login/oauth/authorize"
	defaultIDPTokenURL     = "https://github.com/login/oauth/access_token" //nolint:gosec // endpoint URL, not a credential
	defaultIDPUserInfoURL  = "https://api.github.com/user"
)

// Config is the server configuration, read from the environment at startup.
type Config struct {
	IssuerURL  string
	BaseDomain string
	ListenAddr string
	StoreURL   string

	IDPClientID     string
	IDPClientSecret string
	IDPAuthorizeURL string
	IDPTokenURL     string
	IDPUserInfoURL  string
	AllowedUsers    string

	SigningKeyPath string
	HMACSecret     string

	ClientLifetime       time.Duration
	AccessTokenLifetime  time.Duration
	RefreshTokenLifetime time.Duration
	CodeLifetime         time.Duration

	RateLimitPerMinute int
	Debug              bool
}

// LoadConfig reads configuration from the environment and validates it.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("LISTEN_ADDR", DefaultListenAddr)
	v.SetDefault("STORE_URL", storage.MemoryStoreURL)
	v.SetDefault("IDP_AUTHORIZE_URL", defaultIDPAuthorizeURL)
	v.SetDefault("IDP_TOKEN_URL", defaultIDPTokenURL)
	v.SetDefault("IDP_USERINFO_URL", defaultIDPUserInfoURL)
	v.SetDefault("CLIENT_LIFETIME_SECONDS", int64(DefaultClientLifetime.Seconds()))
	v.SetDefault("ACCESS_TOKEN_LIFETIME_SECONDS", int64(DefaultAccessTokenLifetime.Seconds()))
	v.SetDefault("REFRESH_TOKEN_LIFETIME_SECONDS", int64(DefaultRefreshTokenLifetime.Seconds()))
	v.SetDefault("AUTHZ_CODE_LIFETIME_SECONDS", int64(DefaultCodeLifetime.Seconds()))
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 0)

	cfg := &Config{
		IssuerURL:            strings.TrimSuffix(v.GetString("ISSUER_URL"), "/"),
		BaseDomain:           v.GetString("BASE_DOMAIN"),
		ListenAddr:           v.GetString("LISTEN_ADDR"),
		StoreURL:             v.GetString("STORE_URL"),
		IDPClientID:          v.GetString("IDP_CLIENT_ID"),
		IDPClientSecret:      v.GetString("IDP_CLIENT_SECRET"),
		IDPAuthorizeURL:      v.GetString("IDP_AUTHORIZE_URL"),
		IDPTokenURL:          v.GetString("IDP_TOKEN_URL"),
		IDPUserInfoURL:       v.GetString("IDP_USERINFO_URL"),
		AllowedUsers:         v.GetString("ALLOWED_USERS"),
		SigningKeyPath:       v.GetString("JWT_SIGNING_KEY_PATH"),
		HMACSecret:           v.GetString("HMAC_SECRET"),
		ClientLifetime:       time.Duration(v.GetInt64("CLIENT_LIFETIME_SECONDS")) * time.Second,
		AccessTokenLifetime:  time.Duration(v.GetInt64("ACCESS_TOKEN_LIFETIME_SECONDS")) * time.Second,
		RefreshTokenLifetime: time.Duration(v.GetInt64("REFRESH_TOKEN_LIFETIME_SECONDS")) * time.Second,
		CodeLifetime:         time.Duration(v.GetInt64("AUTHZ_CODE_LIFETIME_SECONDS")) * time.Second,
		RateLimitPerMinute:   v.GetInt("RATE_LIMIT_PER_MINUTE"),
		Debug:                v.GetBool("DEBUG"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required keys and value constraints.
func (c *Config) Validate() error {
	var errs []error
	if c.IssuerURL == "" {
		errs = append(errs, errors.New("ISSUER_URL is required"))
	} else if !strings.HasPrefix(c.IssuerURL, "https://") && !strings.HasPrefix(c.IssuerURL, "http://") {
		errs = append(errs, fmt.Errorf("ISSUER_URL %q must be an absolute http(s) URL", c.IssuerURL))
	}
	if c.IDPClientID == "" {
		errs = append(errs, errors.New("IDP_CLIENT_ID is required"))
	}
	if c.IDPClientSecret == "" {
		errs = append(errs, errors.New("IDP_CLIENT_SECRET is required"))
	}
	if c.SigningKeyPath == "" {
		errs = append(errs, errors.New("JWT_SIGNING_KEY_PATH is required"))
	}
	if len(c.HMACSecret) < keys.MinHMACSecretLength {
		errs = append(errs, fmt.Errorf("HMAC_SECRET must be at least %d bytes", keys.MinHMACSecretLength))
	}
	if c.AccessTokenLifetime <= 0 || c.RefreshTokenLifetime <= 0 || c.CodeLifetime <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	return errors.Join(errs...)
}

// CallbackURL is the redirect URI registered with the upstream provider.
func (c *Config) CallbackURL() string {
	return c.IssuerURL + "/callback"
}
