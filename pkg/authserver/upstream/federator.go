// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package upstream federates end-user identity to an upstream OAuth
// provider (a GitHub-style IdP): it builds the upstream authorize redirect,
// exchanges callback codes for upstream tokens, fetches the user profile,
// and enforces the user allowlist.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/stackmesh/authgate/pkg/logger"
)

// DefaultScopes is the minimum upstream scope set needed to read the
// authenticated user's identity and email.
var DefaultScopes = []string{"read:user", "user:email"}

const (
	defaultTimeout = 10 * time.Second

	// maxProfileBytes bounds the userinfo response body.
	maxProfileBytes = 1 << 20
)

// ErrUserNotAllowed is returned by Complete when the authenticated upstream
// user is not on the allowlist.
var ErrUserNotAllowed = errors.New("user not in allowlist")

// Profile is the upstream identity carried into issued tokens.
type Profile struct {
	UserID    string
	UserName  string
	UserEmail string
}

// Config configures the upstream provider connection.
type Config struct {
	ClientID     string
	ClientSecret string
	AuthorizeURL string
	TokenURL     string
	UserInfoURL  string

	// RedirectURL is this server's /callback endpoint as registered with
	// the upstream provider.
	RedirectURL string

	// Scopes defaults to DefaultScopes when empty.
	Scopes []string

	// AllowedUsers is "*" for any authenticated user, "" for nobody, or a
	// comma-separated list of upstream login names.
	AllowedUsers string

	// Timeout bounds each outbound call. Defaults to 10s.
	Timeout time.Duration
}

// Federator performs the upstream leg of the authorization flow.
type Federator struct {
	oauth       *oauth2.Config
	userInfoURL string

	allowAny bool
	allowed  map[string]bool

	client *http.Client

	// limiter bounds outbound pressure on the upstream provider across all
	// concurrent callback handlers.
	limiter *rate.Limiter
}

// New builds a Federator from cfg.
func New(cfg Config) *Federator {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	f := &Federator{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthorizeURL,
				TokenURL: cfg.TokenURL,
			},
			RedirectURL: cfg.RedirectURL,
			Scopes:      scopes,
		},
		userInfoURL: cfg.UserInfoURL,
		client:      &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(rate.Limit(20), 40),
	}

	if cfg.AllowedUsers == "*" {
		f.allowAny = true
	} else {
		f.allowed = make(map[string]bool)
		for _, user := range strings.Split(cfg.AllowedUsers, ",") {
			if user = strings.TrimSpace(user); user != "" {
				f.allowed[user] = true
			}
		}
	}
	return f
}

// Begin returns the upstream authorize URL carrying state, which the
// provider echoes back to /callback.
func (f *Federator) Begin(state string) string {
	return f.oauth.AuthCodeURL(state)
}

// Complete exchanges the upstream callback code for an upstream access
// token, fetches the user profile, and enforces the allowlist. It returns
// ErrUserNotAllowed when the authenticated user is not permitted.
func (f *Federator) Complete(ctx context.Context, code string) (*Profile, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("upstream rate limit: %w", err)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.client)
	token, err := f.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("upstream code exchange failed: %w", err)
	}

	profile, err := f.fetchProfile(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	if !f.Allowed(profile.UserName) {
		logger.Warnw("rejected upstream user not on allowlist", "user_name", profile.UserName)
		return nil, fmt.Errorf("%w: %s", ErrUserNotAllowed, profile.UserName)
	}

	logger.Infow("authenticated upstream user",
		"user_id", profile.UserID,
		"user_name", profile.UserName,
	)
	return profile, nil
}

// Allowed reports whether the upstream login name passes the allowlist.
func (f *Federator) Allowed(userName string) bool {
	if f.allowAny {
		return userName != ""
	}
	return f.allowed[userName]
}

// userInfo is the subset of the provider's user document we consume. GitHub
// returns a numeric id; json.Number keeps it intact either way.
type userInfo struct {
	ID    json.Number `json:"id"`
	Login string      `json:"login"`
	Email string      `json:"email"`
}

func (f *Federator) fetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProfileBytes)).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo response: %w", err)
	}
	if info.ID.String() == "" || info.Login == "" {
		return nil, errors.New("userinfo response missing id or login")
	}

	return &Profile{
		UserID:    info.ID.String(),
		UserName:  info.Login,
		UserEmail: info.Email,
	}, nil
}
