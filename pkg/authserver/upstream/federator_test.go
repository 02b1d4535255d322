// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIdP is an httptest stand-in for a GitHub-style provider.
func fakeIdP(t *testing.T, userDoc string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"bad_verification_code"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"upstream-token","token_type":"bearer"}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer upstream-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(userDoc))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestFederator(t *testing.T, idp *httptest.Server, allowedUsers string) *Federator {
	t.Helper()
	return New(Config{
		ClientID:     "idp-client",
		ClientSecret: "idp-secret",
		AuthorizeURL: idp.URL + "/login/oauth/authorize",
		TokenURL:     idp.URL + "/login/oauth/access_token",
		UserInfoURL:  idp.URL + "/user",
		RedirectURL:  "https://auth.example/callback",
		AllowedUsers: allowedUsers,
	})
}

func TestBegin(t *testing.T) {
	t.Parallel()
	idp := fakeIdP(t, `{}`)
	f := newTestFederator(t, idp, "*")

	u, err := url.Parse(f.Begin("flow-state-1"))
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "idp-client", q.Get("client_id"))
	assert.Equal(t, "flow-state-1", q.Get("state"))
	assert.Equal(t, "https://auth.example/callback", q.Get("redirect_uri"))
	assert.Equal(t, "read:user user:email", q.Get("scope"))
	assert.Equal(t, "code", q.Get("response_type"))
}

func TestComplete(t *testing.T) {
	t.Parallel()
	idp := fakeIdP(t, `{"id": 42, "login": "alice", "email": "alice@example.com"}`)
	f := newTestFederator(t, idp, "alice,bob")

	profile, err := f.Complete(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "42", profile.UserID)
	assert.Equal(t, "alice", profile.UserName)
	assert.Equal(t, "alice@example.com", profile.UserEmail)
}

func TestCompleteBadCode(t *testing.T) {
	t.Parallel()
	idp := fakeIdP(t, `{"id": 42, "login": "alice"}`)
	f := newTestFederator(t, idp, "*")

	_, err := f.Complete(context.Background(), "stolen-code")
	assert.ErrorContains(t, err, "exchange failed")
}

func TestCompleteUserNotAllowed(t *testing.T) {
	t.Parallel()
	idp := fakeIdP(t, `{"id": 7, "login": "mallory"}`)
	f := newTestFederator(t, idp, "alice,bob")

	_, err := f.Complete(context.Background(), "good-code")
	assert.ErrorIs(t, err, ErrUserNotAllowed)
}

func TestCompleteMissingIdentity(t *testing.T) {
	t.Parallel()
	idp := fakeIdP(t, `{"email": "x@example.com"}`)
	f := newTestFederator(t, idp, "*")

	_, err := f.Complete(context.Background(), "good-code")
	assert.ErrorContains(t, err, "missing id or login")
}

func TestAllowlist(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		allowedUsers string
		user         string
		want         bool
	}{
		{"star allows anyone", "*", "whoever", true},
		{"star rejects empty name", "*", "", false},
		{"empty list allows nobody", "", "alice", false},
		{"listed user", "alice, bob", "bob", true},
		{"unlisted user", "alice,bob", "mallory", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(Config{AllowedUsers: tt.allowedUsers})
			assert.Equal(t, tt.want, f.Allowed(tt.user))
		})
	}
}
